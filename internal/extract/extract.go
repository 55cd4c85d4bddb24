// Package extract defines the boundary to the statement extraction
// collaborator. The pipeline treats extraction as a black box that turns raw
// statement bytes into ordered transaction rows or fails with one of the
// error kinds below.
package extract

import (
	"context"
	"errors"

	"github.com/dvloznov/statement-engine/internal/domain"
)

var (
	// ErrUnreadable indicates the uploaded bytes could not be read at all
	// (empty or not text).
	ErrUnreadable = errors.New("statement is unreadable")

	// ErrUnsupported indicates the bytes were readable but the layout is not
	// one the extractor understands.
	ErrUnsupported = errors.New("statement layout is not supported")
)

// Extractor produces the ordered transaction rows contained in a statement.
// Implementations must honor ctx cancellation; the pipeline runs extraction
// under a bounded timeout.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]domain.ExtractedRow, error)
}
