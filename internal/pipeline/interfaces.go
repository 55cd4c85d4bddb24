package pipeline

import (
	"context"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// StatementStore covers the status transitions the processor drives.
type StatementStore interface {
	// ClaimProcessing moves a statement from uploaded to processing, or
	// reports that another attempt already holds it.
	ClaimProcessing(ctx context.Context, id string) error

	// MarkProcessed finalizes a successful run with the persisted row count.
	MarkProcessed(ctx context.Context, id string, transactionsCount int) error

	// MarkFailed finalizes a failed run with a short user-facing reason.
	MarkFailed(ctx context.Context, id, reason string) error
}

// TransactionWriter persists one statement's categorized batch atomically.
type TransactionWriter interface {
	InsertTransactions(ctx context.Context, statementID string, txns []domain.Transaction) error
}

// RuleSource provides the active ruleset the snapshot is built from.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
}

// FileSource loads the raw bytes stored for an uploaded statement.
type FileSource interface {
	Load(statementID string) ([]byte, error)
}
