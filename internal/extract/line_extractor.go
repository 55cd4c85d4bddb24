package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// dateFormats accepted by the line extractor, tried in order.
var dateFormats = []string{"02/01/2006", "02-01-2006", "2006-01-02"}

// LineExtractor parses statements whose text layer has already been dumped to
// plain text, one transaction per line: a date, a free-form description and a
// trailing signed amount, separated by "|" or whitespace. Raw PDF bytes are
// rejected as unsupported; running a PDF through a text extraction service
// first is the collaborator's job, not this package's.
type LineExtractor struct{}

// NewLineExtractor returns a ready-to-use line extractor.
func NewLineExtractor() *LineExtractor {
	return &LineExtractor{}
}

// Extract implements the Extractor interface. Lines that do not contain a
// description and a parseable amount are skipped; a statement with no
// parseable rows yields an empty result, which is valid, not an error.
func (e *LineExtractor) Extract(ctx context.Context, data []byte) ([]domain.ExtractedRow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnreadable)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: not valid text", ErrUnreadable)
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("%w: raw PDF bytes, text layer required", ErrUnsupported)
	}

	var rows []domain.ExtractedRow
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	return rows, nil
}

// parseLine splits one statement line into (date, description, amount).
// The date may fail to parse (zero TxnDate); a missing description or amount
// disqualifies the line.
func parseLine(line string) (domain.ExtractedRow, bool) {
	fields := splitFields(line)
	if len(fields) < 3 {
		return domain.ExtractedRow{}, false
	}

	amount, err := parseAmount(fields[len(fields)-1])
	if err != nil {
		return domain.ExtractedRow{}, false
	}

	desc := strings.TrimSpace(strings.Join(fields[1:len(fields)-1], " "))
	if desc == "" {
		return domain.ExtractedRow{}, false
	}

	return domain.ExtractedRow{
		TxnDate:     parseDate(fields[0]),
		Description: desc,
		Amount:      amount,
	}, true
}

// splitFields prefers an explicit "|" delimiter and falls back to whitespace.
func splitFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.Contains(line, "|") {
		parts := strings.Split(line, "|")
		fields := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				fields = append(fields, p)
			}
		}
		return fields
	}
	return strings.Fields(line)
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d
		}
	}
	return time.Time{}
}

// parseAmount strips thousands separators and currency prefixes before
// parsing. "RM" shows up on Malaysian statements, "1,234.56" everywhere.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "RM")
	s = strings.ReplaceAll(s, ",", "")
	return decimal.NewFromString(strings.TrimSpace(s))
}

var _ Extractor = (*LineExtractor)(nil)
