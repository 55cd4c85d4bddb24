// Package pipeline drives an uploaded statement through extraction and
// categorization to one of its terminal states.
//
// The state machine is uploaded -> processing -> {processed, failed}. The
// claim step is exclusive per statement id, extraction runs under a bounded
// timeout, and the categorized batch is persisted atomically: either every
// extracted row lands with categorization applied, or none do and the
// statement is marked failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-engine/internal/categorize"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/extract"
	"github.com/dvloznov/statement-engine/internal/logger"
	"github.com/dvloznov/statement-engine/internal/rules"
)

// DefaultExtractTimeout bounds a single extraction attempt when the caller
// does not configure one.
const DefaultExtractTimeout = 2 * time.Minute

// maxReasonLen caps the stored failure reason; anything longer is noise for
// a user-facing message.
const maxReasonLen = 500

// Processor runs the ingestion pipeline for one statement at a time. It logs
// through the logger carried on the context, so callers attach one with
// logger.WithContext.
type Processor struct {
	statements StatementStore
	writer     TransactionWriter
	rules      RuleSource
	files      FileSource
	extractor  extract.Extractor
	timeout    time.Duration
}

// NewProcessor wires a processor from its collaborators. A non-positive
// timeout falls back to DefaultExtractTimeout.
func NewProcessor(
	statements StatementStore,
	writer TransactionWriter,
	ruleSource RuleSource,
	files FileSource,
	extractor extract.Extractor,
	timeout time.Duration,
) *Processor {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return &Processor{
		statements: statements,
		writer:     writer,
		rules:      ruleSource,
		files:      files,
		extractor:  extractor,
		timeout:    timeout,
	}
}

// Process claims the statement and drives it to a terminal state. A nil
// return means the statement reached processed or failed; an error means the
// pipeline could not even record an outcome (claim lost, store down) and the
// statement may still be claimable by a later attempt.
func (p *Processor) Process(ctx context.Context, statementID string) error {
	log := logger.FromContext(ctx).With().Str("statement_id", statementID).Logger()

	if err := p.statements.ClaimProcessing(ctx, statementID); err != nil {
		return fmt.Errorf("claim statement %s: %w", statementID, err)
	}
	log.Info().Msg("Statement claimed for processing")

	data, err := p.files.Load(statementID)
	if err != nil {
		log.Error().Err(err).Msg("Stored upload could not be read")
		return p.fail(ctx, statementID, "stored upload could not be read")
	}

	rows, err := p.runExtraction(ctx, data)
	if err != nil {
		log.Warn().Err(err).Msg("Extraction failed")
		return p.fail(ctx, statementID, failureReason(err))
	}

	activeRules, err := p.rules.ListActiveRules(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Rule store unavailable")
		return p.fail(ctx, statementID, "rule store unavailable")
	}
	snapshot := rules.NewSnapshot(activeRules)

	txns := make([]domain.Transaction, len(rows))
	for i, row := range rows {
		txns[i] = domain.Transaction{
			StatementID: statementID,
			TxnDate:     row.TxnDate,
			Description: row.Description,
			Amount:      row.Amount,
		}
	}
	txns = categorize.Apply(txns, snapshot)

	if err := p.writer.InsertTransactions(ctx, statementID, txns); err != nil {
		log.Error().Err(err).Msg("Persisting extracted transactions failed")
		return p.fail(ctx, statementID, "could not persist extracted transactions")
	}

	if err := p.statements.MarkProcessed(ctx, statementID, len(txns)); err != nil {
		return fmt.Errorf("mark statement %s processed: %w", statementID, err)
	}

	log.Info().
		Int("transactions", len(txns)).
		Int("active_rules", snapshot.Len()).
		Msg("Statement processed")
	return nil
}

// runExtraction executes the extractor under the configured timeout.
func (p *Processor) runExtraction(ctx context.Context, data []byte) ([]domain.ExtractedRow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.extractor.Extract(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("extraction timed out after %s: %w", p.timeout, context.DeadlineExceeded)
		}
		return nil, err
	}
	return rows, nil
}

// fail records the terminal failed state. The statement-level failure itself
// is not an error for the caller; failing to record it is.
func (p *Processor) fail(ctx context.Context, statementID, reason string) error {
	if err := p.statements.MarkFailed(ctx, statementID, reason); err != nil {
		return fmt.Errorf("mark statement %s failed: %w", statementID, err)
	}
	return nil
}

// failureReason maps an extraction error onto a short user-facing message.
func failureReason(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnreadable):
		return "statement file is unreadable"
	case errors.Is(err, extract.ErrUnsupported):
		return "statement layout is not supported"
	case errors.Is(err, context.DeadlineExceeded):
		return "extraction timed out"
	}
	reason := "extraction failed: " + err.Error()
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return reason
}
