// Package categorize applies a rule snapshot to a batch of transactions.
// The same pass runs during ingestion (freshly extracted rows) and during
// reprocessing (already-persisted rows), so both paths assign categories
// identically.
package categorize

import (
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/rules"
)

// Apply returns a copy of txns with Category, Subcategory and RuleID set from
// the first matching rule in snap, or cleared when nothing matches. All other
// fields pass through unchanged. The whole batch is evaluated against the one
// snapshot; the rule store is never consulted mid-batch.
func Apply(txns []domain.Transaction, snap rules.Snapshot) []domain.Transaction {
	out := make([]domain.Transaction, len(txns))
	for i, tx := range txns {
		if r := snap.Match(tx.Description); r != nil {
			tx.Category = optional(r.Category)
			tx.Subcategory = optional(r.Subcategory)
			ruleID := r.ID
			tx.RuleID = &ruleID
		} else {
			tx.Category = nil
			tx.Subcategory = nil
			tx.RuleID = nil
		}
		out[i] = tx
	}
	return out
}

// optional maps an empty string to nil: a rule without a category still
// matches (its RuleID is recorded) but assigns no category.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
