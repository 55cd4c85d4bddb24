// Package reprocess re-runs categorization over every persisted transaction
// using the current active ruleset, without touching extraction or statement
// status.
package reprocess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-engine/internal/categorize"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/rules"
)

// ErrAlreadyRunning is returned when a reprocess pass is invoked while
// another is still in flight. The second caller is rejected rather than
// queued; two overlapping passes could otherwise apply different rule
// snapshots to interleaved writes.
var ErrAlreadyRunning = errors.New("reprocess already in progress")

// TransactionStore covers the bulk read and write the coordinator needs.
type TransactionStore interface {
	// ListTransactions returns every persisted transaction across all
	// statements, regardless of statement status.
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)

	// UpdateTransactionCategories rewrites categorization fields as one
	// all-or-nothing bulk update.
	UpdateTransactionCategories(ctx context.Context, txns []domain.Transaction) error
}

// RuleSource provides the active ruleset for the snapshot.
type RuleSource interface {
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
}

// Result reports one completed reprocessing pass.
type Result struct {
	// Updated counts transactions whose categorization actually changed.
	Updated int `json:"updated"`
	// Total counts all transactions examined.
	Total int `json:"total"`
	// Duration is the wall-clock time of the pass.
	Duration time.Duration `json:"duration"`
}

// Coordinator serializes full recategorization passes.
type Coordinator struct {
	txns  TransactionStore
	rules RuleSource
	log   zerolog.Logger

	mu sync.Mutex // TryLock gives single-flight without queueing
}

// NewCoordinator creates a reprocess coordinator.
func NewCoordinator(txns TransactionStore, ruleSource RuleSource, log zerolog.Logger) *Coordinator {
	return &Coordinator{txns: txns, rules: ruleSource, log: log}
}

// ReprocessAll loads every persisted transaction, takes one snapshot of the
// active ruleset, recategorizes the whole batch and commits it as one bulk
// update. With an unchanged ruleset the pass is idempotent. On any error
// nothing is written and the result reports zero updates.
func (c *Coordinator) ReprocessAll(ctx context.Context) (Result, error) {
	if !c.mu.TryLock() {
		return Result{}, ErrAlreadyRunning
	}
	defer c.mu.Unlock()

	start := time.Now()

	all, err := c.txns.ListTransactions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load transactions: %w", err)
	}

	activeRules, err := c.rules.ListActiveRules(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load active rules: %w", err)
	}
	snapshot := rules.NewSnapshot(activeRules)

	updated := categorize.Apply(all, snapshot)

	if err := c.txns.UpdateTransactionCategories(ctx, updated); err != nil {
		return Result{}, fmt.Errorf("commit bulk update: %w", err)
	}

	res := Result{
		Updated:  countChanged(all, updated),
		Total:    len(all),
		Duration: time.Since(start),
	}

	c.log.Info().
		Int("total", res.Total).
		Int("updated", res.Updated).
		Int("active_rules", snapshot.Len()).
		Dur("duration", res.Duration).
		Msg("Reprocess completed")
	return res, nil
}

func countChanged(before, after []domain.Transaction) int {
	changed := 0
	for i := range before {
		if !sameCategorization(before[i], after[i]) {
			changed++
		}
	}
	return changed
}

func sameCategorization(a, b domain.Transaction) bool {
	return equalStringPtr(a.Category, b.Category) &&
		equalStringPtr(a.Subcategory, b.Subcategory) &&
		equalInt64Ptr(a.RuleID, b.RuleID)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
