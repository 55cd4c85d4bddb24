// Package domain holds the core entity types shared across the ingestion
// pipeline, the rule engine and the persistence layer.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatementStatus represents the lifecycle state of an uploaded statement.
type StatementStatus string

const (
	// StatementStatusUploaded indicates the statement was accepted and is
	// waiting to be claimed by a worker.
	StatementStatusUploaded StatementStatus = "uploaded"
	// StatementStatusProcessing indicates extraction and categorization are
	// in flight. At most one attempt per statement holds this state.
	StatementStatusProcessing StatementStatus = "processing"
	// StatementStatusProcessed is terminal: every extracted transaction was
	// categorized and persisted.
	StatementStatusProcessed StatementStatus = "processed"
	// StatementStatusFailed is terminal: extraction or persistence failed.
	// A failed statement is never retried; upload a fresh copy instead.
	StatementStatusFailed StatementStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s StatementStatus) Terminal() bool {
	return s == StatementStatusProcessed || s == StatementStatusFailed
}

// RuleStatus toggles whether a rule participates in categorization.
type RuleStatus string

const (
	// RuleStatusActive rules are evaluated by the matcher.
	RuleStatusActive RuleStatus = "active"
	// RuleStatusInactive rules are kept but never matched.
	RuleStatusInactive RuleStatus = "inactive"
)

// Rule maps a keyword to a category and subcategory. Lower priority numbers
// are evaluated first; ties break by ID ascending so evaluation order is
// deterministic even when priorities collide.
type Rule struct {
	ID          int64      `json:"id"`
	Keyword     string     `json:"keyword"`
	Category    string     `json:"category,omitempty"`
	Subcategory string     `json:"subcategory,omitempty"`
	Priority    int        `json:"priority"`
	Status      RuleStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Active reports whether the rule should be considered by the matcher.
// A rule with a blank keyword never matches anything and is treated as
// inactive regardless of its status field.
func (r Rule) Active() bool {
	return r.Status == RuleStatusActive && strings.TrimSpace(r.Keyword) != ""
}

// Category is reference data used to validate a rule's category name.
// The core never owns or mutates categories beyond seeding.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Statement is one uploaded source document and the root of its extracted
// transactions.
type Statement struct {
	ID                string          `json:"id"`
	Filename          string          `json:"filename"`
	Status            StatementStatus `json:"status"`
	TransactionsCount int             `json:"transactions_count"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Transaction is one extracted statement row plus the output of the most
// recent categorization pass. Category, Subcategory and RuleID are nil when
// no active rule matched the description; that is a valid outcome, not an
// error.
type Transaction struct {
	ID          string          `json:"id"`
	StatementID string          `json:"statement_id"`
	TxnDate     time.Time       `json:"txn_date"` // zero when the extractor could not parse a date
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    *string         `json:"category"`
	Subcategory *string         `json:"subcategory"`
	RuleID      *int64          `json:"rule_id"`
}

// ExtractedRow is one raw line item returned by the extraction collaborator,
// before it becomes a persisted Transaction.
type ExtractedRow struct {
	TxnDate     time.Time
	Description string
	Amount      decimal.Decimal
}
