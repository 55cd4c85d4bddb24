package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-engine/internal/domain"
)

const txnColumns = "id, statement_id, txn_date, description, amount, category, subcategory, rule_id"

// InsertTransactions persists a batch of freshly extracted transactions for
// one statement inside a single SQL transaction: all rows land or none do.
// Transactions without an ID are assigned one.
func (s *Store) InsertTransactions(ctx context.Context, statementID string, txns []domain.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO transactions (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, txnColumns))
	if err != nil {
		return fmt.Errorf("prepare insert batch: %w", err)
	}
	defer stmt.Close()

	for i := range txns {
		t := &txns[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.StatementID = statementID

		_, err := stmt.ExecContext(ctx,
			t.ID, t.StatementID, nullDate(t.TxnDate), t.Description, t.Amount.String(),
			nullStringPtr(t.Category), nullStringPtr(t.Subcategory), nullInt64Ptr(t.RuleID))
		if err != nil {
			return fmt.Errorf("insert transaction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert batch: %w", err)
	}
	return nil
}

// UpdateTransactionCategories overwrites the categorization fields of every
// given transaction as one logical bulk update. On error nothing is applied.
func (s *Store) UpdateTransactionCategories(ctx context.Context, txns []domain.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions SET category = ?, subcategory = ?, rule_id = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare update batch: %w", err)
	}
	defer stmt.Close()

	for i := range txns {
		t := &txns[i]
		_, err := stmt.ExecContext(ctx,
			nullStringPtr(t.Category), nullStringPtr(t.Subcategory), nullInt64Ptr(t.RuleID), t.ID)
		if err != nil {
			return fmt.Errorf("update transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update batch: %w", err)
	}
	return nil
}

// ListTransactions returns every persisted transaction across all statements,
// in a deterministic order (statement, then insertion id).
func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions ORDER BY statement_id, id`, txnColumns))
}

// ListTransactionsByStatement returns the transactions belonging to one
// statement.
func (s *Store) ListTransactionsByStatement(ctx context.Context, statementID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions WHERE statement_id = ? ORDER BY id`, txnColumns), statementID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *Store) queryTransactions(ctx context.Context, query string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t           domain.Transaction
			txnDate     sql.NullString
			amount      string
			category    sql.NullString
			subcategory sql.NullString
			ruleID      sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.StatementID, &txnDate, &t.Description, &amount, &category, &subcategory, &ruleID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		if txnDate.Valid {
			if d, err := time.Parse("2006-01-02", txnDate.String); err == nil {
				t.TxnDate = d
			}
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		t.Amount = amt
		if category.Valid {
			t.Category = &category.String
		}
		if subcategory.Valid {
			t.Subcategory = &subcategory.String
		}
		if ruleID.Valid {
			t.RuleID = &ruleID.Int64
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format("2006-01-02"), Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
