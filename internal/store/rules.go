package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/statement-engine/internal/domain"
)

const ruleColumns = "id, keyword, category, subcategory, priority, status, created_at"

// CreateRule inserts a new rule and returns it with ID and CreatedAt set.
// Priority is stored as given, 0 included; status defaults to active when
// empty. Defaulting an absent priority is the caller's concern, since only
// the caller knows whether the field was set.
func (s *Store) CreateRule(ctx context.Context, r domain.Rule) (domain.Rule, error) {
	r.Keyword = strings.TrimSpace(r.Keyword)
	if r.Keyword == "" {
		return domain.Rule{}, ErrBlankKeyword
	}
	if r.Status == "" {
		r.Status = domain.RuleStatusActive
	}
	r.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (keyword, category, subcategory, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Keyword, nullString(r.Category), nullString(r.Subcategory), r.Priority, string(r.Status), r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return domain.Rule{}, fmt.Errorf("insert rule: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Rule{}, fmt.Errorf("rule id: %w", err)
	}
	r.ID = id

	return r, nil
}

// DeleteRule removes a rule by id. Transactions the rule already categorized
// keep their categories; only future passes stop seeing it.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRules returns every rule, active or not, sorted by (priority, id).
func (s *Store) ListRules(ctx context.Context) ([]domain.Rule, error) {
	return s.queryRules(ctx, fmt.Sprintf(`SELECT %s FROM rules ORDER BY priority, id`, ruleColumns))
}

// ListActiveRules returns the active ruleset sorted by (priority, id), the
// order the matcher evaluates rules in.
func (s *Store) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	return s.queryRules(ctx, fmt.Sprintf(`SELECT %s FROM rules WHERE status = 'active' ORDER BY priority, id`, ruleColumns))
}

// CountRules returns the total number of rules.
func (s *Store) CountRules(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

func (s *Store) queryRules(ctx context.Context, query string) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return out, nil
}

func scanRule(rows *sql.Rows) (domain.Rule, error) {
	var (
		r           domain.Rule
		category    sql.NullString
		subcategory sql.NullString
		status      string
		createdAt   string
	)
	if err := rows.Scan(&r.ID, &r.Keyword, &category, &subcategory, &r.Priority, &status, &createdAt); err != nil {
		return domain.Rule{}, fmt.Errorf("scan rule: %w", err)
	}
	r.Category = category.String
	r.Subcategory = subcategory.String
	r.Status = domain.RuleStatus(status)
	r.CreatedAt = parseTimestamp(createdAt)
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp accepts both our RFC 3339 inserts and SQLite's
// datetime('now') default format.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
