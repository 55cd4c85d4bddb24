package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// EnsureCategory inserts the category if it does not exist yet and returns
// its id either way.
func (s *Store) EnsureCategory(ctx context.Context, name string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return id, nil
}

// HasCategory reports whether a category with the given name exists.
func (s *Store) HasCategory(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup category %q: %w", name, err)
	}
	return n > 0, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}
