package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-engine/internal/domain"
)

const statementColumns = "id, filename, status, transactions_count, error_message, created_at"

// CreateStatement records a freshly uploaded statement in the uploaded state.
// The caller supplies the id so the upload file can be stored under it before
// the row exists.
func (s *Store) CreateStatement(ctx context.Context, id, filename string) (domain.Statement, error) {
	st := domain.Statement{
		ID:        id,
		Filename:  filename,
		Status:    domain.StatementStatusUploaded,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statements (id, filename, status, created_at)
		VALUES (?, ?, ?, ?)
	`, st.ID, st.Filename, string(st.Status), st.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return domain.Statement{}, fmt.Errorf("insert statement: %w", err)
	}

	return st, nil
}

// ClaimProcessing transitions a statement from uploaded to processing. The
// conditional update is what guarantees at most one processing attempt per
// statement id: only one caller sees a row change.
func (s *Store) ClaimProcessing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE statements SET status = ? WHERE id = ? AND status = ?
	`, string(domain.StatementStatusProcessing), id, string(domain.StatementStatusUploaded))
	if err != nil {
		return fmt.Errorf("claim statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim statement: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetStatement(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrAlreadyClaimed
}

// MarkProcessed moves a processing statement to its processed terminal state
// and records how many transactions were persisted for it.
func (s *Store) MarkProcessed(ctx context.Context, id string, transactionsCount int) error {
	return s.finishStatement(ctx, id, domain.StatementStatusProcessed, transactionsCount, "")
}

// MarkFailed moves a processing statement to its failed terminal state with a
// short user-facing reason.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.finishStatement(ctx, id, domain.StatementStatusFailed, 0, reason)
}

func (s *Store) finishStatement(ctx context.Context, id string, status domain.StatementStatus, count int, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE statements
		SET status = ?, transactions_count = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, string(status), count, nullString(reason), id, string(domain.StatementStatusProcessing))
	if err != nil {
		return fmt.Errorf("finish statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish statement: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish statement %s: not in processing state", id)
	}
	return nil
}

// GetStatement returns one statement by id.
func (s *Store) GetStatement(ctx context.Context, id string) (domain.Statement, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM statements WHERE id = ?`, statementColumns), id)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Statement{}, ErrNotFound
	}
	return st, err
}

// ListStatements returns all statements, newest first.
func (s *Store) ListStatements(ctx context.Context) ([]domain.Statement, error) {
	return s.queryStatements(ctx,
		fmt.Sprintf(`SELECT %s FROM statements ORDER BY created_at DESC, id`, statementColumns))
}

// ListStatementsByStatus returns statements in the given state, oldest first,
// so a recovery worker re-enqueues them in upload order.
func (s *Store) ListStatementsByStatus(ctx context.Context, status domain.StatementStatus) ([]domain.Statement, error) {
	return s.queryStatements(ctx,
		fmt.Sprintf(`SELECT %s FROM statements WHERE status = ? ORDER BY created_at, id`, statementColumns), string(status))
}

func (s *Store) queryStatements(ctx context.Context, query string, args ...interface{}) ([]domain.Statement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []domain.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (domain.Statement, error) {
	var (
		st        domain.Statement
		status    string
		errMsg    sql.NullString
		createdAt string
	)
	if err := row.Scan(&st.ID, &st.Filename, &status, &st.TransactionsCount, &errMsg, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Statement{}, err
		}
		return domain.Statement{}, fmt.Errorf("scan statement: %w", err)
	}
	st.Status = domain.StatementStatus(status)
	st.Error = errMsg.String
	st.CreatedAt = parseTimestamp(createdAt)
	return st, nil
}
