// Package store is the SQLite persistence layer. Every batch operation the
// pipeline and the reprocess coordinator depend on (transaction inserts,
// category bulk updates) commits inside a single SQL transaction, so callers
// observe all rows or none.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed indicates another worker already moved the statement
	// out of the uploaded state.
	ErrAlreadyClaimed = errors.New("statement already claimed")

	// ErrBlankKeyword indicates a rule keyword that is empty after trimming.
	ErrBlankKeyword = errors.New("rule keyword is blank")
)

// Store wraps a SQLite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path. Pass ":memory:" for an
// ephemeral database in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite serializes writers anyway; a single pooled connection avoids
	// SQLITE_BUSY churn and keeps :memory: databases on one handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
