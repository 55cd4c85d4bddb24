// Package filestore keeps uploaded statement files on local disk, keyed by
// statement id. The worker reads the bytes back when it claims the statement
// for extraction.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound indicates no upload is stored under the given statement id.
var ErrNotFound = errors.New("upload not found")

// Store persists uploads under a single directory.
type Store struct {
	dir string
}

// New returns a file store rooted at dir. The directory is created on the
// first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the uploaded bytes under the statement id and returns the path.
func (s *Store) Save(statementID string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := s.path(statementID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload %s: %w", statementID, err)
	}
	return path, nil
}

// Load reads back the uploaded bytes for a statement.
func (s *Store) Load(statementID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(statementID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, statementID)
	}
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", statementID, err)
	}
	return data, nil
}

// Remove deletes the stored upload. Missing files are not an error; the
// upload may already have been cleaned up.
func (s *Store) Remove(statementID string) error {
	err := os.Remove(s.path(statementID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", statementID, err)
	}
	return nil
}

func (s *Store) path(statementID string) string {
	return filepath.Join(s.dir, statementID+".stmt")
}
