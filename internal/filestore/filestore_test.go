package filestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadRemove(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "uploads"))

	path, err := s.Save("stmt-1", []byte("hello"))
	require.NoError(t, err)
	assert.Contains(t, path, "stmt-1.stmt")

	data, err := s.Load("stmt-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, s.Remove("stmt-1"))

	_, err = s.Load("stmt-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadMissing(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RemoveMissingIsNoop(t *testing.T) {
	s := New(t.TempDir())
	assert.NoError(t, s.Remove("nope"))
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Save("stmt-1", []byte("first"))
	require.NoError(t, err)
	_, err = s.Save("stmt-1", []byte("second"))
	require.NoError(t, err)

	data, err := s.Load("stmt-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}
