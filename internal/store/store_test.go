package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type byteStore interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Remove(key string) error
}

func testStore(t *testing.T, s byteStore) {
	_, err := s.Read("wificreds.bin")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Write("wificreds.bin", []byte{4, 'h', 'o', 'm', 'e', 0}))
	data, err := s.Read("wificreds.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 'h', 'o', 'm', 'e', 0}, data)

	require.NoError(t, s.Write("wificreds.bin", []byte{1, 'x', 0}))
	data, err = s.Read("wificreds.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 'x', 0}, data)

	require.NoError(t, s.Remove("wificreds.bin"))
	assert.ErrorIs(t, s.Remove("wificreds.bin"), fs.ErrNotExist)

	assert.ErrorIs(t, s.Write("../escape", nil), ErrInvalidKey)
	assert.ErrorIs(t, s.Write("", nil), ErrInvalidKey)
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	testStore(t, s)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemStore(t *testing.T) {
	testStore(t, NewMemStore())
}

func TestMemStoreCopies(t *testing.T) {
	s := NewMemStore()
	data := []byte("abc")
	require.NoError(t, s.Write("k", data))
	data[0] = 'z'
	got, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
