package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *UploadStore {
	t.Helper()
	return NewUploadStore(filepath.Join(t.TempDir(), "temp_uploads"), zap.NewNop())
}

func TestSaveUpload(t *testing.T) {
	store := newTestStore(t)

	path, err := store.SaveUpload("invoice.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "invoice.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}

func TestSaveUpload_CollisionGetsSuffix(t *testing.T) {
	store := newTestStore(t)

	first, err := store.SaveUpload("invoice.pdf", []byte("one"))
	require.NoError(t, err)
	second, err := store.SaveUpload("invoice.pdf", []byte("two"))
	require.NoError(t, err)
	third, err := store.SaveUpload("invoice.pdf", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.Dir(), "invoice_1.pdf"), second)
	assert.Equal(t, filepath.Join(store.Dir(), "invoice_2.pdf"), third)

	// The earlier upload is untouched.
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestSaveUpload_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	tests := []string{"", "../escape.pdf", "a/b.pdf", "..\\win.pdf"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := store.SaveUpload(name, []byte("x"))
			assert.Error(t, err)
		})
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	path, err := store.SaveUpload("gone.pdf", []byte("x"))
	require.NoError(t, err)

	store.Remove(path)
	assert.NoFileExists(t, path)

	// Removing an already-missing file is silent.
	store.Remove(path)
}

func TestCleanup(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveUpload("a.pdf", []byte("a"))
	require.NoError(t, err)
	_, err = store.SaveUpload("b.png", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, store.Cleanup())

	dirEntries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, dirEntries)
}

func TestCleanup_MissingDirIsFine(t *testing.T) {
	store := NewUploadStore(filepath.Join(t.TempDir(), "never-made"), zap.NewNop())
	assert.NoError(t, store.Cleanup())
}
