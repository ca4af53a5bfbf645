package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.bundle")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	// Overwrite replaces the content in one step.
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	t.Parallel()

	err := WriteFileAtomic(filepath.Join(t.TempDir(), "no", "such", "dir", "f"), []byte("x"), 0o644)
	assert.Error(t, err)
}

func TestEnsureDirAndExists(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "cache", "models")
	assert.False(t, Exists(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, Exists(dir))
	// Idempotent.
	require.NoError(t, EnsureDir(dir))
}
