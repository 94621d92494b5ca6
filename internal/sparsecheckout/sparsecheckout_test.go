package sparsecheckout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sparsePath(gitDir string) string {
	return filepath.Join(gitDir, "info", "sparse-checkout")
}

func newGitDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "info"), 0o755))
	return dir
}

func TestAddToSparseFile(t *testing.T) {
	dir := newGitDir(t)
	require.NoError(t, os.WriteFile(sparsePath(dir), []byte(".gitmodules\n"), 0o644))

	require.NoError(t, AddToSparseFile(dir, "libs/core"))
	data, err := os.ReadFile(sparsePath(dir))
	require.NoError(t, err)
	assert.Equal(t, ".gitmodules\nlibs/core\n", string(data))
}

func TestAddToSparseFileIdempotent(t *testing.T) {
	dir := newGitDir(t)
	require.NoError(t, os.WriteFile(sparsePath(dir), []byte(".gitmodules\nlibs/core\n"), 0o644))

	require.NoError(t, AddToSparseFile(dir, "libs/core"))
	data, err := os.ReadFile(sparsePath(dir))
	require.NoError(t, err)
	assert.Equal(t, ".gitmodules\nlibs/core\n", string(data))
}

func TestRemoveFromSparseFile(t *testing.T) {
	dir := newGitDir(t)
	require.NoError(t, os.WriteFile(sparsePath(dir), []byte(".gitmodules\na\nb\nc\n"), 0o644))

	require.NoError(t, RemoveFromSparseFile(dir, []string{"a", "c"}))
	data, err := os.ReadFile(sparsePath(dir))
	require.NoError(t, err)
	assert.Equal(t, ".gitmodules\nb\n", string(data))
}

func TestRemoveFromSparseFileMissingNames(t *testing.T) {
	dir := newGitDir(t)
	require.NoError(t, os.WriteFile(sparsePath(dir), []byte(".gitmodules\n"), 0o644))

	require.NoError(t, RemoveFromSparseFile(dir, []string{"never-there"}))
	data, err := os.ReadFile(sparsePath(dir))
	require.NoError(t, err)
	assert.Equal(t, ".gitmodules\n", string(data))
}

func TestRemoveFromSparseFileAbsentFile(t *testing.T) {
	dir := newGitDir(t)
	assert.NoError(t, RemoveFromSparseFile(dir, []string{"x"}))
}
