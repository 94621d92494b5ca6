package deinit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMeta(t *testing.T) (gitDir, workDir string) {
	t.Helper()
	root := t.TempDir()
	gitDir = filepath.Join(root, ".git")
	workDir = root
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "info"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "config"),
		[]byte("[submodule \"libs/core\"]\n\turl = https://example.com/core\n"), 0o644))
	return gitDir, workDir
}

func populateSub(t *testing.T, workDir, name string) string {
	t.Helper()
	dir := filepath.Join(workDir, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: ../../.git/modules/"+name), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.c"), []byte("int x;\n"), 0o644))
	return dir
}

func TestOneNonSparseKeepsDirectory(t *testing.T) {
	gitDir, workDir := setupMeta(t)
	dir := populateSub(t, workDir, "libs/core")

	require.NoError(t, One(gitDir, workDir, "libs/core", false))

	// The directory itself survives (its absence would read as a
	// submodule deletion), but its contents are gone.
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOneSparseRemovesDirectoryAndPrunesParents(t *testing.T) {
	gitDir, workDir := setupMeta(t)
	populateSub(t, workDir, "libs/core")

	require.NoError(t, One(gitDir, workDir, "libs/core", true))

	_, err := os.Stat(filepath.Join(workDir, "libs", "core"))
	assert.True(t, os.IsNotExist(err))
	// "libs" became empty and was pruned too.
	_, err = os.Stat(filepath.Join(workDir, "libs"))
	assert.True(t, os.IsNotExist(err))
}

func TestOneSparseKeepsNonEmptyParents(t *testing.T) {
	gitDir, workDir := setupMeta(t)
	populateSub(t, workDir, "libs/core")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "libs", "README"), []byte("x"), 0o644))

	require.NoError(t, One(gitDir, workDir, "libs/core", true))

	_, err := os.Stat(filepath.Join(workDir, "libs"))
	assert.NoError(t, err, "a parent with other content survives")
}

func TestOneClearsConfigStanza(t *testing.T) {
	gitDir, workDir := setupMeta(t)
	populateSub(t, workDir, "libs/core")

	require.NoError(t, One(gitDir, workDir, "libs/core", false))

	data, err := os.ReadFile(filepath.Join(gitDir, "config"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "libs/core")
}

func TestOneToleratesAbsentDirectory(t *testing.T) {
	gitDir, workDir := setupMeta(t)
	assert.NoError(t, One(gitDir, workDir, "libs/core", false))
	assert.NoError(t, One(gitDir, workDir, "libs/core", true))
}
