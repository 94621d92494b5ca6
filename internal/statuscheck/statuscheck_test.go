package statuscheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitshell"
)

func TestCheckURLCorrespondence(t *testing.T) {
	gitlinks := map[string]gitshell.Hash{
		"s": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"t": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	urls := map[string]string{
		"s": "https://example.com/s",
		"u": "https://example.com/u",
	}
	violations := checkURLCorrespondence(gitlinks, urls)
	require.Len(t, violations, 2)
	for _, v := range violations {
		assert.Equal(t, "gitmodules", v.Invariant)
	}
}

func TestCheckURLCorrespondenceClean(t *testing.T) {
	gitlinks := map[string]gitshell.Hash{"s": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	urls := map[string]string{"s": "https://example.com/s"}
	assert.Empty(t, checkURLCorrespondence(gitlinks, urls))
}

func TestCheckOpenSet(t *testing.T) {
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	workDir := root

	mkOpen := func(name string) {
		require.NoError(t, os.MkdirAll(filepath.Join(workDir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(workDir, name, ".git"), []byte("gitdir: x"), 0o644))
		require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "modules", name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(gitDir, "modules", name, "HEAD"), []byte("ref: refs/heads/master\n"), 0o644))
	}
	mkHalfOpen := func(name string) {
		require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "modules", name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(gitDir, "modules", name, "HEAD"), []byte("ref: refs/heads/master\n"), 0o644))
	}
	mkBroken := func(name string) {
		require.NoError(t, os.MkdirAll(filepath.Join(workDir, name), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(workDir, name, ".git"), []byte("gitdir: x"), 0o644))
	}

	mkOpen("good")
	mkHalfOpen("half")
	mkBroken("broken")

	configured := map[string]bool{"good": true, "half": true, "broken": true, "ghost": true}
	violations := checkOpenSet(gitDir, workDir, configured)

	details := make([]string, len(violations))
	for i, v := range violations {
		assert.Equal(t, "open-set", v.Invariant)
		details[i] = v.Detail
	}
	require.Len(t, violations, 2)
	assert.Contains(t, details[0]+details[1], "broken")
	assert.Contains(t, details[0]+details[1], "ghost")
}
