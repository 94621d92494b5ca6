package opener

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
)

// newMeta builds an on-disk meta repo with one fully-open sub ("open")
// and one half-open sub ("half"), exactly the two states init discovers.
func newMeta(t *testing.T) (*Opener, string) {
	t.Helper()
	root := t.TempDir()

	metaObj, err := gitobj.Init(root, nil)
	require.NoError(t, err)
	gitDir := filepath.Join(root, ".git")

	configText := "[submodule \"open\"]\n\turl = https://example.com/open.git\n" +
		"[submodule \"half\"]\n\turl = https://example.com/half.git\n"
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "config"), []byte(configText), 0o644))

	_, err = gitobj.Init(filepath.Join(root, "open"), nil)
	require.NoError(t, err)
	_, err = gitobj.InitBare(filepath.Join(gitDir, "modules", "half"), nil)
	require.NoError(t, err)

	logger := log.New(io.Discard)
	f := fetcher.New(metaObj, gitobj.ZeroHash)
	op := New(gitshell.Open(root, logger), metaObj, gitDir, root, gitobj.ZeroHash, f, logger)
	return op, root
}

func TestOpenSubsDiscoversOnlyFullyOpen(t *testing.T) {
	op, _ := newMeta(t)
	open, err := op.OpenSubs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[gitmeta.Path]bool{"open": true}, open)
}

func TestGetSubrepoReturnsOpenCache(t *testing.T) {
	op, root := newMeta(t)
	for _, mode := range []Mode{ForceOpen, AllowBare} {
		sub, err := op.GetSubrepo(context.Background(), "open", mode)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "open"), sub.Root)
	}
}

func TestGetSubrepoReusesHalfOpenForBareModes(t *testing.T) {
	op, root := newMeta(t)
	for _, mode := range []Mode{AllowBare, ForceBare} {
		sub, err := op.GetSubrepo(context.Background(), "half", mode)
		require.NoError(t, err)
		assert.True(t, sub.Bare)
		assert.Equal(t, filepath.Join(root, ".git", "modules", "half"), sub.GitDir)
	}
}

func TestClearAbsorbedCacheDropsHalfOpen(t *testing.T) {
	op, _ := newMeta(t)
	_, err := op.GetSubrepo(context.Background(), "half", AllowBare)
	require.NoError(t, err)

	op.ClearAbsorbedCache("half")

	// With the cache entry gone, AllowBare must re-init from the pinned
	// commit, which this test never created: the lookup has to fail
	// instead of silently handing back the dropped entry.
	_, err = op.GetSubrepo(context.Background(), "half", AllowBare)
	assert.Error(t, err)
}

func TestGetSubrepoUnknownNameFails(t *testing.T) {
	op, _ := newMeta(t)
	_, err := op.GetSubrepo(context.Background(), "never-configured", AllowBare)
	assert.Error(t, err)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, filepath.Join("/meta", "libs/core"), subWorkDir("/meta", "libs/core"))
	assert.Equal(t, filepath.Join("/meta/.git", "modules", "libs/core"), subModulesDir("/meta/.git", "libs/core"))
}

func TestReadFileTolerant(t *testing.T) {
	got, err := readFileTolerant(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
