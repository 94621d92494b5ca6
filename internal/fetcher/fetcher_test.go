package fetcher

import (
	"testing"

	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitobj"
)

func newMetaRepo(t *testing.T, originURL string) *gitobj.Repository {
	t.Helper()
	repo, err := gitobj.InitBare(t.TempDir(), nil)
	require.NoError(t, err)
	if originURL != "" {
		cfg, err := repo.Config()
		require.NoError(t, err)
		cfg.Remotes["origin"] = &gitconfig.RemoteConfig{Name: "origin", URLs: []string{originURL}}
		require.NoError(t, repo.SetConfig(cfg))
	}
	return repo
}

func TestGetMetaOriginURL(t *testing.T) {
	f := New(newMetaRepo(t, "https://example.com/meta.git"), gitobj.ZeroHash)
	url, err := f.GetMetaOriginURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/meta.git", url)
}

func TestGetMetaOriginURLNoOrigin(t *testing.T) {
	f := New(newMetaRepo(t, ""), gitobj.ZeroHash)
	url, err := f.GetMetaOriginURL()
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestGetMetaOriginURLIsCached(t *testing.T) {
	repo := newMetaRepo(t, "https://example.com/meta.git")
	f := New(repo, gitobj.ZeroHash)

	first, err := f.GetMetaOriginURL()
	require.NoError(t, err)

	// Rewriting the remote after the first read must not change the
	// cached answer for this fetcher's lifetime.
	cfg, err := repo.Config()
	require.NoError(t, err)
	cfg.Remotes["origin"] = &gitconfig.RemoteConfig{Name: "origin", URLs: []string{"https://other.example.com/x.git"}}
	require.NoError(t, repo.SetConfig(cfg))

	second, err := f.GetMetaOriginURL()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetSubmoduleURLUnresolvableCommit(t *testing.T) {
	f := New(newMetaRepo(t, ""), gitobj.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	_, err := f.GetSubmoduleURL("s")
	assert.Error(t, err)
}

func TestIsRelativeURL(t *testing.T) {
	assert.True(t, isRelativeURL("./sub.git"))
	assert.True(t, isRelativeURL("../sub.git"))
	assert.False(t, isRelativeURL("https://example.com/sub.git"))
	assert.False(t, isRelativeURL(""))
}

func TestResolveRelative(t *testing.T) {
	assert.Equal(t, "https://h/org/meta/sub.git", resolveRelative("https://h/org/meta", "./sub.git"))
	assert.Equal(t, "https://h/org/sub.git", resolveRelative("https://h/org/meta", "../sub.git"))
	assert.Equal(t, "https://h/sub.git", resolveRelative("https://h/org/meta", "../../sub.git"))
}
