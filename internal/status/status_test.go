package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
)

func TestClassifyStatusBytes(t *testing.T) {
	assert.Equal(t, gitmeta.ChangeFileAdded, classify('A'))
	assert.Equal(t, gitmeta.ChangeFileDeleted, classify('D'))
	assert.Equal(t, gitmeta.ChangeFileTypeChange, classify('T'))
	assert.Equal(t, gitmeta.ChangeFileConflicted, classify('U'))
	assert.Equal(t, gitmeta.ChangeFileModified, classify('M'))
}

func TestGitlinkDiffEntriesAreExcludedByMode(t *testing.T) {
	// The default file-change view keys off the entry's mode, never off
	// the shape of the path: a dotless file stays, a gitlink goes.
	gitlink := gitshell.DiffEntry{OldMode: "160000", NewMode: "160000", Path: "sub.with.dots"}
	makefile := gitshell.DiffEntry{OldMode: "100644", NewMode: "100644", Path: "Makefile"}
	added := gitshell.DiffEntry{OldMode: "000000", NewMode: "160000", Path: "newsub"}

	assert.True(t, gitlink.IsGitlink())
	assert.True(t, added.IsGitlink())
	assert.False(t, makefile.IsGitlink())
}

func statusWith(staged, workdir map[gitmeta.Path]gitmeta.Change, subs ...gitmeta.Path) *gitmeta.RepoStatus {
	st := gitmeta.NewRepoStatus()
	for p, c := range staged {
		st.Staged[p] = c
	}
	for p, c := range workdir {
		st.Workdir[p] = c
	}
	for _, s := range subs {
		st.Submodules[s] = &gitmeta.SubmoduleStatus{}
	}
	return st
}

func TestFilterByPaths(t *testing.T) {
	st := statusWith(
		map[gitmeta.Path]gitmeta.Change{"a/one": gitmeta.ChangeFileModified, "b/two": gitmeta.ChangeFileModified},
		map[gitmeta.Path]gitmeta.Change{"a/three": gitmeta.ChangeFileAdded},
		"a/sub", "c/sub",
	)

	filterByPaths(st, Options{Paths: []gitmeta.Path{"a"}})

	assert.Contains(t, st.Staged, gitmeta.Path("a/one"))
	assert.NotContains(t, st.Staged, gitmeta.Path("b/two"))
	assert.Contains(t, st.Workdir, gitmeta.Path("a/three"))
	assert.Contains(t, st.Submodules, gitmeta.Path("a/sub"))
	assert.NotContains(t, st.Submodules, gitmeta.Path("c/sub"))
}

func TestFilterByPathsResolvesCwd(t *testing.T) {
	st := statusWith(
		map[gitmeta.Path]gitmeta.Change{"lib/x/f.c": gitmeta.ChangeFileModified, "other/g.c": gitmeta.ChangeFileModified},
		nil,
	)

	filterByPaths(st, Options{Paths: []gitmeta.Path{"x"}, Cwd: "lib"})

	assert.Contains(t, st.Staged, gitmeta.Path("lib/x/f.c"))
	assert.NotContains(t, st.Staged, gitmeta.Path("other/g.c"))
}

func TestHasPrefixAny(t *testing.T) {
	allowed := map[gitmeta.Path]bool{"a/b": true}
	assert.True(t, hasPrefixAny("a/b/c", allowed))
	assert.False(t, hasPrefixAny("a/bc", allowed))
	assert.False(t, hasPrefixAny("a", allowed))
}
