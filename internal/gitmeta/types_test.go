package gitmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHAIsZero(t *testing.T) {
	assert.True(t, ZeroSHA.IsZero())
	assert.True(t, SHA("0000000000000000000000000000000000000000").IsZero())
	assert.False(t, SHA("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa").IsZero())
}

func TestPathClean(t *testing.T) {
	assert.Equal(t, Path("a/b"), Path("/a/b/").Clean())
	assert.Equal(t, Path("a"), Path("a").Clean())
	assert.Equal(t, Path(""), Path("/").Clean())
}

func TestPathJoin(t *testing.T) {
	assert.Equal(t, Path("a/b"), Path("a").Join("b"))
	assert.Equal(t, Path("b"), Path("").Join("b"))
}

func TestSubmoduleChangeKind(t *testing.T) {
	const sha = SHA("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(t, ChangeAdded, SubmoduleChange{NewSHA: sha}.Kind())
	assert.Equal(t, ChangeRemoved, SubmoduleChange{OldSHA: sha}.Kind())
	assert.Equal(t, ChangeModified, SubmoduleChange{OldSHA: sha, NewSHA: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}.Kind())
}

func TestEntryIsGitlink(t *testing.T) {
	assert.True(t, Entry{Mode: "160000"}.IsGitlink())
	assert.False(t, Entry{Mode: "100644"}.IsGitlink())
}

func TestIsDeepCleanEmpty(t *testing.T) {
	assert.True(t, NewRepoStatus().IsDeepClean(true))
	var nilStatus *RepoStatus
	assert.True(t, nilStatus.IsDeepClean(true))
}

func TestIsDeepCleanStaged(t *testing.T) {
	st := NewRepoStatus()
	st.Staged["f"] = ChangeFileModified
	assert.False(t, st.IsDeepClean(false))
}

func TestIsDeepCleanUntracked(t *testing.T) {
	st := NewRepoStatus()
	st.Workdir["new"] = ChangeFileAdded

	assert.True(t, st.IsDeepClean(false), "untracked files don't dirty the repo unless asked")
	assert.False(t, st.IsDeepClean(true))
}

func TestIsDeepCleanRecursesIntoSubs(t *testing.T) {
	dirtySub := NewRepoStatus()
	dirtySub.Staged["x"] = ChangeFileDeleted

	st := NewRepoStatus()
	st.Submodules["s"] = &SubmoduleStatus{
		Workdir: &WorkdirRef{Status: dirtySub},
	}
	assert.False(t, st.IsDeepClean(false))
}

func TestIsDeepCleanConflict(t *testing.T) {
	st := NewRepoStatus()
	st.Workdir["f"] = ChangeFileConflicted
	assert.False(t, st.IsDeepClean(false))
}
