package gitshell

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec satisfies execer with canned stdout, so command parsers can be
// exercised without a git binary or a repository on disk.
type fakeExec struct {
	out  []byte
	err  error
	args [][]string
}

func (f *fakeExec) record(cmd *exec.Cmd)       { f.args = append(f.args, cmd.Args) }
func (f *fakeExec) Run(cmd *exec.Cmd) error    { f.record(cmd); return f.err }
func (f *fakeExec) Start(cmd *exec.Cmd) error  { f.record(cmd); return f.err }
func (f *fakeExec) Wait(cmd *exec.Cmd) error   { return f.err }
func (f *fakeExec) Output(cmd *exec.Cmd) ([]byte, error) {
	f.record(cmd)
	return f.out, f.err
}

func fakeRepo(out string) (*Repository, *fakeExec) {
	f := &fakeExec{out: []byte(out)}
	r := Open("/nowhere", nil)
	r.exec = f
	return r, f
}

func TestRevParseTrims(t *testing.T) {
	r, _ := fakeRepo("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n")
	h, err := r.RevParse(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.Equal(t, Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), h)
}

func TestForEachRefParsesPairs(t *testing.T) {
	r, f := fakeRepo(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa refs/heads/master\n" +
			"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb refs/heads/topic\n")
	refs, err := r.ForEachRef(context.Background(), "refs/heads/")
	require.NoError(t, err)
	assert.Equal(t, map[string]Hash{
		"refs/heads/master": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"refs/heads/topic":  "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}, refs)
	require.Len(t, f.args, 1)
	assert.Contains(t, f.args[0], "for-each-ref")
}

func TestListIndexEntriesParsesStages(t *testing.T) {
	r, _ := fakeRepo(
		"100644 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 0\t.gitmodules\n" +
			"160000 bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb 0\tlibs/core\n" +
			"160000 cccccccccccccccccccccccccccccccccccccccc 2\tconflicted\n")
	entries, err := r.ListIndexEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "100644", entries[0].Mode)
	assert.Equal(t, "libs/core", entries[1].Path)
	assert.Equal(t, "160000", entries[1].Mode)
	assert.Equal(t, 2, entries[2].Stage)
}

func TestListIndexFlagsDetectsSkipWorktree(t *testing.T) {
	r, _ := fakeRepo("H .gitmodules\nS libs/core\nh other/file\n")
	entries, err := r.ListIndexFlags(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Only a lowercase tag letter marks skip-worktree.
	assert.False(t, entries[0].SkipWorktree)
	assert.False(t, entries[1].SkipWorktree)
	assert.True(t, entries[2].SkipWorktree)
}

func TestParseDiffTree(t *testing.T) {
	out := ":160000 160000 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb M\tlibs/core\n" +
		":000000 160000 0000000000000000000000000000000000000000 cccccccccccccccccccccccccccccccccccccccc A\tnewsub\n" +
		"garbage line\n"
	entries, err := parseDiffTree(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "libs/core", entries[0].Path)
	assert.Equal(t, byte('M'), entries[0].Status)
	assert.Equal(t, "160000", entries[0].NewMode)

	assert.Equal(t, "newsub", entries[1].Path)
	assert.Equal(t, byte('A'), entries[1].Status)
	assert.True(t, entries[1].OldHash.IsZero())
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb"))
	assert.Nil(t, splitLines(""))
}

func TestHashIsZero(t *testing.T) {
	assert.True(t, Hash("").IsZero())
	assert.True(t, ZeroHash.IsZero())
	assert.False(t, Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa").IsZero())
}

func TestGitCmdWrapsStderr(t *testing.T) {
	r, f := fakeRepo("")
	f.err = assert.AnError
	err := r.DeleteRef(context.Background(), "refs/commits/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git update-ref")
}
