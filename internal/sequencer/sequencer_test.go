package sequencer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitmeta"
)

const (
	shaA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	shaC = "cccccccccccccccccccccccccccccccccccccccc"
)

func sampleState(op gitmeta.OpType) *gitmeta.SequencerState {
	return &gitmeta.SequencerState{
		Type:          op,
		OriginalHead:  gitmeta.RefPoint{SHA: shaA, Ref: "refs/heads/master"},
		Target:        gitmeta.RefPoint{SHA: shaB, Ref: "refs/heads/topic"},
		CurrentCommit: 2,
		Commits:       []gitmeta.SHA{shaB, shaC},
		Message:       "Merge topic\n\ninto master\n",
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleState(gitmeta.OpMerge)
	require.NoError(t, Write(dir, want))

	got, err := Read(dir, gitmeta.OpMerge)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)
}

func TestReadAbsentReturnsNil(t *testing.T) {
	got, err := Read(t.TempDir(), gitmeta.OpCherryPick)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadMalformedOrigHeadReturnsNil(t *testing.T) {
	dir := t.TempDir()
	seqDir := DirFor(dir, gitmeta.OpRebase)
	require.NoError(t, os.MkdirAll(seqDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seqDir, "ORIG_HEAD"), []byte("bogus"), 0o644))

	got, err := Read(dir, gitmeta.OpRebase)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRoundTripWithoutRefNames(t *testing.T) {
	dir := t.TempDir()
	want := sampleState(gitmeta.OpCherryPick)
	want.OriginalHead.Ref = ""
	want.Target.Ref = ""
	require.NoError(t, Write(dir, want))

	got, err := Read(dir, gitmeta.OpCherryPick)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, got)
}

func TestMultilineMessageSurvives(t *testing.T) {
	dir := t.TempDir()
	want := sampleState(gitmeta.OpMerge)
	want.Message = "line one\n\nline three\nno trailing newline"
	require.NoError(t, Write(dir, want))

	got, err := Read(dir, gitmeta.OpMerge)
	require.NoError(t, err)
	assert.Equal(t, want.Message, got.Message)
}

func TestCleanRemovesState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleState(gitmeta.OpMerge)))
	assert.True(t, InProgress(dir, gitmeta.OpMerge))

	require.NoError(t, Clean(dir, gitmeta.OpMerge))
	assert.False(t, InProgress(dir, gitmeta.OpMerge))
	_, err := os.Stat(DirFor(dir, gitmeta.OpMerge))
	assert.True(t, os.IsNotExist(err))
}

func TestOpsUseSeparateDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleState(gitmeta.OpMerge)))

	assert.True(t, InProgress(dir, gitmeta.OpMerge))
	assert.False(t, InProgress(dir, gitmeta.OpCherryPick))
	assert.False(t, InProgress(dir, gitmeta.OpRebase))

	assert.Equal(t, filepath.Join(dir, "META_MERGE"), DirFor(dir, gitmeta.OpMerge))
	assert.Equal(t, filepath.Join(dir, "META_CHERRY_PICK"), DirFor(dir, gitmeta.OpCherryPick))
	assert.Equal(t, filepath.Join(dir, "META_REBASE"), DirFor(dir, gitmeta.OpRebase))
}
