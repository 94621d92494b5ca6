package stitch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
)

func TestMakeAdjustPathFunctionNoRoot(t *testing.T) {
	adjust := makeAdjustPathFunction("")
	got, ok := adjust("a/b/c")
	assert.True(t, ok)
	assert.Equal(t, "a/b/c", got)
}

func TestMakeAdjustPathFunctionInsideRoot(t *testing.T) {
	adjust := makeAdjustPathFunction("x")
	got, ok := adjust("x/lib/a.c")
	assert.True(t, ok)
	assert.Equal(t, "lib/a.c", got)
}

func TestMakeAdjustPathFunctionOutsideRoot(t *testing.T) {
	adjust := makeAdjustPathFunction("x")
	_, ok := adjust("y/lib/a.c")
	assert.False(t, ok)

	// "xyz" shares the prefix bytes but is not under "x/".
	_, ok = adjust("xyz/a.c")
	assert.False(t, ok)
}

func TestAppendSubBlocksNoBlocks(t *testing.T) {
	assert.Equal(t, "meta message\n", appendSubBlocks("meta message\n", nil))
}

func TestAppendSubBlocksFormat(t *testing.T) {
	blocks := []subBlock{
		{
			name:    "s",
			author:  gitshell.Signature{Name: "Ann", Email: "ann@example.com", When: "1500000000 +0000"},
			message: "fix the widget\n",
		},
	}
	got := appendSubBlocks("meta message\n", blocks)
	want := "meta message\n" +
		"\nFrom 's'\n" +
		"Author: Ann <ann@example.com>\n" +
		"Date: 1500000000 +0000\n" +
		"fix the widget\n"
	assert.Equal(t, want, got)
}

func TestAppendSubBlocksSortedAndNewlineTerminated(t *testing.T) {
	blocks := []subBlock{
		{name: "z", author: gitshell.Signature{Name: "Z"}, message: "no newline"},
		{name: "a", author: gitshell.Signature{Name: "A"}, message: "first\n"},
	}
	got := appendSubBlocks("base", blocks)

	idxA := indexOf(t, got, "From 'a'")
	idxZ := indexOf(t, got, "From 'z'")
	assert.Less(t, idxA, idxZ)
	assert.Equal(t, byte('\n'), got[len(got)-1])
}

func TestEncodeReference(t *testing.T) {
	got := encodeReference("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", map[string]gitshell.Hash{
		"s": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	})
	var decoded struct {
		MetaRepoCommit   string            `json:"metaRepoCommit"`
		SubmoduleCommits map[string]string `json:"submoduleCommits"`
	}
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", decoded.MetaRepoCommit)
	assert.Equal(t, map[string]string{"s": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}, decoded.SubmoduleCommits)
}

func TestEncodeChangeCacheRoundTrips(t *testing.T) {
	in := []gitmeta.SubmoduleChange{
		{Name: "s", OldSHA: "1111111111111111111111111111111111111111", NewSHA: "2222222222222222222222222222222222222222"},
	}
	var out []gitmeta.SubmoduleChange
	require.NoError(t, json.Unmarshal([]byte(encodeChangeCache(in)), &out))
	assert.Equal(t, in, out)
}

func TestDiffersFromMeta(t *testing.T) {
	meta := &gitshell.CommitMeta{Author: gitshell.Signature{Name: "Ann", Email: "ann@example.com", When: "1 +0000"}}
	assert.False(t, differsFromMeta(meta, meta.Author))
	assert.True(t, differsFromMeta(meta, gitshell.Signature{Name: "Bob", Email: "ann@example.com", When: "1 +0000"}))
	assert.True(t, differsFromMeta(meta, gitshell.Signature{Name: "Ann", Email: "ann@example.com", When: "2 +0000"}))
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	t.Fatalf("%q not found in %q", needle, haystack)
	return -1
}
