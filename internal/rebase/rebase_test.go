package rebase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitmeta"
)

func urls(pairs ...string) map[string]string {
	out := map[string]string{}
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = pairs[i+1]
	}
	return out
}

func TestMergeURLMapsNoChanges(t *testing.T) {
	base := urls("s", "https://h/s")
	merged, ok := mergeURLMaps(base, base, base)
	require.True(t, ok)
	assert.Equal(t, base, merged)
}

func TestMergeURLMapsTheirsAdds(t *testing.T) {
	base := urls("s", "https://h/s")
	theirs := urls("s", "https://h/s", "t", "https://h/t")
	merged, ok := mergeURLMaps(base, base, theirs)
	require.True(t, ok)
	assert.Equal(t, theirs, merged)
}

func TestMergeURLMapsBothAddSameURL(t *testing.T) {
	base := urls()
	side := urls("t", "https://h/t")
	merged, ok := mergeURLMaps(base, side, side)
	require.True(t, ok)
	assert.Equal(t, side, merged)
}

func TestMergeURLMapsBothAddDifferentURL(t *testing.T) {
	base := urls()
	ours := urls("t", "https://h/ours")
	theirs := urls("t", "https://h/theirs")
	_, ok := mergeURLMaps(base, ours, theirs)
	assert.False(t, ok)
}

func TestMergeURLMapsTheirsChangesOursKeepsBase(t *testing.T) {
	base := urls("s", "https://h/old")
	theirs := urls("s", "https://h/new")
	merged, ok := mergeURLMaps(base, base, theirs)
	require.True(t, ok)
	assert.Equal(t, "https://h/new", merged["s"])
}

func TestMergeURLMapsBothChangeDifferently(t *testing.T) {
	base := urls("s", "https://h/old")
	ours := urls("s", "https://h/ours")
	theirs := urls("s", "https://h/theirs")
	_, ok := mergeURLMaps(base, ours, theirs)
	assert.False(t, ok)
}

func TestMergeURLMapsBothChangeSame(t *testing.T) {
	base := urls("s", "https://h/old")
	side := urls("s", "https://h/new")
	merged, ok := mergeURLMaps(base, side, side)
	require.True(t, ok)
	assert.Equal(t, side, merged)
}

func TestMergeURLMapsTheirsRemoves(t *testing.T) {
	base := urls("s", "https://h/s", "t", "https://h/t")
	ours := base
	theirs := urls("s", "https://h/s")
	merged, ok := mergeURLMaps(base, ours, theirs)
	require.True(t, ok)
	assert.Equal(t, urls("s", "https://h/s"), merged)
}

func TestMergeURLMapsTheirsRemovesOursChanged(t *testing.T) {
	base := urls("t", "https://h/t")
	ours := urls("t", "https://h/changed")
	theirs := urls()
	_, ok := mergeURLMaps(base, ours, theirs)
	assert.False(t, ok, "remove vs url-change is a genuine conflict")
}

func TestToStrBoolMap(t *testing.T) {
	got := toStrBoolMap(map[gitmeta.Path]bool{"s": true})
	assert.Equal(t, map[string]bool{"s": true}, got)
}
