package reset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
)

func TestSplitSubPath(t *testing.T) {
	open := map[gitmeta.Path]bool{"libs/core": true, "app": true}

	name, rest, ok := splitSubPath("libs/core", open)
	assert.True(t, ok)
	assert.Equal(t, gitmeta.Path("libs/core"), name)
	assert.Empty(t, rest)

	name, rest, ok = splitSubPath("libs/core/src/a.c", open)
	assert.True(t, ok)
	assert.Equal(t, gitmeta.Path("libs/core"), name)
	assert.Equal(t, "src/a.c", rest)

	_, _, ok = splitSubPath("libs/corelib/a.c", open)
	assert.False(t, ok, "a sibling sharing the byte prefix is not inside the sub")

	_, _, ok = splitSubPath("README", open)
	assert.False(t, ok)
}

func TestHashOrZero(t *testing.T) {
	assert.Equal(t, gitmeta.ZeroSHA, hashOrZero(""))
	assert.Equal(t, gitmeta.ZeroSHA, hashOrZero(gitshell.ZeroHash))
	assert.Equal(t,
		gitmeta.SHA("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		hashOrZero(gitshell.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")))
}

func TestToStrBoolMap(t *testing.T) {
	got := toStrBoolMap(map[gitmeta.Path]bool{"a": true, "b": false})
	assert.Equal(t, map[string]bool{"a": true, "b": false}, got)
}
