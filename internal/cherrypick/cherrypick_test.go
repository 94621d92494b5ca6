package cherrypick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/metaerr"
)

func TestRenderConflicts(t *testing.T) {
	err := renderConflicts(map[gitmeta.Path]bool{"s": true, "t": true})
	require.Error(t, err)

	var unresolved *metaerr.UnresolvedConflicts
	require.ErrorAs(t, err, &unresolved)
	assert.ElementsMatch(t, []string{"s", "t"}, unresolved.Paths)
}

func TestToStrBoolMap(t *testing.T) {
	got := toStrBoolMap(map[gitmeta.Path]bool{"libs/core": true, "app": false})
	assert.Equal(t, map[string]bool{"libs/core": true, "app": false}, got)
}

func TestSubShellOfPrefersWorktree(t *testing.T) {
	withWorktree := &gitobj.Repository{Root: "/meta/sub", GitDir: "/meta/.git/modules/sub"}
	assert.Equal(t, "/meta/sub", subShellOf(withWorktree).Dir())

	bare := &gitobj.Repository{GitDir: "/meta/.git/modules/sub", Bare: true}
	assert.Equal(t, "/meta/.git/modules/sub", subShellOf(bare).Dir())
}
