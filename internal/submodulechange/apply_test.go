package submodulechange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
)

func TestApplySimpleEmptyIsNoOp(t *testing.T) {
	// With nothing to apply, ApplySimple must not rewrite .gitmodules or
	// touch the index at all; it never reaches the shell.
	urls := map[string]string{"s": "https://example.com/s"}
	err := ApplySimple(context.Background(), gitshell.Open(t.TempDir(), nil), nil, urls, nil, false, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"s": "https://example.com/s"}, urls)
}

func TestSubShellOfPrefersWorktree(t *testing.T) {
	withWorktree := &gitobj.Repository{Root: "/meta/sub", GitDir: "/meta/.git/modules/sub"}
	assert.Equal(t, "/meta/sub", subShellOf(withWorktree).Dir())

	bare := &gitobj.Repository{GitDir: "/meta/.git/modules/sub", Bare: true}
	assert.Equal(t, "/meta/.git/modules/sub", subShellOf(bare).Dir())
}

func TestChangeKindsDriveTheSwitch(t *testing.T) {
	// The apply loop dispatches on SubmoduleChange.Kind; pin the mapping
	// it relies on.
	const sha = gitmeta.SHA("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(t, gitmeta.ChangeRemoved, gitmeta.SubmoduleChange{OldSHA: sha}.Kind())
	assert.Equal(t, gitmeta.ChangeAdded, gitmeta.SubmoduleChange{NewSHA: sha}.Kind())
}
