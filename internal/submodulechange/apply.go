// Package submodulechange applies the mechanical add/remove/fast-forward
// submodule changes that the changes package already classified as
// "simple", shared by the merge, cherry-pick, and rebase engines so the
// three composite operations stage gitlinks identically.
package submodulechange

import (
	"context"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

func subShellOf(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}

// ApplySimple applies every change in simple to the meta index, updating
// .gitmodules' URLs map in place and (unless forceBare) moving each open
// sub's HEAD to match. urls is mutated in place; only an error is
// returned.
func ApplySimple(ctx context.Context, shell *gitshell.Repository, op *opener.Opener, urls map[string]string, simple map[gitmeta.Path]gitmeta.SubmoduleChange, forceBare bool, workDir string) error {
	changed := false
	for name, change := range simple {
		changed = true
		switch change.Kind() {
		case gitmeta.ChangeRemoved:
			delete(urls, string(name))
			if err := shell.RemoveFromIndex(ctx, string(name)); err != nil {
				return err
			}
		default:
			if err := shell.UpdateIndex(ctx, []gitshell.IndexEntry{
				{Mode: "160000", Hash: gitshell.Hash(change.NewSHA.String()), Path: string(name)},
			}); err != nil {
				return err
			}
			if !forceBare {
				if sub, err := op.GetSubrepo(ctx, name, opener.AllowBare); err == nil && sub.Root != "" {
					_ = subShellOf(sub).SetHeadDetached(ctx, gitshell.Hash(change.NewSHA.String()))
				}
			}
		}
	}
	if changed {
		return submoduleconfig.WriteURLs(ctx, shell, workDir, urls, forceBare)
	}
	return nil
}
