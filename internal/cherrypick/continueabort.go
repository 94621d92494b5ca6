package cherrypick

import (
	"context"
	"fmt"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/metaerr"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sequencer"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
)

// Continue resumes an in-progress cherry-pick, symmetric to
// MergeEngine.Continue: every open sub still mid-pick gets its
// conflicted index committed with a single parent (its own pre-pick
// HEAD), then the meta commit is created re-using the picked commit's
// author/message. Open subs without a sequencer state of their own are
// left as they are; changes staged in them are not committed.
func (e *Engine) Continue(ctx context.Context) (*Outcome, error) {
	state, err := sequencer.Read(e.GitDir, gitmeta.OpCherryPick)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, &metaerr.NoMergeInProgress{Op: "cherry-pick"}
	}

	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return nil, err
	}

	var unresolved []string
	for name := range openSubs {
		sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare)
		if err != nil {
			continue
		}
		subShell := subShellOf(sub)
		subState, err := sequencer.Read(sub.GitDir, gitmeta.OpCherryPick)
		if err != nil || subState == nil {
			continue
		}
		conflicts, err := subShell.ConflictedPaths(ctx)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			unresolved = append(unresolved, conflicts...)
			continue
		}
		tree, err := subShell.WriteIndexTree(ctx, "")
		if err != nil {
			return nil, err
		}
		meta, err := subShell.ReadCommitMeta(ctx, gitshell.Hash(subState.Target.SHA.String()))
		if err != nil {
			return nil, err
		}
		commit, err := subShell.CommitTree(ctx, gitshell.CommitTreeRequest{
			Tree:      tree,
			Parents:   []gitshell.Hash{gitshell.Hash(subState.OriginalHead.SHA.String())},
			Message:   meta.Message,
			Author:    &meta.Author,
			Committer: &meta.Committer,
		})
		if err != nil {
			return nil, err
		}
		if err := subShell.SetHeadDetached(ctx, commit); err != nil {
			return nil, err
		}
		if err := e.Shell.UpdateIndex(ctx, []gitshell.IndexEntry{{Mode: "160000", Hash: commit, Path: string(name)}}); err != nil {
			return nil, err
		}
		_ = sequencer.Clean(sub.GitDir, gitmeta.OpCherryPick)
	}
	if len(unresolved) > 0 {
		return nil, &metaerr.UnresolvedConflicts{Paths: unresolved}
	}

	if sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir) {
		if err := sparsecheckout.SetSparseBitsAndWriteIndex(ctx, e.Shell, toStrBoolMap(openSubs)); err != nil {
			return nil, err
		}
	}

	head := gitshell.Hash(state.OriginalHead.SHA.String())
	target := gitshell.Hash(state.Target.SHA.String())
	meta, err := e.Shell.ReadCommitMeta(ctx, target)
	if err != nil {
		return nil, err
	}
	tree, err := e.Shell.WriteIndexTree(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("write-tree: %w", err)
	}
	commit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      tree,
		Parents:   []gitshell.Hash{head},
		Message:   meta.Message,
		Author:    &meta.Author,
		Committer: &meta.Committer,
	})
	if err != nil {
		return nil, fmt.Errorf("commit-tree: %w", err)
	}
	if err := e.Shell.UpdateRef(ctx, "HEAD", commit, head); err != nil {
		return nil, err
	}
	_ = sequencer.Clean(e.GitDir, gitmeta.OpCherryPick)
	return &Outcome{FinishSHA: commit}, nil
}

// Abort restores every open sub and the meta repo to their pre-pick
// state, symmetric to MergeEngine.Abort.
func (e *Engine) Abort(ctx context.Context) error {
	state, err := sequencer.Read(e.GitDir, gitmeta.OpCherryPick)
	if err != nil {
		return err
	}
	if state == nil {
		return &metaerr.NoMergeInProgress{Op: "cherry-pick"}
	}

	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return err
	}
	for name := range openSubs {
		sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare)
		if err != nil {
			continue
		}
		subShell := subShellOf(sub)
		subState, serr := sequencer.Read(sub.GitDir, gitmeta.OpCherryPick)

		head, _ := subShell.RevParse(ctx, "HEAD")
		_ = subShell.ResetMerge(ctx, head)
		if serr == nil && subState != nil {
			pre := gitshell.Hash(subState.OriginalHead.SHA.String())
			if head != pre {
				_ = subShell.Reset(ctx, pre, gitshell.ResetSoft)
				_ = subShell.ResetMerge(ctx, pre)
			}
			_ = sequencer.Clean(sub.GitDir, gitmeta.OpCherryPick)
		}
	}

	head := gitshell.Hash(state.OriginalHead.SHA.String())
	if err := e.Shell.ResetMerge(ctx, head); err != nil {
		return fmt.Errorf("reset --merge: %w", err)
	}
	return sequencer.Clean(e.GitDir, gitmeta.OpCherryPick)
}
