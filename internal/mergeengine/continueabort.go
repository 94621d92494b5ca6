package mergeengine

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

// Continue resumes an in-progress merge: every open sub still mid-merge
// gets its conflicted index committed with [subHead, mergeHead] parents
// and the new sub commits are staged into the meta index, which is then
// committed with [head, mergeHead] parents. Open subs without a merge of
// their own are left as they are; changes staged in them are neither
// committed nor re-staged.
func (e *Engine) Continue(ctx context.Context, opts Options, overrideMessage string) (*Outcome, error) {
	state, err := sequencer.Read(e.GitDir, gitmeta.OpMerge)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, &metaerr.NoMergeInProgress{Op: "merge"}
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
		subShell := newSubShell(sub)
		subState, err := sequencer.Read(sub.GitDir, gitmeta.OpMerge)
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
		tree, err := subShell.WriteIndexTree(ctx, sub.GitDir+"/index")
		if err != nil {
			return nil, err
		}
		commit, err := subShell.CommitTree(ctx, gitshell.CommitTreeRequest{
			Tree:    tree,
			Parents: []gitshell.Hash{gitshell.Hash(subState.OriginalHead.SHA.String()), gitshell.Hash(subState.Target.SHA.String())},
			Message: subState.Message,
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
		_ = sequencer.Clean(sub.GitDir, gitmeta.OpMerge)
	}
	if len(unresolved) > 0 {
		return nil, &metaerr.UnresolvedConflicts{Paths: unresolved}
	}

	if sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir) {
		if err := sparsecheckout.SetSparseBitsAndWriteIndex(ctx, e.Shell, toStrBoolMap(openSubs)); err != nil {
			return nil, err
		}
	}

	message := state.Message
	if overrideMessage != "" {
		message = overrideMessage
	}
	tree, err := e.Shell.WriteIndexTree(ctx, e.GitDir+"/index")
	if err != nil {
		return nil, fmt.Errorf("write-tree: %w", err)
	}
	ours := gitshell.Hash(state.OriginalHead.SHA.String())
	theirs := gitshell.Hash(state.Target.SHA.String())
	commit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      tree,
		Parents:   []gitshell.Hash{ours, theirs},
		Message:   message,
		Author:    &opts.Author,
		Committer: &opts.Committer,
	})
	if err != nil {
		return nil, fmt.Errorf("commit-tree: %w", err)
	}
	if err := e.Shell.UpdateRef(ctx, "HEAD", commit, ours); err != nil {
		return nil, err
	}
	_ = sequencer.Clean(e.GitDir, gitmeta.OpMerge)
	return &Outcome{FinishSHA: commit}, nil
}

// Abort restores every open sub (and the meta repo) to its pre-merge
// state, running the equivalent of `git reset --merge` twice per sub if
// its HEAD still differs from the recorded pre-merge sha.
func (e *Engine) Abort(ctx context.Context) error {
	state, err := sequencer.Read(e.GitDir, gitmeta.OpMerge)
	if err != nil {
		return err
	}
	if state == nil {
		return &metaerr.NoMergeInProgress{Op: "merge"}
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
		subShell := newSubShell(sub)
		subState, serr := sequencer.Read(sub.GitDir, gitmeta.OpMerge)

		head, _ := subShell.RevParse(ctx, "HEAD")
		_ = subShell.ResetMerge(ctx, head)
		if serr == nil && subState != nil {
			pre := gitshell.Hash(subState.OriginalHead.SHA.String())
			if head != pre {
				_ = subShell.Reset(ctx, pre, gitshell.ResetSoft)
				_ = subShell.ResetMerge(ctx, pre)
			}
			_ = sequencer.Clean(sub.GitDir, gitmeta.OpMerge)
		}
	}

	ours := gitshell.Hash(state.OriginalHead.SHA.String())
	if err := e.Shell.ResetMerge(ctx, ours); err != nil {
		return fmt.Errorf("reset --merge: %w", err)
	}
	return sequencer.Clean(e.GitDir, gitmeta.OpMerge)
}
