// Package subreplay implements the per-submodule commit-range replay
// shared by the cherry-pick and rebase engines: both need to take a
// linear range of submodule commits and recreate them on top of a
// different parent, preserving author/committer/message, stopping and
// materializing conflict markers on the first commit that doesn't merge
// cleanly. Each commit is replayed with one merge-tree --write-tree call
// against its recorded first parent as the base.
package subreplay

import (
	"context"
	"fmt"

	"github.com/git-meta/git-meta/internal/gitshell"
)

// Result is the outcome of replaying a (possibly partial) commit range.
type Result struct {
	NewHead        gitshell.Hash
	CommitMap      map[gitshell.Hash]gitshell.Hash // original sha -> replayed sha
	ConflictCommit gitshell.Hash                   // "" if the whole range replayed cleanly
	ConflictPaths  []string
}

// Range lists the commits in (from, to], oldest first, by walking to's
// ancestry and stopping at from. Merge commits are included and replayed
// against their first parent only; nested submodule histories this
// system produces are expected to be linear; a merge commit here is
// treated as if it were non-merge, carrying forward only its first
// parent's content.
func Range(ctx context.Context, shell *gitshell.Repository, from, to gitshell.Hash) ([]gitshell.Hash, error) {
	infos, err := shell.ListAncestors(ctx, to, from)
	if err != nil {
		return nil, fmt.Errorf("list range %s..%s: %w", from.Short(), to.Short(), err)
	}
	out := make([]gitshell.Hash, 0, len(infos))
	for _, ci := range infos {
		out = append(out, ci.Hash)
	}
	return out, nil
}

// Replay recreates each commit in commits (oldest first) on top of onto,
// via a merge-tree 3-way merge against the commit's recorded first
// parent as the merge base. It stops at the first conflict, leaving the
// sub's real index/worktree holding the conflicted state and the
// remaining commits unreplayed.
func Replay(ctx context.Context, shell *gitshell.Repository, commits []gitshell.Hash, onto gitshell.Hash) (*Result, error) {
	result := &Result{NewHead: onto, CommitMap: map[gitshell.Hash]gitshell.Hash{}}

	for _, c := range commits {
		meta, err := shell.ReadCommitMeta(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", c.Short(), err)
		}

		mt, err := shell.MergeTree(ctx, gitshell.MergeTreeRequest{Base: meta.Parent, Ours: result.NewHead, Theirs: c})
		if err != nil {
			return nil, fmt.Errorf("merge-tree %s onto %s: %w", c.Short(), result.NewHead.Short(), err)
		}

		if !mt.Clean {
			if err := materializeConflict(ctx, shell, meta.Parent, mt); err != nil {
				return nil, err
			}
			result.ConflictCommit = c
			for _, cf := range mt.Conflicts {
				result.ConflictPaths = append(result.ConflictPaths, cf.Path)
			}
			return result, nil
		}

		newCommit, err := shell.CommitTree(ctx, gitshell.CommitTreeRequest{
			Tree:      mt.Tree,
			Parents:   []gitshell.Hash{result.NewHead},
			Message:   meta.Message,
			Author:    &meta.Author,
			Committer: &meta.Committer,
		})
		if err != nil {
			return nil, fmt.Errorf("commit-tree replaying %s: %w", c.Short(), err)
		}
		result.CommitMap[c] = newCommit
		result.NewHead = newCommit
	}
	return result, nil
}

func materializeConflict(ctx context.Context, shell *gitshell.Repository, base gitshell.Hash, mt *gitshell.MergeTreeResult) error {
	if err := shell.ReadTreeReal(ctx, base); err != nil {
		return err
	}
	var entries []gitshell.IndexEntry
	for _, c := range mt.Conflicts {
		entries = append(entries, gitshell.IndexEntry{Mode: c.Mode, Hash: c.Hash, Stage: c.Stage, Path: c.Path})
	}
	if err := shell.UpdateIndexInfo(ctx, "", entries); err != nil {
		return err
	}
	return shell.CheckoutIndex(ctx)
}
