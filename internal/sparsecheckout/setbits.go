package sparsecheckout

import (
	"context"
	"fmt"

	"github.com/git-meta/git-meta/internal/gitshell"
)

// SetSparseBitsAndWriteIndex walks every index entry and sets
// SKIP_WORKTREE on all paths except ".gitmodules" and the gitlinks of
// openSubs, clearing it on those two categories, then leaves the index
// ready to write. Per spec, this is the only legal way to touch the index
// after open/close in sparse mode: every other mutation must route
// through here afterward so the two categories stay in sync.
func SetSparseBitsAndWriteIndex(ctx context.Context, r *gitshell.Repository, openSubs map[string]bool) error {
	entries, err := r.ListIndexFlags(ctx)
	if err != nil {
		return fmt.Errorf("list index entries: %w", err)
	}

	var toSkip, toShow []string
	for _, e := range entries {
		keep := e.Path == ".gitmodules" || openSubs[e.Path]
		switch {
		case keep && e.SkipWorktree:
			toShow = append(toShow, e.Path)
		case !keep && !e.SkipWorktree:
			toSkip = append(toSkip, e.Path)
		}
	}
	if err := r.SetSkipWorktree(ctx, false, toShow); err != nil {
		return fmt.Errorf("clear skip-worktree: %w", err)
	}
	if err := r.SetSkipWorktree(ctx, true, toSkip); err != nil {
		return fmt.Errorf("set skip-worktree: %w", err)
	}
	return nil
}
