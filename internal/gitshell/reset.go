package gitshell

import (
	"context"
	"fmt"
)

// ResetMode mirrors git reset's three top-level modes.
type ResetMode int

const (
	ResetSoft ResetMode = iota
	ResetMixed
	ResetHard
)

func (m ResetMode) flag() string {
	switch m {
	case ResetSoft:
		return "--soft"
	case ResetHard:
		return "--hard"
	default:
		return "--mixed"
	}
}

// Reset resets HEAD (and, for Mixed/Hard, the index/worktree) to commit.
func (r *Repository) Reset(ctx context.Context, commit Hash, mode ResetMode) error {
	return r.cmd(ctx, "reset", mode.flag(), commit.String()).Run(r.exec)
}

// ResetPath unstages path back to its content in commit, without touching
// HEAD or the working tree (`git reset <commit> -- <path>`).
func (r *Repository) ResetPath(ctx context.Context, commit Hash, path string) error {
	return r.cmd(ctx, "reset", commit.String(), "--", path).Run(r.exec)
}

// ResetMerge aborts an in-progress merge's index/worktree changes while
// preserving other uncommitted work (`git reset --merge`), used by
// MergeEngine.Abort.
func (r *Repository) ResetMerge(ctx context.Context, commit Hash) error {
	return r.cmd(ctx, "reset", "--merge", commit.String()).Run(r.exec)
}

// CheckoutOptions configures Checkout.
type CheckoutOptions struct {
	Branch string // create/switch to this branch name; empty means detached
	Create bool
	Force  bool
}

// Checkout switches the working tree to commit, optionally creating or
// moving a branch.
func (r *Repository) Checkout(ctx context.Context, commit Hash, opts CheckoutOptions) error {
	args := []string{"checkout"}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Branch != "" {
		if opts.Create {
			args = append(args, "-B", opts.Branch)
		} else {
			args = append(args, opts.Branch)
		}
	}
	args = append(args, commit.String())
	if err := r.cmd(ctx, args...).Run(r.exec); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	return nil
}

// SetHeadDetached points HEAD at commit without touching the index or
// working tree (`git update-ref HEAD <commit>`), used when the engines
// have already written the index/worktree themselves (e.g. after a
// manual merge-tree + checkout-index sequence).
func (r *Repository) SetHeadDetached(ctx context.Context, commit Hash) error {
	return r.UpdateRef(ctx, "HEAD", commit, "")
}

// CheckoutIndex materializes the current index into the working tree,
// used after staging a manually-built conflict index so the user has real
// conflict markers to resolve.
func (r *Repository) CheckoutIndex(ctx context.Context, paths ...string) error {
	args := []string{"checkout-index", "-f", "-u"}
	if len(paths) == 0 {
		args = append(args, "-a")
	} else {
		args = append(args, "--")
		args = append(args, paths...)
	}
	return r.cmd(ctx, args...).Run(r.exec)
}

// AddPath stages a path from the working tree into the index.
func (r *Repository) AddPath(ctx context.Context, path string) error {
	return r.cmd(ctx, "add", "--", path).Run(r.exec)
}
