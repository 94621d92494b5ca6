package gitobj

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// CheckoutDetached moves the worktree to h without a branch, used by the
// opener (C5) after cloning a submodule down to its pinned commit.
func (r *Repository) CheckoutDetached(h Hash) error {
	wt, err := r.Repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.Hash(h), Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", h.String()[:8], err)
	}
	return nil
}

// CheckoutBranch creates (if needed) and switches to branch at h.
func (r *Repository) CheckoutBranch(branch string, h Hash, create bool) error {
	wt, err := r.Repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.CheckoutOptions{Branch: ref, Force: true, Create: create}
	if create {
		if err := r.SetRef(ref.String(), h); err != nil {
			return err
		}
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branch, err)
	}
	return nil
}
