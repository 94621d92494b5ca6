package gitobj

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitNode is a commit paired with the submodule gitlinks reachable in
// its tree; the stitch engine walks these to flatten meta + submodule
// history.
type CommitNode struct {
	Commit     *object.Commit
	Submodules []SubmoduleEntry
}

// LoadCommitNode resolves h's commit and every submodule gitlink in its
// tree, nested ones included.
func (r *Repository) LoadCommitNode(h Hash) (*CommitNode, error) {
	c, err := r.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", h.String()[:8], err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("tree of %s: %w", h.String()[:8], err)
	}
	subs, err := r.ListSubmodules(tree)
	if err != nil {
		return nil, err
	}
	return &CommitNode{Commit: c, Submodules: subs}, nil
}

// WalkAncestors visits h and every ancestor reachable from it exactly
// once, in no particular order, stopping early if visit returns false.
func (r *Repository) WalkAncestors(h Hash, visit func(*object.Commit) bool) error {
	seen := map[Hash]bool{}
	var stack []Hash
	stack = append(stack, h)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] || cur.IsZero() {
			continue
		}
		seen[cur] = true
		c, err := r.CommitObject(cur)
		if err != nil {
			return fmt.Errorf("commit %s: %w", cur.String()[:8], err)
		}
		if !visit(c) {
			return nil
		}
		for _, p := range c.ParentHashes {
			stack = append(stack, Hash(p))
		}
	}
	return nil
}
