// Package changes classifies the per-submodule differences between a base
// tree and a target commit into simple (machine-appliable) changes,
// needs-pick changes, and conflicts, by comparing each affected gitlink
// against the three relevant sides: HEAD's entry, the change's old sha,
// and the change's new sha.
package changes

import (
	"context"
	"fmt"
	"strings"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/metaerr"
)

// Result is the outcome of computeChanges.
type Result struct {
	// Changes needing a real 3-way merge/pick per submodule.
	Changes map[gitmeta.Path]gitmeta.SubmoduleChange
	// SimpleChanges can be applied mechanically (add/remove/fast-forward).
	SimpleChanges map[gitmeta.Path]gitmeta.SubmoduleChange
	// Conflicts are changes that cannot be resolved without user input.
	Conflicts map[gitmeta.Path]gitmeta.Conflict
}

func newResult() *Result {
	return &Result{
		Changes:       map[gitmeta.Path]gitmeta.SubmoduleChange{},
		SimpleChanges: map[gitmeta.Path]gitmeta.SubmoduleChange{},
		Conflicts:     map[gitmeta.Path]gitmeta.Conflict{},
	}
}

// Computer drives computeChanges against a meta-repo.
type Computer struct {
	Shell *gitshell.Repository
}

// New constructs a Computer.
func New(shell *gitshell.Repository) *Computer {
	return &Computer{Shell: shell}
}

// ComputeChanges resolves base (mergeBase(HEAD, commit) if fromBase, else
// commit's first parent), diffs base's tree to commit's tree, and
// classifies every gitlink path against HEAD's entry for it.
func (c *Computer) ComputeChanges(ctx context.Context, head, commit gitshell.Hash, fromBase bool) (*Result, error) {
	base, err := c.resolveBase(ctx, head, commit, fromBase)
	if err != nil {
		return nil, err
	}

	diffs, err := c.Shell.DiffTrees(ctx, base, commit, false)
	if err != nil {
		return nil, fmt.Errorf("diff base to commit: %w", err)
	}

	headEntries, err := c.headEntries(ctx, head)
	if err != nil {
		return nil, err
	}

	result := newResult()
	for _, d := range diffs {
		if d.OldMode != "160000" && d.NewMode != "160000" {
			if d.Path == ".gitmodules" {
				continue
			}
			return nil, &metaerr.NonSubChangeUnsupported{Commit: string(commit), Path: d.Path}
		}
		name := gitmeta.Path(d.Path)
		oldSHA := hashOrZero(d.OldHash)
		newSHA := hashOrZero(d.NewHash)
		headSHA, state := headStateAt(headEntries, name)

		classify(result, name, headSHA, state, oldSHA, newSHA)
	}
	return result, nil
}

// headState describes what HEAD's tree holds at a path the diff touches.
type headState int

const (
	headAbsent headState = iota
	headGitlink
	// headNonGitlink covers a regular file, symlink, or directory at the
	// path; a submodule change can never apply on top of one.
	headNonGitlink
)

func classify(result *Result, name gitmeta.Path, head gitmeta.SHA, state headState, old, new_ gitmeta.SHA) {
	if state == headNonGitlink {
		result.Conflicts[name] = gitmeta.Conflict{Path: name}
		return
	}
	hasHead := state == headGitlink
	switch {
	case !hasHead && old.IsZero() && !new_.IsZero():
		result.SimpleChanges[name] = gitmeta.SubmoduleChange{Name: name, OldSHA: old, NewSHA: new_}
	case !hasHead && !old.IsZero() && new_.IsZero():
		// removed on both sides already; nothing to do.
	case !hasHead && !old.IsZero() && !new_.IsZero():
		result.Conflicts[name] = gitmeta.Conflict{Path: name}
	case hasHead && old.IsZero() && !new_.IsZero():
		if head == new_ {
			return
		}
		result.Conflicts[name] = gitmeta.Conflict{Path: name}
	case hasHead && !old.IsZero() && new_.IsZero():
		if head == old {
			result.SimpleChanges[name] = gitmeta.SubmoduleChange{Name: name, OldSHA: old, NewSHA: new_, OurSHA: head}
		} else {
			result.Conflicts[name] = gitmeta.Conflict{Path: name}
		}
	case hasHead && !old.IsZero() && !new_.IsZero():
		switch head {
		case old:
			result.Changes[name] = gitmeta.SubmoduleChange{Name: name, OldSHA: old, NewSHA: new_, OurSHA: head}
		case new_:
			result.SimpleChanges[name] = gitmeta.SubmoduleChange{Name: name, OldSHA: old, NewSHA: new_, OurSHA: head}
		default:
			result.Changes[name] = gitmeta.SubmoduleChange{Name: name, OldSHA: old, NewSHA: new_, OurSHA: head}
		}
	}
}

func (c *Computer) resolveBase(ctx context.Context, head, commit gitshell.Hash, fromBase bool) (gitshell.Hash, error) {
	if !fromBase {
		return c.firstParent(ctx, commit)
	}
	base, err := c.Shell.MergeBase(ctx, head, commit)
	if err != nil {
		return "", &metaerr.NoCommonAncestor{A: string(head), B: string(commit)}
	}
	return base, nil
}

func (c *Computer) firstParent(ctx context.Context, commit gitshell.Hash) (gitshell.Hash, error) {
	return c.Shell.RevParse(ctx, commit.String()+"^")
}

// headEntry is HEAD's tree entry at one path, gitlink or not.
type headEntry struct {
	sha     gitmeta.SHA
	gitlink bool
}

func (c *Computer) headEntries(ctx context.Context, head gitshell.Hash) (map[gitmeta.Path]headEntry, error) {
	out := map[gitmeta.Path]headEntry{}
	if head.IsZero() {
		return out, nil
	}
	entries, err := c.Shell.ListTreeRecursive(ctx, head)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[gitmeta.Path(e.Name)] = headEntry{sha: gitmeta.SHA(e.Hash.String()), gitlink: e.IsGitlink()}
	}
	return out, nil
}

// headStateAt resolves what HEAD holds at name: a gitlink (with its sha),
// something else (a plain file, or a directory, detected by any entry
// living under name/), or nothing.
func headStateAt(entries map[gitmeta.Path]headEntry, name gitmeta.Path) (gitmeta.SHA, headState) {
	if e, ok := entries[name]; ok {
		if e.gitlink {
			return e.sha, headGitlink
		}
		return "", headNonGitlink
	}
	prefix := string(name) + "/"
	for p := range entries {
		if strings.HasPrefix(string(p), prefix) {
			return "", headNonGitlink
		}
	}
	return "", headAbsent
}

func hashOrZero(h gitshell.Hash) gitmeta.SHA {
	if h.IsZero() || h == "" {
		return gitmeta.ZeroSHA
	}
	return gitmeta.SHA(h.String())
}

// ContainsURLChanges reports whether .gitmodules differs between base and
// commit in a way that changes the URL of a submodule name present in
// both revisions.
func (c *Computer) ContainsURLChanges(ctx context.Context, base, commit gitshell.Hash) (bool, error) {
	diffs, err := c.Shell.DiffTrees(ctx, base, commit, false)
	if err != nil {
		return false, err
	}
	for _, d := range diffs {
		if d.Path != ".gitmodules" {
			continue
		}
		oldBlob, err1 := c.Shell.ReadBlob(ctx, d.OldHash)
		newBlob, err2 := c.Shell.ReadBlob(ctx, d.NewHash)
		if err1 != nil || err2 != nil {
			return true, nil
		}
		return urlsDiffer(string(oldBlob), string(newBlob)), nil
	}
	return false, nil
}

func urlsDiffer(oldContent, newContent string) bool {
	oldURLs := gitobj.ParseGitmodulesURLs(oldContent)
	newURLs := gitobj.ParseGitmodulesURLs(newContent)
	for name, oldURL := range oldURLs {
		if newURL, ok := newURLs[name]; ok && newURL != oldURL {
			return true
		}
	}
	return false
}
