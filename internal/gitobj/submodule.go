package gitobj

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SubmoduleEntry is one gitlink found while walking a tree. The scan
// descends into subtrees, so nested gitlinks are reported with their full
// paths.
type SubmoduleEntry struct {
	Path string
	SHA  Hash
	URL  string // resolved from .gitmodules, "" if absent
}

// ListSubmodules returns the gitlink entries in tree, paired with the URL
// recorded for them in .gitmodules at that same commit.
func (r *Repository) ListSubmodules(tree *object.Tree) ([]SubmoduleEntry, error) {
	urls, _ := parseGitmodulesFromTree(tree)

	var out []SubmoduleEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if entry.Mode.String() != "160000" {
			continue
		}
		out = append(out, SubmoduleEntry{
			Path: name,
			SHA:  Hash(entry.Hash),
			URL:  urls[name],
		})
	}
	return out, nil
}

func parseGitmodulesFromTree(tree *object.Tree) (map[string]string, error) {
	f, err := tree.File(".gitmodules")
	if err != nil {
		return map[string]string{}, nil
	}
	contents, err := f.Contents()
	if err != nil {
		return map[string]string{}, err
	}
	return ParseGitmodulesURLs(contents), nil
}

// Worktree.Submodules() requires a worktree-backed repo; this variant is
// used by the opener/fetcher packages which operate on a live checkout.
func (r *Repository) LiveSubmodules() ([]*git.Submodule, error) {
	wt, err := r.Repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	subs, err := wt.Submodules()
	if err != nil {
		return nil, fmt.Errorf("submodules: %w", err)
	}
	out := make([]*git.Submodule, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out, nil
}
