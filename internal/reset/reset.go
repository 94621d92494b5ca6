// Package reset implements the composite `reset` operation: resetting the
// meta-repo and every affected open (or about-to-be-affected) submodule in
// lockstep, with the per-sub work fanned out bounded-parallel.
package reset

import (
	"context"
	"fmt"

	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/metaerr"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/workqueue"
)

// Engine drives reset/resetPaths for one meta-repo.
type Engine struct {
	Shell   *gitshell.Repository
	Obj     *gitobj.Repository
	GitDir  string
	Opener  *opener.Opener
	Fetcher *fetcher.SubmoduleFetcher
}

// New constructs a reset Engine.
func New(shell *gitshell.Repository, obj *gitobj.Repository, gitDir string, op *opener.Opener, f *fetcher.SubmoduleFetcher) *Engine {
	return &Engine{Shell: shell, Obj: obj, GitDir: gitDir, Opener: op, Fetcher: f}
}

// Reset resets HEAD (and, per mode, the index/worktree) to commit for the
// meta-repo and every affected submodule.
func (e *Engine) Reset(ctx context.Context, commit gitshell.Hash, mode gitshell.ResetMode) error {
	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		head = ""
	}

	changed, err := e.changedSubs(ctx, head, commit)
	if err != nil {
		return err
	}

	if err := e.Shell.Reset(ctx, commit, mode); err != nil {
		return fmt.Errorf("meta reset: %w", err)
	}

	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return err
	}

	toReset := map[gitmeta.Path]bool{}
	for n := range changed {
		toReset[n] = true
	}
	for n := range openSubs {
		toReset[n] = true
	}

	targetSHAs, err := e.targetSubSHAs(ctx, commit)
	if err != nil {
		return err
	}

	items := make([]workqueue.Item[gitmeta.Path], 0, len(toReset))
	for name := range toReset {
		items = append(items, workqueue.Item[gitmeta.Path]{Name: string(name), Val: name})
	}

	_, err = workqueue.Run(ctx, items, workqueue.DefaultParallelism, func(ctx context.Context, it workqueue.Item[gitmeta.Path]) (struct{}, error) {
		name := it.Val
		sha, hasTarget := targetSHAs[name]
		if ch, addedOrRemoved := changed[name]; addedOrRemoved && (ch.OldSHA.IsZero() || ch.NewSHA.IsZero()) {
			// no common sha to reset onto (added or removed between
			// HEAD and commit): nothing to do for this sub.
			return struct{}{}, nil
		}
		if mode == gitshell.ResetHard && !openSubs[name] {
			return struct{}{}, nil
		}
		if !hasTarget {
			return struct{}{}, nil
		}

		sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare)
		if err != nil {
			return struct{}{}, fmt.Errorf("open %q: %w", name, err)
		}
		if err := e.Fetcher.FetchSha(ctx, sub, name, sha); err != nil {
			return struct{}{}, err
		}
		subShell := newSubShell(sub)
		target := gitshell.Hash(sha.String())
		if err := subShell.Reset(ctx, target, mode); err != nil {
			return struct{}{}, fmt.Errorf("reset %q: %w", name, err)
		}
		if err := e.Shell.AddPath(ctx, string(name)); err != nil {
			return struct{}{}, fmt.Errorf("stage %q: %w", name, err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	if sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir) {
		return sparsecheckout.SetSparseBitsAndWriteIndex(ctx, e.Shell, toStrBoolMap(openSubs))
	}
	return nil
}

// ResetPaths implements the path-mode form of reset (`reset -- <paths>`):
// commit must be HEAD. Each path that addresses an open submodule gets its
// staged portion reset against the sub's own HEAD; meta paths reset
// directly against commit.
func (e *Engine) ResetPaths(ctx context.Context, cwd gitmeta.Path, commit gitshell.Hash, paths []gitmeta.Path) error {
	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil || head != commit {
		return &metaerr.CannotResetNonHEAD{Commit: commit.String()}
	}

	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return err
	}

	for _, p := range paths {
		full := p
		if cwd != "" {
			full = cwd.Join(string(p))
		}
		full = full.Clean()

		if subName, rest, ok := splitSubPath(full, openSubs); ok {
			sub, err := e.Opener.GetSubrepo(ctx, subName, opener.AllowBare)
			if err != nil {
				return fmt.Errorf("open %q: %w", subName, err)
			}
			subShell := newSubShell(sub)
			subHead, err := subShell.RevParse(ctx, "HEAD")
			if err != nil {
				continue
			}
			if rest == "" {
				if err := subShell.ResetPath(ctx, subHead, "."); err != nil {
					return err
				}
				continue
			}
			if err := subShell.ResetPath(ctx, subHead, rest); err != nil {
				return err
			}
			continue
		}
		if err := e.Shell.ResetPath(ctx, commit, string(full)); err != nil {
			return err
		}
	}
	return nil
}

func splitSubPath(p gitmeta.Path, openSubs map[gitmeta.Path]bool) (gitmeta.Path, string, bool) {
	s := string(p)
	for name := range openSubs {
		n := string(name)
		if s == n {
			return name, "", true
		}
		if len(s) > len(n) && s[:len(n)] == n && s[len(n)] == '/' {
			return name, s[len(n)+1:], true
		}
	}
	return "", "", false
}

// changedSubs returns the per-path SubmoduleChange for every gitlink that
// differs between head and commit's trees.
func (e *Engine) changedSubs(ctx context.Context, head, commit gitshell.Hash) (map[gitmeta.Path]gitmeta.SubmoduleChange, error) {
	out := map[gitmeta.Path]gitmeta.SubmoduleChange{}
	if head.IsZero() || head == "" {
		return out, nil
	}
	diffs, err := e.Shell.DiffTrees(ctx, head, commit, false)
	if err != nil {
		return nil, fmt.Errorf("diff HEAD to target: %w", err)
	}
	for _, d := range diffs {
		if d.OldMode != "160000" && d.NewMode != "160000" {
			continue
		}
		out[gitmeta.Path(d.Path)] = gitmeta.SubmoduleChange{
			Name:   gitmeta.Path(d.Path),
			OldSHA: hashOrZero(d.OldHash),
			NewSHA: hashOrZero(d.NewHash),
		}
	}
	return out, nil
}

// targetSubSHAs maps every gitlink path in commit's tree to its pinned sha.
func (e *Engine) targetSubSHAs(ctx context.Context, commit gitshell.Hash) (map[gitmeta.Path]gitmeta.SHA, error) {
	out := map[gitmeta.Path]gitmeta.SHA{}
	entries, err := e.Shell.ListTreeRecursive(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("ls-tree target: %w", err)
	}
	for _, entry := range entries {
		if entry.IsGitlink() {
			out[gitmeta.Path(entry.Name)] = gitmeta.SHA(entry.Hash.String())
		}
	}
	return out, nil
}

func hashOrZero(h gitshell.Hash) gitmeta.SHA {
	if h.IsZero() || h == "" {
		return gitmeta.ZeroSHA
	}
	return gitmeta.SHA(h.String())
}

func toStrBoolMap(m map[gitmeta.Path]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func newSubShell(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}
