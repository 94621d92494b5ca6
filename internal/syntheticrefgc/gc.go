// Package syntheticrefgc prunes redundant refs/commits/<sha> synthetic
// refs from server-side submodule repositories. A synthetic ref exists to
// keep a submodule commit alive across GC; once some later pinned commit
// reaches it, its own ref is redundant because the later ref keeps the
// whole ancestry. The walk enumerates branch refs, derives each sub's
// pinned commits from the tips, and batch-removes the redundant refs in
// the sub's own object store.
package syntheticrefgc

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
	"github.com/git-meta/git-meta/internal/workqueue"
)

const syntheticPrefix = "refs/commits/"

// Options configures a GC run.
type Options struct {
	// DryRun reports what would be pruned without deleting anything.
	DryRun bool
	// Concurrency bounds parallel per-subrepo pruning.
	Concurrency int
}

// Outcome summarizes a completed run.
type Outcome struct {
	ReposVisited int
	RefsRemoved  int
	RefsKept     int
}

// Engine prunes synthetic refs for one meta-repo's submodule universe.
type Engine struct {
	Shell   *gitshell.Repository
	Locator submoduleconfig.ServerLocator
	Log     *log.Logger
	Out     io.Writer
}

// New constructs a GC Engine; out receives the per-ref "Would remove"
// lines in dry-run mode.
func New(shell *gitshell.Repository, locator submoduleconfig.ServerLocator, logger *log.Logger, out io.Writer) *Engine {
	return &Engine{Shell: shell, Locator: locator, Log: logger, Out: out}
}

// Run walks every persistent meta ref, collects the submodule commits
// each ref's tip pins ("class-A roots", one set per server-side bare sub
// repo), and removes every synthetic ref whose commit is a strict
// ancestor of a root: the root's own ref keeps that history alive.
func (e *Engine) Run(ctx context.Context, opts Options) (*Outcome, error) {
	roots, err := e.collectRoots(ctx)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(roots))
	for p := range roots {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	items := make([]workqueue.Item[string], len(paths))
	for i, p := range paths {
		items[i] = workqueue.Item[string]{Name: p, Val: p}
	}

	out := &Outcome{}
	results, err := workqueue.Run(ctx, items, opts.Concurrency, func(ctx context.Context, it workqueue.Item[string]) (pruneResult, error) {
		return e.pruneSubrepo(ctx, it.Val, roots[it.Val], opts.DryRun)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		out.ReposVisited++
		out.RefsRemoved += r.removed
		out.RefsKept += r.kept
	}
	return out, nil
}

// collectRoots maps each reachable server-side sub repo path to the set
// of sub commits pinned by the tips of refs/heads/*.
func (e *Engine) collectRoots(ctx context.Context) (map[string]map[gitshell.Hash]bool, error) {
	heads, err := e.Shell.ForEachRef(ctx, "refs/heads/")
	if err != nil {
		return nil, err
	}

	roots := map[string]map[gitshell.Hash]bool{}
	for ref, tip := range heads {
		tree, err := e.Shell.RevParse(ctx, tip.String()+"^{tree}")
		if err != nil {
			return nil, fmt.Errorf("resolve tree of %s: %w", ref, err)
		}
		entries, err := e.Shell.ListTreeRecursive(ctx, tree)
		if err != nil {
			return nil, err
		}
		urls, err := gitmodulesAt(ctx, e.Shell, tip)
		if err != nil {
			return nil, err
		}
		for _, te := range entries {
			if !te.IsGitlink() {
				continue
			}
			url, ok := urls[te.Name]
			if !ok {
				continue
			}
			local := e.Locator.LocalPath(url)
			if local == "" {
				e.Log.Debug("submodule url outside configured base; skipping", "submodule", te.Name, "url", url)
				continue
			}
			if roots[local] == nil {
				roots[local] = map[gitshell.Hash]bool{}
			}
			roots[local][te.Hash] = true
		}
	}
	return roots, nil
}

type pruneResult struct {
	removed int
	kept    int
}

func (e *Engine) pruneSubrepo(ctx context.Context, dir string, rootSet map[gitshell.Hash]bool, dryRun bool) (pruneResult, error) {
	sub := gitshell.Open(dir, e.Log)

	synthetic, err := sub.ForEachRef(ctx, syntheticPrefix)
	if err != nil {
		return pruneResult{}, fmt.Errorf("list synthetic refs in %s: %w", dir, err)
	}
	if len(synthetic) == 0 {
		return pruneResult{}, nil
	}

	reachable := map[gitshell.Hash]bool{}
	for root := range rootSet {
		ancestors, err := sub.ListAncestors(ctx, root)
		if err != nil {
			// A root the server never received is not ours to prune around.
			e.Log.Warn("root commit unresolvable in subrepo; keeping its refs", "repo", dir, "root", root.Short(), "err", err)
			continue
		}
		for _, ci := range ancestors {
			reachable[ci.Hash] = true
		}
	}

	redundant := Redundant(synthetic, reachable, rootSet)
	kept := len(synthetic) - len(redundant)

	if dryRun {
		sort.Strings(redundant)
		for _, ref := range redundant {
			fmt.Fprintf(e.Out, "Would remove %s in %s\n", ref, dir)
		}
		return pruneResult{removed: len(redundant), kept: kept}, nil
	}
	if err := sub.DeleteRefs(ctx, redundant); err != nil {
		return pruneResult{}, fmt.Errorf("delete refs in %s: %w", dir, err)
	}
	return pruneResult{removed: len(redundant), kept: kept}, nil
}

// Redundant returns the synthetic refs safe to delete: those whose target
// is reachable from a root but is not itself a root. Refs whose name does
// not match their target are kept; something else owns them.
func Redundant(synthetic map[string]gitshell.Hash, reachable, roots map[gitshell.Hash]bool) []string {
	var out []string
	for name, target := range synthetic {
		sha := strings.TrimPrefix(name, syntheticPrefix)
		if string(target) != sha {
			continue
		}
		if roots[target] {
			continue
		}
		if reachable[target] {
			out = append(out, name)
		}
	}
	return out
}

// gitmodulesAt reads name->url from .gitmodules as of commit, tolerating
// a commit with no .gitmodules at all.
func gitmodulesAt(ctx context.Context, shell *gitshell.Repository, commit gitshell.Hash) (map[string]string, error) {
	blob, err := shell.RevParse(ctx, commit.String()+":.gitmodules")
	if err != nil {
		return map[string]string{}, nil
	}
	data, err := shell.ReadBlob(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules at %s: %w", commit.Short(), err)
	}
	return submoduleconfig.ParseGitmodules(string(data)), nil
}
