// Package stitch implements the stitch operation: walking meta-repo
// history and, for each commit not yet converted, folding every
// submodule's tree into the meta tree at its path so the result reads as
// an ordinary single-repo history with no gitlinks, while recording
// enough metadata in git notes to make the conversion resumable and to
// map stitched commits back to their meta/submodule origins.
//
// The walk is oldest-first, skipping commits already carrying a
// converted note. The tree construction is built on gitshell's index
// primitives (ListTreeRecursive / UpdateIndexInfo / WriteIndexTree) so
// `git write-tree` builds the nested tree objects, rather than
// hand-rolling recursive mktree calls.
package stitch

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/workqueue"
)

const (
	convertedRef   = "refs/notes/stitched/converted"
	referenceRef   = "refs/notes/stitched/reference"
	changeCacheRef = "refs/notes/stitched/change_cache"
	whitelistRef   = "refs/notes/stitched/whitelist"
)

// Options configures a Stitch run.
type Options struct {
	// Keep names submodule paths that stay real gitlinks in the
	// stitched tree instead of having their content inlined.
	Keep []string
	// JoinRoot, if non-empty, re-roots the stitched tree at this
	// subdirectory of the meta tree; every path outside it is dropped.
	JoinRoot string
	// SkipEmpty omits a stitched commit whose tree is identical to its
	// sole stitched parent's, recording it as converted to the empty
	// sha so children still resolve through it.
	SkipEmpty bool
	// Whitelist names original meta commits allowed to drop a
	// submodule whose pinned commit cannot be resolved, instead of
	// failing the whole run. This augments (does not replace) any
	// commit already carrying a note on refs/notes/stitched/whitelist.
	Whitelist map[gitshell.Hash]bool
	// Parallelism bounds concurrent per-submodule tree fetches.
	Parallelism int
	// TargetRef, if set, is updated to the final stitched head.
	TargetRef string
}

// Outcome summarizes a completed run.
type Outcome struct {
	Head           gitshell.Hash
	CommitsWritten int
	CommitsSkipped int
}

// Engine drives stitch for one meta-repo.
type Engine struct {
	Shell   *gitshell.Repository
	Obj     *gitobj.Repository
	Opener  *opener.Opener
	Fetcher *fetcher.SubmoduleFetcher
	Log     *log.Logger
}

// New constructs a stitch Engine.
func New(shell *gitshell.Repository, obj *gitobj.Repository, op *opener.Opener, f *fetcher.SubmoduleFetcher, logger *log.Logger) *Engine {
	return &Engine{Shell: shell, Obj: obj, Opener: op, Fetcher: f, Log: logger}
}

// Stitch converts every not-yet-converted ancestor of head, oldest first,
// updating opts.TargetRef to the final stitched head if set.
func (e *Engine) Stitch(ctx context.Context, head gitshell.Hash, opts Options) (*Outcome, error) {
	all, err := e.Shell.ListAncestors(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("list ancestors of %s: %w", head.Short(), err)
	}

	parentsOf := make(map[gitshell.Hash][]gitshell.Hash, len(all))
	for _, ci := range all {
		parentsOf[ci.Hash] = ci.ParentHashes
	}

	converted := e.Shell.Notes(convertedRef)
	reference := e.Shell.Notes(referenceRef)
	changeCache := e.Shell.Notes(changeCacheRef)
	whitelist := e.Shell.Notes(whitelistRef)
	isWhitelisted := func(h gitshell.Hash) bool {
		return opts.Whitelist[h] || whitelist.Has(ctx, h)
	}

	var pending []gitshell.CommitInfo
	for _, ci := range all {
		if !converted.Has(ctx, ci.Hash) {
			pending = append(pending, ci)
		}
	}

	keep := make(map[string]bool, len(opts.Keep))
	for _, k := range opts.Keep {
		keep[k] = true
	}
	adjust := makeAdjustPathFunction(opts.JoinRoot)
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = workqueue.DefaultParallelism
	}

	out := &Outcome{}
	for _, ci := range pending {
		parents, err := resolveStitchedParents(ctx, converted, parentsOf, ci.Hash)
		if err != nil {
			return nil, err
		}

		stitched, subCommits, changes, err := e.writeStitchedCommit(ctx, ci, parents, keep, adjust, opts.SkipEmpty, isWhitelisted, parallelism)
		if err != nil {
			return nil, fmt.Errorf("stitch %s: %w", ci.Hash.Short(), err)
		}

		if err := converted.Add(ctx, ci.Hash, stitched.String()); err != nil {
			return nil, fmt.Errorf("record converted note for %s: %w", ci.Hash.Short(), err)
		}
		if stitched == "" {
			out.CommitsSkipped++
			continue
		}
		out.CommitsWritten++
		out.Head = stitched

		if err := reference.Add(ctx, stitched, encodeReference(ci.Hash, subCommits)); err != nil {
			return nil, fmt.Errorf("record reference note for %s: %w", stitched.Short(), err)
		}
		if len(changes) > 0 {
			if err := changeCache.Add(ctx, ci.Hash, encodeChangeCache(changes)); err != nil {
				return nil, fmt.Errorf("record change_cache note for %s: %w", ci.Hash.Short(), err)
			}
		}
	}

	if opts.TargetRef != "" && out.Head != "" {
		old, _ := e.Shell.RevParse(ctx, opts.TargetRef)
		if err := e.Shell.UpdateRef(ctx, opts.TargetRef, out.Head, old); err != nil {
			return nil, fmt.Errorf("update %s: %w", opts.TargetRef, err)
		}
	}
	return out, nil
}

// resolveStitchedParents maps orig's direct parents to their stitched
// equivalents, following through any parent that was itself skipped
// (recorded as converted to the empty sha) to that parent's own parents,
// and deduplicating the result.
func resolveStitchedParents(ctx context.Context, converted *gitshell.Notes, parentsOf map[gitshell.Hash][]gitshell.Hash, orig gitshell.Hash) ([]gitshell.Hash, error) {
	var out []gitshell.Hash
	seen := make(map[gitshell.Hash]bool)

	var walk func(h gitshell.Hash) error
	walk = func(h gitshell.Hash) error {
		for _, p := range parentsOf[h] {
			note, err := converted.Show(ctx, p)
			if err != nil {
				return fmt.Errorf("parent %s of %s has no converted note yet", p.Short(), h.Short())
			}
			if note == "" {
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			sha := gitshell.Hash(note)
			if !seen[sha] {
				seen[sha] = true
				out = append(out, sha)
			}
		}
		return nil
	}
	if err := walk(orig); err != nil {
		return nil, err
	}
	return out, nil
}

// adjustFunc implements --join-root: paths outside the chosen root are
// dropped (ok=false); paths under it are re-rooted relative to it.
type adjustFunc func(path string) (adjusted string, ok bool)

func makeAdjustPathFunction(root string) adjustFunc {
	if root == "" {
		return func(p string) (string, bool) { return p, true }
	}
	prefix := root + "/"
	return func(p string) (string, bool) {
		if !strings.HasPrefix(p, prefix) {
			return "", false
		}
		return strings.TrimPrefix(p, prefix), true
	}
}

func subShellOf(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}
