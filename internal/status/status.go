// Package status computes the per-submodule and meta-repo staged/workdir/
// head relations that drive `git-meta status`, recursing into every open
// submodule so one call yields the full nested picture.
package status

import (
	"context"
	"strings"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
)

// Options mirrors the recognized opts of getRepoStatus.
type Options struct {
	ShowAllUntracked bool
	Paths            []gitmeta.Path
	Cwd              gitmeta.Path
	ShowMetaChanges  bool
	IgnoreIndex      bool
}

// Engine computes RepoStatus trees for a meta-repo and its open subs.
type Engine struct {
	Shell  *gitshell.Repository
	Obj    *gitobj.Repository
	Opener *opener.Opener
}

// New constructs a status Engine.
func New(shell *gitshell.Repository, obj *gitobj.Repository, op *opener.Opener) *Engine {
	return &Engine{Shell: shell, Obj: obj, Opener: op}
}

// GetRepoStatus computes the full status tree for this repo according to
// opts.
func (e *Engine) GetRepoStatus(ctx context.Context, opts Options) (*gitmeta.RepoStatus, error) {
	st := gitmeta.NewRepoStatus()

	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err == nil {
		st.HeadCommit = gitmeta.SHA(head.String())
	}
	if branch, err := e.Shell.SymbolicRef(ctx, "HEAD"); err == nil {
		st.CurrentBranch = strings.TrimPrefix(branch, "refs/heads/")
	}
	st.Sparse = isSparse(ctx, e.Shell)

	if err := e.fillFileChanges(ctx, st, opts); err != nil {
		return nil, err
	}
	if err := e.fillSubmoduleStatuses(ctx, st, opts); err != nil {
		return nil, err
	}
	if len(opts.Paths) > 0 {
		filterByPaths(st, opts)
	}
	return st, nil
}

// IsDeepClean reports whether the repo and, transitively, every open
// submodule have no staged, workdir, or conflicted entries.
func (e *Engine) IsDeepClean(ctx context.Context, includeUntracked bool) (bool, error) {
	st, err := e.GetRepoStatus(ctx, Options{ShowMetaChanges: true})
	if err != nil {
		return false, err
	}
	return st.IsDeepClean(includeUntracked), nil
}

func (e *Engine) fillFileChanges(ctx context.Context, st *gitmeta.RepoStatus, opts Options) error {
	var staged []gitshell.DiffEntry
	var err error
	if opts.IgnoreIndex {
		staged = nil
	} else {
		staged, err = e.Shell.DiffHeadToIndex(ctx)
		if err != nil {
			return err
		}
	}
	for _, d := range staged {
		if !opts.ShowMetaChanges && d.IsGitlink() {
			continue
		}
		st.Staged[gitmeta.Path(d.Path)] = classify(d.Status)
	}

	workdir, err := e.Shell.DiffIndexToWorktree(ctx)
	if err != nil {
		return err
	}
	for _, d := range workdir {
		if !opts.ShowMetaChanges && d.IsGitlink() {
			continue
		}
		st.Workdir[gitmeta.Path(d.Path)] = classify(d.Status)
	}

	untracked, err := e.Shell.UntrackedFiles(ctx, opts.ShowAllUntracked)
	if err != nil {
		return err
	}
	for _, p := range untracked {
		st.Workdir[gitmeta.Path(p)] = gitmeta.ChangeFileAdded
	}

	conflicted, err := e.Shell.ConflictedPaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range conflicted {
		st.Staged[gitmeta.Path(p)] = gitmeta.ChangeFileConflicted
	}
	return nil
}

func classify(status byte) gitmeta.Change {
	switch status {
	case 'A':
		return gitmeta.ChangeFileAdded
	case 'D':
		return gitmeta.ChangeFileDeleted
	case 'T':
		return gitmeta.ChangeFileTypeChange
	case 'U':
		return gitmeta.ChangeFileConflicted
	default:
		return gitmeta.ChangeFileModified
	}
}

func isSparse(ctx context.Context, r *gitshell.Repository) bool {
	ok, err := r.ConfigBool(ctx, "core.sparsecheckout")
	return err == nil && ok
}

func filterByPaths(st *gitmeta.RepoStatus, opts Options) {
	allowed := map[gitmeta.Path]bool{}
	for _, p := range opts.Paths {
		full := p
		if opts.Cwd != "" && !strings.HasPrefix(string(p), "/") {
			full = opts.Cwd.Join(string(p))
		}
		allowed[full.Clean()] = true
	}
	filterMap(st.Staged, allowed)
	filterMap(st.Workdir, allowed)
	for name := range st.Submodules {
		if !allowed[name] && !hasPrefixAny(name, allowed) {
			delete(st.Submodules, name)
		}
	}
}

func filterMap(m map[gitmeta.Path]gitmeta.Change, allowed map[gitmeta.Path]bool) {
	for p := range m {
		if !allowed[p] && !hasPrefixAny(p, allowed) {
			delete(m, p)
		}
	}
}

func hasPrefixAny(p gitmeta.Path, allowed map[gitmeta.Path]bool) bool {
	for a := range allowed {
		if strings.HasPrefix(string(p), string(a)+"/") {
			return true
		}
	}
	return false
}
