// Package mergeengine drives the composite `merge` operation: fast-forward
// detection, per-submodule 3-way merges fanned out in parallel, conflict
// aggregation, and the --continue/--abort halves of the sequencer
// protocol. Commits are constructed with stage-then-commit-tree; a
// submodule's own index is only touched when a conflict must be
// materialized there.
package mergeengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/changes"
	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/metaerr"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sequencer"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
	"github.com/git-meta/git-meta/internal/submodulechange"
	"github.com/git-meta/git-meta/internal/workqueue"
)

// FFMode controls fast-forward behavior, matching git's --ff/--ff-only/--no-ff.
type FFMode int

const (
	Normal FFMode = iota
	FFOnly
	ForceCommit
)

// Options configures a merge.
type Options struct {
	FF          FFMode
	ForceBare   bool
	RefToUpdate string // usually "HEAD"
	Author      gitshell.Signature
	Committer   gitshell.Signature
	Concurrency int
}

// Outcome is the result of a completed (non-conflicted) merge.
type Outcome struct {
	FinishSHA    gitshell.Hash
	InfoMessage  string
	FastForward  bool
	NoOp         bool
}

// Engine drives the merge pipeline for one meta-repo.
type Engine struct {
	Shell    *gitshell.Repository
	GitDir   string
	WorkDir  string
	Opener   *opener.Opener
	Fetcher  *fetcher.SubmoduleFetcher
	Changes  *changes.Computer
	Log      *log.Logger
}

// New constructs a merge Engine.
func New(shell *gitshell.Repository, gitDir, workDir string, op *opener.Opener, f *fetcher.SubmoduleFetcher, logger *log.Logger) *Engine {
	return &Engine{
		Shell:   shell,
		GitDir:  gitDir,
		WorkDir: workDir,
		Opener:  op,
		Fetcher: f,
		Changes: changes.New(shell),
		Log:     logger,
	}
}

// Merge runs the full pipeline: Prepare, then FF, then MergeSubmodules.
func (e *Engine) Merge(ctx context.Context, ours, theirs gitshell.Hash, opts Options, message string) (*Outcome, error) {
	outcome, done, err := e.prepare(ctx, ours, theirs, opts)
	if err != nil || done {
		return outcome, err
	}

	outcome, done, err = e.fastForward(ctx, ours, theirs, opts)
	if err != nil || done {
		return outcome, err
	}

	return e.mergeSubmodules(ctx, ours, theirs, opts, message)
}

// prepare checks the preconditions and handles the trivial outcomes
// (same commit, already up to date) before any submodule work starts.
func (e *Engine) prepare(ctx context.Context, ours, theirs gitshell.Hash, opts Options) (*Outcome, bool, error) {
	if _, err := e.Shell.MergeBase(ctx, ours, theirs); err != nil {
		return nil, true, &metaerr.NoCommonAncestor{A: string(ours), B: string(theirs)}
	}
	// The deep-clean precondition (when not forceBare) is enforced by
	// the caller, which has the status engine wired; prepare only checks
	// ancestry.
	if ours == theirs {
		return &Outcome{FinishSHA: theirs, NoOp: true, InfoMessage: "already up to date"}, true, nil
	}
	if ok, _ := e.Shell.IsAncestor(ctx, theirs, ours); ok {
		return &Outcome{FinishSHA: ours, NoOp: true, InfoMessage: "already up to date"}, true, nil
	}
	return nil, false, nil
}

// fastForward handles the ours-is-an-ancestor-of-theirs case, honoring
// the ff-only/no-ff/bare modes.
func (e *Engine) fastForward(ctx context.Context, ours, theirs gitshell.Hash, opts Options) (*Outcome, bool, error) {
	ff, err := e.Shell.IsAncestor(ctx, ours, theirs)
	if err != nil || !ff {
		if opts.FF == FFOnly {
			return nil, true, &metaerr.CannotFastForward{Ours: string(ours), Theirs: string(theirs)}
		}
		return nil, false, nil
	}
	if opts.FF == ForceCommit {
		return nil, false, nil
	}
	if opts.ForceBare {
		return nil, false, nil
	}
	if err := e.Shell.Checkout(ctx, theirs, gitshell.CheckoutOptions{Force: true}); err != nil {
		return nil, true, fmt.Errorf("fast-forward checkout: %w", err)
	}
	if opts.RefToUpdate != "" {
		if err := e.Shell.UpdateRef(ctx, opts.RefToUpdate, theirs, ""); err != nil {
			return nil, true, fmt.Errorf("update %s: %w", opts.RefToUpdate, err)
		}
	}
	return &Outcome{FinishSHA: theirs, FastForward: true}, true, nil
}

// mergeSubmodules drives the real N-way merge: simple changes applied
// mechanically, needs-pick changes merged per sub in parallel, conflicts
// aggregated into one report.
func (e *Engine) mergeSubmodules(ctx context.Context, ours, theirs gitshell.Hash, opts Options, message string) (*Outcome, error) {
	result, err := e.Changes.ComputeChanges(ctx, ours, theirs, true)
	if err != nil {
		return nil, err
	}

	if opts.ForceBare && len(result.Conflicts) > 0 {
		return nil, renderSubmoduleItselfConflicts(result.Conflicts)
	}

	urls, err := e.currentGitmodulesURLs(ctx, ours)
	if err != nil {
		return nil, err
	}
	if err := submodulechange.ApplySimple(ctx, e.Shell, e.Opener, urls, result.SimpleChanges, opts.ForceBare, e.WorkDir); err != nil {
		return nil, err
	}

	items := make([]workqueue.Item[gitmeta.SubmoduleChange], 0, len(result.Changes))
	for _, change := range result.Changes {
		items = append(items, workqueue.Item[gitmeta.SubmoduleChange]{Name: string(change.Name), Val: change})
	}

	subResults, err := workqueue.Run(ctx, items, opts.Concurrency, func(ctx context.Context, it workqueue.Item[gitmeta.SubmoduleChange]) (*SubmoduleMergeResult, error) {
		return e.mergeSubmodule(ctx, it.Val, message, opts)
	})

	conflicts := map[gitmeta.Path]gitmeta.Conflict{}
	for k, v := range result.Conflicts {
		conflicts[k] = v
	}
	for i, r := range subResults {
		if r == nil {
			continue
		}
		if r.ConflictSHA != "" {
			conflicts[gitmeta.Path(items[i].Name)] = gitmeta.Conflict{Path: gitmeta.Path(items[i].Name)}
		}
	}

	if len(conflicts) > 0 || err != nil {
		state := &gitmeta.SequencerState{
			Type:         gitmeta.OpMerge,
			OriginalHead: gitmeta.RefPoint{SHA: gitmeta.SHA(ours.String())},
			Target:       gitmeta.RefPoint{SHA: gitmeta.SHA(theirs.String())},
			Message:      message,
		}
		if werr := sequencer.Write(e.GitDir, state); werr != nil {
			return nil, werr
		}
		return nil, renderConflictMessage(conflicts, err)
	}

	tree, err := e.Shell.WriteIndexTree(ctx, defaultIndexPath(e.GitDir))
	if err != nil {
		return nil, fmt.Errorf("write-tree: %w", err)
	}
	commit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      tree,
		Parents:   []gitshell.Hash{ours, theirs},
		Message:   message,
		Author:    &opts.Author,
		Committer: &opts.Committer,
	})
	if err != nil {
		return nil, fmt.Errorf("commit-tree: %w", err)
	}
	if opts.RefToUpdate != "" {
		if err := e.Shell.UpdateRef(ctx, opts.RefToUpdate, commit, ours); err != nil {
			return nil, fmt.Errorf("update %s: %w", opts.RefToUpdate, err)
		}
	}
	_ = sequencer.Clean(e.GitDir, gitmeta.OpMerge)
	return &Outcome{FinishSHA: commit}, nil
}

func defaultIndexPath(gitDir string) string { return gitDir + "/index" }

func (e *Engine) currentGitmodulesURLs(ctx context.Context, commit gitshell.Hash) (map[string]string, error) {
	blob, err := e.Shell.ReadBlob(ctx, gitmodulesBlobAt(ctx, e.Shell, commit))
	if err != nil {
		return map[string]string{}, nil
	}
	return submoduleconfig.ParseGitmodules(string(blob)), nil
}

func gitmodulesBlobAt(ctx context.Context, r *gitshell.Repository, commit gitshell.Hash) gitshell.Hash {
	entries, err := r.ListTree(ctx, commit)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Name == ".gitmodules" {
			return e.Hash
		}
	}
	return ""
}

func renderSubmoduleItselfConflicts(conflicts map[gitmeta.Path]gitmeta.Conflict) error {
	var lines []string
	for name := range conflicts {
		lines = append(lines, fmt.Sprintf("Merge conflict in submodule '%s' itself", name))
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

func renderConflictMessage(conflicts map[gitmeta.Path]gitmeta.Conflict, cause error) error {
	var lines []string
	for name := range conflicts {
		lines = append(lines, fmt.Sprintf("CONFLICT (submodule): Merge conflict in %s", name))
	}
	if cause != nil {
		lines = append(lines, cause.Error())
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}
