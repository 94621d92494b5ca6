// Package cherrypick implements the composite `cherry-pick` operation:
// replaying a single meta-commit's submodule changes onto HEAD by
// per-submodule rebase, plus its continue/abort halves. A conflicted
// pick lands in the real index with conflict markers the same way the
// merge engine stages its conflicts.
package cherrypick

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/changes"
	"github.com/git-meta/git-meta/internal/deinit"
	"github.com/git-meta/git-meta/internal/fetcher"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/metaerr"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sequencer"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/status"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
	"github.com/git-meta/git-meta/internal/submodulechange"
	"github.com/git-meta/git-meta/internal/subreplay"
	"github.com/git-meta/git-meta/internal/workqueue"
)

// Outcome is the result of a completed (non-conflicted) cherry-pick.
type Outcome struct {
	FinishSHA gitshell.Hash
}

// Engine drives cherry-pick for one meta-repo.
type Engine struct {
	Shell   *gitshell.Repository
	Obj     *gitobj.Repository
	GitDir  string
	WorkDir string
	Opener  *opener.Opener
	Fetcher *fetcher.SubmoduleFetcher
	Changes *changes.Computer
	Status  *status.Engine
	Log     *log.Logger
}

// New constructs a cherry-pick Engine.
func New(shell *gitshell.Repository, obj *gitobj.Repository, gitDir, workDir string, op *opener.Opener, f *fetcher.SubmoduleFetcher, st *status.Engine, logger *log.Logger) *Engine {
	return &Engine{
		Shell:   shell,
		Obj:     obj,
		GitDir:  gitDir,
		WorkDir: workDir,
		Opener:  op,
		Fetcher: f,
		Changes: changes.New(shell),
		Status:  st,
		Log:     logger,
	}
}

// CherryPick replays commit's submodule changes onto HEAD, reusing the
// original commit's author, committer, and message for the result.
func (e *Engine) CherryPick(ctx context.Context, commit gitshell.Hash) (*Outcome, error) {
	if err := e.requireDeepClean(ctx); err != nil {
		return nil, err
	}

	base, err := e.Shell.RevParse(ctx, commit.String()+"^")
	if err != nil {
		base = ""
	}
	if base != "" {
		if hasURL, err := e.Changes.ContainsURLChanges(ctx, base, commit); err == nil && hasURL {
			return nil, &metaerr.URLChangesUnsupported{Commit: commit.String()}
		}
	}
	// Refuse non-submodule file changes up front, before any sequencer
	// state exists: failing later would leave a dangling record that
	// needs --abort for an operation that never started.
	if err := e.refuseNonSubChanges(ctx, base, commit); err != nil {
		return nil, err
	}

	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	state := &gitmeta.SequencerState{
		Type:         gitmeta.OpCherryPick,
		OriginalHead: gitmeta.RefPoint{SHA: gitmeta.SHA(head.String())},
		Target:       gitmeta.RefPoint{SHA: gitmeta.SHA(commit.String())},
		Commits:      []gitmeta.SHA{gitmeta.SHA(commit.String())},
	}
	if err := sequencer.Write(e.GitDir, state); err != nil {
		return nil, err
	}

	meta, err := e.Shell.ReadCommitMeta(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", commit.Short(), err)
	}
	state.Message = meta.Message

	conflicted, autoOpened, unchanged, err := e.rewriteCommit(ctx, commit)
	if err != nil {
		return nil, err
	}

	e.closeNoOpSubs(ctx, autoOpened, conflicted, unchanged)

	if len(conflicted) > 0 {
		if err := sequencer.Write(e.GitDir, state); err != nil {
			return nil, err
		}
		return nil, renderConflicts(conflicted)
	}

	tree, err := e.Shell.WriteIndexTree(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("write-tree: %w", err)
	}
	newCommit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      tree,
		Parents:   []gitshell.Hash{head},
		Message:   meta.Message,
		Author:    &meta.Author,
		Committer: &meta.Committer,
	})
	if err != nil {
		return nil, fmt.Errorf("commit-tree: %w", err)
	}
	if err := e.Shell.UpdateRef(ctx, "HEAD", newCommit, head); err != nil {
		return nil, fmt.Errorf("update HEAD: %w", err)
	}
	_ = sequencer.Clean(e.GitDir, gitmeta.OpCherryPick)
	return &Outcome{FinishSHA: newCommit}, nil
}

// rewriteCommit applies commit's submodule changes against HEAD: simple
// changes are staged mechanically, changes needing a pick are replayed
// per-sub via subreplay, and conflicts (both from the change computer and
// from a sub-replay that stopped short) are returned by name.
func (e *Engine) rewriteCommit(ctx context.Context, commit gitshell.Hash) (conflicted, autoOpened, unchanged map[gitmeta.Path]bool, err error) {
	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, nil, nil, err
	}
	result, err := e.Changes.ComputeChanges(ctx, head, commit, false)
	if err != nil {
		return nil, nil, nil, err
	}

	conflicted = map[gitmeta.Path]bool{}
	for name := range result.Conflicts {
		conflicted[name] = true
	}

	urls, err := e.currentGitmodulesURLs(ctx, head)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := submodulechange.ApplySimple(ctx, e.Shell, e.Opener, urls, result.SimpleChanges, false, e.WorkDir); err != nil {
		return nil, nil, nil, err
	}

	autoOpened = map[gitmeta.Path]bool{}
	unchanged = map[gitmeta.Path]bool{}
	items := make([]workqueue.Item[gitmeta.SubmoduleChange], 0, len(result.Changes))
	for _, change := range result.Changes {
		items = append(items, workqueue.Item[gitmeta.SubmoduleChange]{Name: string(change.Name), Val: change})
	}

	results, runErr := workqueue.Run(ctx, items, workqueue.DefaultParallelism, func(ctx context.Context, it workqueue.Item[gitmeta.SubmoduleChange]) (*pickResult, error) {
		return e.pickSubmodule(ctx, it.Val)
	})

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.didOpen {
			autoOpened[r.name] = true
		}
		if r.conflict {
			conflicted[r.name] = true
			continue
		}
		if r.noOp {
			unchanged[r.name] = true
			continue
		}
		if err := e.Shell.UpdateIndex(ctx, []gitshell.IndexEntry{
			{Mode: "160000", Hash: r.newSHA, Path: string(r.name)},
		}); err != nil {
			return nil, nil, nil, fmt.Errorf("stage %q: %w", r.name, err)
		}
	}
	if runErr != nil {
		return nil, nil, nil, runErr
	}

	if sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir) {
		openSubs, err := e.Opener.OpenSubs(ctx)
		if err == nil {
			_ = sparsecheckout.SetSparseBitsAndWriteIndex(ctx, e.Shell, toStrBoolMap(openSubs))
		}
	}

	return conflicted, autoOpened, unchanged, nil
}

type pickResult struct {
	name     gitmeta.Path
	newSHA   gitshell.Hash
	conflict bool
	noOp     bool
	didOpen  bool
}

// pickSubmodule replays change's full commit range (oldSha..newSha] in
// the submodule onto its current HEAD.
func (e *Engine) pickSubmodule(ctx context.Context, change gitmeta.SubmoduleChange) (*pickResult, error) {
	name := change.Name
	wasOpen := e.isOpen(ctx, name)

	sub, err := e.Opener.GetSubrepo(ctx, name, opener.ForceOpen)
	if err != nil {
		return nil, fmt.Errorf("open submodule %q: %w", name, err)
	}
	subShell := subShellOf(sub)

	oldHash := gitshell.Hash(change.OldSHA.String())
	newHash := gitshell.Hash(change.NewSHA.String())
	if err := e.Fetcher.FetchSha(ctx, sub, name, change.OldSHA); err != nil {
		return nil, err
	}
	if err := e.Fetcher.FetchSha(ctx, sub, name, change.NewSHA); err != nil {
		return nil, err
	}

	ontoHash := gitshell.Hash(change.OurSHA.String())
	commits, err := subreplay.Range(ctx, subShell, oldHash, newHash)
	if err != nil {
		return nil, fmt.Errorf("cherry-pick range in %q: %w", name, err)
	}
	if len(commits) == 0 {
		return &pickResult{name: name, noOp: true, didOpen: !wasOpen}, nil
	}

	result, err := subreplay.Replay(ctx, subShell, commits, ontoHash)
	if err != nil {
		return nil, fmt.Errorf("replay in %q: %w", name, err)
	}

	if result.ConflictCommit != "" {
		state := &gitmeta.SequencerState{
			Type:         gitmeta.OpCherryPick,
			OriginalHead: gitmeta.RefPoint{SHA: change.OurSHA},
			Target:       gitmeta.RefPoint{SHA: gitmeta.SHA(newHash.String())},
		}
		if err := sequencer.Write(sub.GitDir, state); err != nil {
			return nil, err
		}
		return &pickResult{name: name, conflict: true, didOpen: !wasOpen}, nil
	}

	if err := subShell.SetHeadDetached(ctx, result.NewHead); err != nil {
		return nil, fmt.Errorf("detach HEAD in %q: %w", name, err)
	}
	return &pickResult{name: name, newSHA: result.NewHead, didOpen: !wasOpen}, nil
}

// closeNoOpSubs deinits every submodule this pick auto-opened that ended
// up with neither a replayed commit nor a conflict: there is nothing for
// the user to look at, so leaving it open would just be clutter.
func (e *Engine) closeNoOpSubs(ctx context.Context, autoOpened, conflicted, unchanged map[gitmeta.Path]bool) {
	var toClose []gitmeta.Path
	for name := range autoOpened {
		if conflicted[name] || !unchanged[name] {
			continue
		}
		toClose = append(toClose, name)
	}
	if len(toClose) == 0 {
		return
	}
	sparse := sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir)
	_ = deinit.Names(ctx, e.Shell, e.GitDir, e.WorkDir, toClose, sparse)
}

// refuseNonSubChanges scans base..commit for changes to ordinary files
// (anything that is a gitlink on neither side, .gitmodules excepted). A
// zero base means commit is a root commit; it is diffed against the
// empty tree.
func (e *Engine) refuseNonSubChanges(ctx context.Context, base, commit gitshell.Hash) error {
	const emptyTree = gitshell.Hash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	if base == "" {
		base = emptyTree
	}
	diffs, err := e.Shell.DiffTrees(ctx, base, commit, false)
	if err != nil {
		return fmt.Errorf("diff %s..%s: %w", base.Short(), commit.Short(), err)
	}
	for _, d := range diffs {
		if d.IsGitlink() || d.Path == ".gitmodules" {
			continue
		}
		return &metaerr.NonSubChangeUnsupported{Commit: commit.String(), Path: d.Path}
	}
	return nil
}

func (e *Engine) isOpen(ctx context.Context, name gitmeta.Path) bool {
	subs, err := e.Opener.OpenSubs(ctx)
	return err == nil && subs[name]
}

func (e *Engine) requireDeepClean(ctx context.Context) error {
	st, err := e.Status.GetRepoStatus(ctx, status.Options{})
	if err != nil {
		return err
	}
	if !st.IsDeepClean(false) {
		return &metaerr.NotDeepClean{}
	}
	return nil
}

func (e *Engine) currentGitmodulesURLs(ctx context.Context, head gitshell.Hash) (map[string]string, error) {
	entries, err := e.Shell.ListTree(ctx, head)
	if err != nil {
		return map[string]string{}, nil
	}
	for _, entry := range entries {
		if entry.Name == ".gitmodules" {
			blob, err := e.Shell.ReadBlob(ctx, entry.Hash)
			if err != nil {
				return map[string]string{}, nil
			}
			return submoduleconfig.ParseGitmodules(string(blob)), nil
		}
	}
	return map[string]string{}, nil
}

func renderConflicts(conflicted map[gitmeta.Path]bool) error {
	var paths []string
	for name := range conflicted {
		paths = append(paths, string(name))
	}
	return &metaerr.UnresolvedConflicts{Paths: paths}
}

func toStrBoolMap(m map[gitmeta.Path]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func subShellOf(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}
