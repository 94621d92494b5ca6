// Package rebase implements the composite `rebase` operation: replaying
// every non-merge commit unique to HEAD onto a new base, one meta commit
// at a time, by driving CherryPickEngine's per-submodule machinery in a
// loop and handling `.gitmodules` conflicts along the way. The driver
// replays the commit range onto a moving target, stops at the first
// conflict, and resumes from a persisted cursor.
package rebase

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/changes"
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

// Outcome is the result of a completed (non-conflicted) rebase.
type Outcome struct {
	FinishSHA    gitshell.Hash
	NoOp         bool
	FastForward  bool
	CommitMap    map[gitshell.Hash]gitshell.Hash // original sha -> replayed sha
}

// Engine drives rebase for one meta-repo.
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

// New constructs a rebase Engine.
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

// Rebase replays every non-merge commit unique to HEAD onto onto,
// opening and rebasing affected submodules as it goes.
func (e *Engine) Rebase(ctx context.Context, onto gitshell.Hash) (*Outcome, error) {
	if err := e.requireDeepClean(ctx); err != nil {
		return nil, err
	}

	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	if head == onto {
		return &Outcome{FinishSHA: head, NoOp: true}, nil
	}
	if ok, _ := e.Shell.IsAncestor(ctx, onto, head); ok {
		return &Outcome{FinishSHA: head, NoOp: true}, nil
	}

	commits, err := listRebaseCommits(ctx, e.Shell, head, onto)
	if err != nil {
		return nil, err
	}

	if len(commits) == 0 {
		// head is an ancestor of onto: pure fast-forward.
		if err := e.Shell.Checkout(ctx, onto, gitshell.CheckoutOptions{Force: true}); err != nil {
			return nil, fmt.Errorf("fast-forward checkout: %w", err)
		}
		if err := e.Shell.UpdateRef(ctx, "HEAD", onto, head); err != nil {
			return nil, fmt.Errorf("update HEAD: %w", err)
		}
		if err := e.realignOpenSubs(ctx, onto); err != nil {
			return nil, err
		}
		return &Outcome{FinishSHA: onto, FastForward: true}, nil
	}

	shaList := make([]gitmeta.SHA, len(commits))
	for i, c := range commits {
		shaList[i] = gitmeta.SHA(c.String())
	}
	state := &gitmeta.SequencerState{
		Type:          gitmeta.OpRebase,
		OriginalHead:  gitmeta.RefPoint{SHA: gitmeta.SHA(head.String())},
		Target:        gitmeta.RefPoint{SHA: gitmeta.SHA(onto.String())},
		Commits:       shaList,
		CurrentCommit: 0,
	}
	if err := sequencer.Write(e.GitDir, state); err != nil {
		return nil, err
	}

	if err := e.Shell.Checkout(ctx, onto, gitshell.CheckoutOptions{Force: true}); err != nil {
		return nil, fmt.Errorf("checkout onto: %w", err)
	}
	if err := e.Shell.UpdateRef(ctx, "HEAD", onto, head); err != nil {
		return nil, fmt.Errorf("update HEAD: %w", err)
	}

	return e.driveFrom(ctx, state, 0)
}

// driveFrom runs commits[startIdx:] through replayCommit sequentially,
// advancing HEAD one replayed commit at a time, persisting state.CURRENT
// so a conflict can be resumed later.
func (e *Engine) driveFrom(ctx context.Context, state *gitmeta.SequencerState, startIdx int) (*Outcome, error) {
	commitMap := map[gitshell.Hash]gitshell.Hash{}
	for idx := startIdx; idx < len(state.Commits); idx++ {
		orig := gitshell.Hash(state.Commits[idx].String())
		state.CurrentCommit = uint32(idx)
		if err := sequencer.Write(e.GitDir, state); err != nil {
			return nil, err
		}

		conflicted, err := e.replayCommit(ctx, orig)
		if err != nil {
			return nil, err
		}
		if conflicted {
			return nil, &metaerr.UnresolvedConflicts{Paths: []string{orig.String()}}
		}

		head, err := e.Shell.RevParse(ctx, "HEAD")
		if err != nil {
			return nil, err
		}
		commitMap[orig] = head
	}

	_ = sequencer.Clean(e.GitDir, gitmeta.OpRebase)
	finish, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	return &Outcome{FinishSHA: finish, CommitMap: commitMap}, nil
}

// replayCommit applies orig's submodule changes (computed against its
// original first parent) onto the current real HEAD, creating a new meta
// commit that reuses orig's author, committer, and message. Returns true
// if it left conflict markers in the index instead of completing.
func (e *Engine) replayCommit(ctx context.Context, orig gitshell.Hash) (bool, error) {
	origParent, err := e.Shell.RevParse(ctx, orig.String()+"^")
	if err != nil {
		origParent = ""
	}
	if origParent != "" {
		if hasURL, err := e.Changes.ContainsURLChanges(ctx, origParent, orig); err == nil && hasURL {
			return false, &metaerr.URLChangesUnsupported{Commit: orig.String()}
		}
	}

	head, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return false, err
	}

	result, err := e.Changes.ComputeChanges(ctx, head, orig, false)
	if err != nil {
		return false, err
	}

	conflicted := map[gitmeta.Path]bool{}
	for name := range result.Conflicts {
		conflicted[name] = true
	}

	if origParent != "" {
		if clean, err := e.mergeModulesFile(ctx, origParent, orig); err != nil {
			return false, err
		} else if !clean {
			conflicted[".gitmodules"] = true
		}
	}

	urls, err := currentGitmodulesURLs(ctx, e.Shell, head)
	if err != nil {
		return false, err
	}
	if err := submodulechange.ApplySimple(ctx, e.Shell, e.Opener, urls, result.SimpleChanges, false, e.WorkDir); err != nil {
		return false, err
	}

	items := make([]workqueue.Item[gitmeta.SubmoduleChange], 0, len(result.Changes))
	for _, change := range result.Changes {
		items = append(items, workqueue.Item[gitmeta.SubmoduleChange]{Name: string(change.Name), Val: change})
	}
	results, runErr := workqueue.Run(ctx, items, workqueue.DefaultParallelism, func(ctx context.Context, it workqueue.Item[gitmeta.SubmoduleChange]) (*subResult, error) {
		return e.rebaseSubmodule(ctx, it.Val)
	})
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.conflict {
			conflicted[r.name] = true
			continue
		}
		if r.noOp {
			continue
		}
		if err := e.Shell.UpdateIndex(ctx, []gitshell.IndexEntry{
			{Mode: "160000", Hash: r.newSHA, Path: string(r.name)},
		}); err != nil {
			return false, fmt.Errorf("stage %q: %w", r.name, err)
		}
	}
	if runErr != nil {
		return false, runErr
	}

	if sparsecheckout.InSparseMode(ctx, e.Shell, e.GitDir) {
		if openSubs, err := e.Opener.OpenSubs(ctx); err == nil {
			_ = sparsecheckout.SetSparseBitsAndWriteIndex(ctx, e.Shell, toStrBoolMap(openSubs))
		}
	}

	if len(conflicted) > 0 {
		return true, nil
	}

	meta, err := e.Shell.ReadCommitMeta(ctx, orig)
	if err != nil {
		return false, err
	}
	tree, err := e.Shell.WriteIndexTree(ctx, "")
	if err != nil {
		return false, fmt.Errorf("write-tree: %w", err)
	}
	newCommit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      tree,
		Parents:   []gitshell.Hash{head},
		Message:   meta.Message,
		Author:    &meta.Author,
		Committer: &meta.Committer,
	})
	if err != nil {
		return false, fmt.Errorf("commit-tree: %w", err)
	}
	if err := e.Shell.UpdateRef(ctx, "HEAD", newCommit, head); err != nil {
		return false, err
	}
	return false, nil
}

type subResult struct {
	name     gitmeta.Path
	newSHA   gitshell.Hash
	conflict bool
	noOp     bool
}

// rebaseSubmodule replays change's commit range onto the submodule's
// current HEAD (its state carried over from the previous replayed meta
// commit).
func (e *Engine) rebaseSubmodule(ctx context.Context, change gitmeta.SubmoduleChange) (*subResult, error) {
	name := change.Name
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
		return nil, fmt.Errorf("rebase range in %q: %w", name, err)
	}
	if len(commits) == 0 {
		return &subResult{name: name, noOp: true}, nil
	}

	result, err := subreplay.Replay(ctx, subShell, commits, ontoHash)
	if err != nil {
		return nil, fmt.Errorf("replay in %q: %w", name, err)
	}

	if result.ConflictCommit != "" {
		state := &gitmeta.SequencerState{
			Type:         gitmeta.OpRebase,
			OriginalHead: gitmeta.RefPoint{SHA: change.OurSHA},
			Target:       gitmeta.RefPoint{SHA: gitmeta.SHA(newHash.String())},
		}
		if err := sequencer.Write(sub.GitDir, state); err != nil {
			return nil, err
		}
		return &subResult{name: name, conflict: true}, nil
	}

	if err := subShell.SetHeadDetached(ctx, result.NewHead); err != nil {
		return nil, fmt.Errorf("detach HEAD in %q: %w", name, err)
	}
	return &subResult{name: name, newSHA: result.NewHead}, nil
}

// realignOpenSubs points every open submodule's HEAD at its sha in
// commit's tree, used after a pure fast-forward rebase.
func (e *Engine) realignOpenSubs(ctx context.Context, commit gitshell.Hash) error {
	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return err
	}
	entries, err := e.Shell.ListTreeRecursive(ctx, commit)
	if err != nil {
		return fmt.Errorf("ls-tree %s: %w", commit.Short(), err)
	}
	targets := map[gitmeta.Path]gitshell.Hash{}
	for _, entry := range entries {
		if entry.IsGitlink() {
			targets[gitmeta.Path(entry.Name)] = entry.Hash
		}
	}
	for name := range openSubs {
		sha, ok := targets[name]
		if !ok {
			continue
		}
		sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare)
		if err != nil {
			continue
		}
		_ = subShellOf(sub).SetHeadDetached(ctx, sha)
	}
	return nil
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

// listRebaseCommits lists the non-merge commits reachable from from but
// not onto, oldest first. Merge commits are excluded from the result but
// their parents are still traversed by rev-list.
func listRebaseCommits(ctx context.Context, shell *gitshell.Repository, from, onto gitshell.Hash) ([]gitshell.Hash, error) {
	infos, err := shell.ListAncestors(ctx, from, onto)
	if err != nil {
		return nil, fmt.Errorf("list %s..%s: %w", onto.Short(), from.Short(), err)
	}
	out := make([]gitshell.Hash, 0, len(infos))
	for _, ci := range infos {
		if ci.IsMerge {
			continue
		}
		out = append(out, ci.Hash)
	}
	return out, nil
}

func currentGitmodulesURLs(ctx context.Context, shell *gitshell.Repository, head gitshell.Hash) (map[string]string, error) {
	entries, err := shell.ListTree(ctx, head)
	if err != nil {
		return map[string]string{}, nil
	}
	for _, entry := range entries {
		if entry.Name == ".gitmodules" {
			blob, err := shell.ReadBlob(ctx, entry.Hash)
			if err != nil {
				return map[string]string{}, nil
			}
			return submoduleconfig.ParseGitmodules(string(blob)), nil
		}
	}
	return map[string]string{}, nil
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
