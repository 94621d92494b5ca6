package mergeengine

import (
	"context"
	"fmt"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sequencer"
)

// SubmoduleMergeResult is mergeSubmodule's outcome for one changed
// submodule.
type SubmoduleMergeResult struct {
	MergeSHA      gitshell.Hash
	ConflictSHA   gitshell.Hash
	ConflictPaths []string
}

// mergeSubmodule drives the 3-way merge of a single submodule: fetch
// both sides, short-circuit on fast-forward in either direction, else
// merge-tree the two commits and either commit the result or stage a
// conflict for the user to resolve.
func (e *Engine) mergeSubmodule(ctx context.Context, change gitmeta.SubmoduleChange, message string, opts Options) (*SubmoduleMergeResult, error) {
	name := change.Name
	ourSHA, theirSHA := change.OurSHA, change.NewSHA

	sub, err := e.Opener.GetSubrepo(ctx, name, opener.ForceBare)
	if err != nil {
		return nil, fmt.Errorf("open submodule %q: %w", name, err)
	}
	if err := e.Fetcher.FetchSha(ctx, sub, name, ourSHA); err != nil {
		return nil, err
	}
	if err := e.Fetcher.FetchSha(ctx, sub, name, theirSHA); err != nil {
		return nil, err
	}

	subShell := newSubShell(sub)
	ourHash := gitshell.Hash(ourSHA.String())
	theirHash := gitshell.Hash(theirSHA.String())

	if ok, _ := subShell.IsAncestor(ctx, ourHash, theirHash); ok {
		return e.stageSubmoduleSHA(ctx, name, theirHash, opts)
	}
	if ok, _ := subShell.IsAncestor(ctx, theirHash, ourHash); ok {
		return e.stageSubmoduleSHA(ctx, name, ourHash, opts)
	}

	base, err := subShell.MergeBase(ctx, ourHash, theirHash)
	if err != nil {
		return nil, fmt.Errorf("merge-base in %q: %w", name, err)
	}
	mt, err := subShell.MergeTree(ctx, gitshell.MergeTreeRequest{Base: base, Ours: ourHash, Theirs: theirHash})
	if err != nil {
		return nil, fmt.Errorf("merge-tree in %q: %w", name, err)
	}

	if mt.Clean {
		commit, err := subShell.CommitTree(ctx, gitshell.CommitTreeRequest{
			Tree:    mt.Tree,
			Parents: []gitshell.Hash{ourHash, theirHash},
			Message: message,
		})
		if err != nil {
			return nil, fmt.Errorf("commit-tree in %q: %w", name, err)
		}
		return e.stageSubmoduleSHA(ctx, name, commit, opts)
	}

	if opts.ForceBare {
		return &SubmoduleMergeResult{ConflictSHA: theirHash}, nil
	}

	e.Opener.ClearAbsorbedCache(name)
	fullSub, err := e.Opener.GetSubrepo(ctx, name, opener.ForceOpen)
	if err != nil {
		return nil, fmt.Errorf("materialize conflicted submodule %q: %w", name, err)
	}
	fullShell := newSubShell(fullSub)
	if err := fullShell.ReadTreeReal(ctx, base); err != nil {
		return nil, err
	}
	var entries []gitshell.IndexEntry
	for _, c := range mt.Conflicts {
		entries = append(entries, gitshell.IndexEntry{Mode: c.Mode, Hash: c.Hash, Stage: c.Stage, Path: c.Path})
	}
	if err := fullShell.UpdateIndexInfo(ctx, "", entries); err != nil {
		return nil, err
	}
	if err := fullShell.CheckoutIndex(ctx); err != nil {
		return nil, err
	}

	state := &gitmeta.SequencerState{
		Type:         gitmeta.OpMerge,
		OriginalHead: gitmeta.RefPoint{SHA: change.OurSHA},
		Target:       gitmeta.RefPoint{SHA: change.NewSHA},
		Message:      message,
	}
	if err := sequencer.Write(fullSub.GitDir, state); err != nil {
		return nil, err
	}

	var paths []string
	for _, c := range mt.Conflicts {
		paths = append(paths, c.Path)
	}
	return &SubmoduleMergeResult{ConflictSHA: theirHash, ConflictPaths: paths}, nil
}

func (e *Engine) stageSubmoduleSHA(ctx context.Context, name gitmeta.Path, sha gitshell.Hash, opts Options) (*SubmoduleMergeResult, error) {
	if err := e.Shell.UpdateIndex(ctx, []gitshell.IndexEntry{{Mode: "160000", Hash: sha, Path: string(name)}}); err != nil {
		return nil, fmt.Errorf("stage %q: %w", name, err)
	}
	if !opts.ForceBare {
		if sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare); err == nil && sub.Root != "" {
			newSubShell(sub).SetHeadDetached(ctx, sha)
		}
	}
	return &SubmoduleMergeResult{MergeSHA: sha}, nil
}
