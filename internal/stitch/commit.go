package stitch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/workqueue"
)

// flatEntry is one leaf destined for the stitched tree, already carrying
// its full repo-relative path (as opposed to gitshell.TreeEntry, whose
// Name is relative to whatever tree it was listed from).
type flatEntry struct {
	Path string
	Mode string
	Hash gitshell.Hash
}

type inlineJob struct {
	name string
	sha  gitshell.Hash
}

type inlineOutcome struct {
	entries []flatEntry
	author  gitshell.Signature
	message string
	skipped bool
}

// writeStitchedCommit builds the flattened tree and message for ci and
// commits it onto parents, returning the empty sha (and a nil error) when
// skipEmpty applies. It also returns the name->pinned-sha map of every
// submodule present at ci (inlined, kept, or dropped via whitelist) and
// the set of submodule changes relative to ci's first original parent,
// for the reference/change_cache notes.
func (e *Engine) writeStitchedCommit(
	ctx context.Context,
	ci gitshell.CommitInfo,
	parents []gitshell.Hash,
	keep map[string]bool,
	adjust adjustFunc,
	skipEmpty bool,
	isWhitelisted func(gitshell.Hash) bool,
	parallelism int,
) (gitshell.Hash, map[string]gitshell.Hash, []gitmeta.SubmoduleChange, error) {
	meta, err := e.Shell.ReadCommitMeta(ctx, ci.Hash)
	if err != nil {
		return "", nil, nil, err
	}

	tree, err := e.Shell.RevParse(ctx, ci.Hash.String()+"^{tree}")
	if err != nil {
		return "", nil, nil, fmt.Errorf("resolve tree of %s: %w", ci.Hash.Short(), err)
	}
	treeEntries, err := e.Shell.ListTreeRecursive(ctx, tree)
	if err != nil {
		return "", nil, nil, err
	}

	var passthrough []flatEntry
	var jobs []workqueue.Item[inlineJob]
	subCommits := make(map[string]gitshell.Hash)

	for _, te := range treeEntries {
		if !te.IsGitlink() {
			passthrough = append(passthrough, flatEntry{Path: te.Name, Mode: te.Mode, Hash: te.Hash})
			continue
		}
		subCommits[te.Name] = te.Hash
		if keep[te.Name] {
			passthrough = append(passthrough, flatEntry{Path: te.Name, Mode: te.Mode, Hash: te.Hash})
			continue
		}
		jobs = append(jobs, workqueue.Item[inlineJob]{Name: te.Name, Val: inlineJob{name: te.Name, sha: te.Hash}})
	}

	results, err := workqueue.RunFailFast(ctx, jobs, parallelism, func(ctx context.Context, it workqueue.Item[inlineJob]) (inlineOutcome, error) {
		entries, subMeta, err := e.inlineSubmodule(ctx, it.Val.name, it.Val.sha)
		if err != nil {
			if isWhitelisted(ci.Hash) {
				e.Log.Warn("dropping unresolved submodule from stitched commit", "commit", ci.Hash.Short(), "submodule", it.Val.name, "err", err)
				return inlineOutcome{skipped: true}, nil
			}
			return inlineOutcome{}, err
		}
		return inlineOutcome{entries: entries, author: subMeta.Author, message: subMeta.Message}, nil
	})
	if err != nil {
		return "", nil, nil, err
	}

	all := append([]flatEntry(nil), passthrough...)
	var blocks []subBlock
	for i, r := range results {
		if r.skipped {
			continue
		}
		all = append(all, r.entries...)
		if differsFromMeta(meta, r.author) {
			blocks = append(blocks, subBlock{name: jobs[i].Val.name, author: r.author, message: r.message})
		}
	}

	var adjusted []flatEntry
	for _, fe := range all {
		p, ok := adjust(fe.Path)
		if !ok {
			continue
		}
		fe.Path = p
		adjusted = append(adjusted, fe)
	}

	idxPath, cleanup, err := e.Shell.NewScratchIndex()
	if err != nil {
		return "", nil, nil, err
	}
	defer cleanup()

	indexEntries := make([]gitshell.IndexEntry, 0, len(adjusted))
	for _, fe := range adjusted {
		indexEntries = append(indexEntries, gitshell.IndexEntry{Mode: fe.Mode, Hash: fe.Hash, Path: fe.Path})
	}
	if err := e.Shell.UpdateIndexInfo(ctx, idxPath, indexEntries); err != nil {
		return "", nil, nil, fmt.Errorf("build stitched tree: %w", err)
	}
	newTree, err := e.Shell.WriteIndexTree(ctx, idxPath)
	if err != nil {
		return "", nil, nil, fmt.Errorf("write stitched tree: %w", err)
	}

	changes, err := e.submoduleChanges(ctx, meta.Parent, ci.Hash)
	if err != nil {
		return "", nil, nil, err
	}

	if skipEmpty && len(parents) == 1 {
		if parentTree, err := e.Shell.RevParse(ctx, parents[0].String()+"^{tree}"); err == nil && parentTree == newTree {
			return "", subCommits, changes, nil
		}
	}

	commit, err := e.Shell.CommitTree(ctx, gitshell.CommitTreeRequest{
		Tree:      newTree,
		Parents:   parents,
		Message:   appendSubBlocks(meta.Message, blocks),
		Author:    &meta.Author,
		Committer: &meta.Committer,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("commit-tree: %w", err)
	}
	return commit, subCommits, changes, nil
}

// inlineSubmodule resolves name's pinned commit and lists its tree,
// fetching it into the submodule's repo first if missing.
func (e *Engine) inlineSubmodule(ctx context.Context, name string, sha gitshell.Hash) ([]flatEntry, *gitshell.CommitMeta, error) {
	sub, err := e.Opener.GetSubrepo(ctx, gitmeta.Path(name), opener.AllowBare)
	if err != nil {
		return nil, nil, fmt.Errorf("open submodule %s: %w", name, err)
	}
	subShell := subShellOf(sub)

	if err := e.Fetcher.FetchSha(ctx, sub, gitmeta.Path(name), gitmeta.SHA(sha.String())); err != nil {
		return nil, nil, err
	}

	meta, err := subShell.ReadCommitMeta(ctx, sha)
	if err != nil {
		return nil, nil, fmt.Errorf("read commit %s@%s: %w", name, sha.Short(), err)
	}
	subTree, err := subShell.RevParse(ctx, sha.String()+"^{tree}")
	if err != nil {
		return nil, nil, fmt.Errorf("resolve tree of %s@%s: %w", name, sha.Short(), err)
	}
	entries, err := subShell.ListTreeRecursive(ctx, subTree)
	if err != nil {
		return nil, nil, err
	}

	out := make([]flatEntry, 0, len(entries))
	for _, te := range entries {
		out = append(out, flatEntry{Path: name + "/" + te.Name, Mode: te.Mode, Hash: te.Hash})
	}
	return out, meta, nil
}

// submoduleChanges reports every submodule added/removed/modified between
// parent and commit, for the change_cache note. A zero parent (root
// commit) diffs against the empty tree.
func (e *Engine) submoduleChanges(ctx context.Context, parent, commit gitshell.Hash) ([]gitmeta.SubmoduleChange, error) {
	const emptyTree = gitshell.Hash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	base := parent
	if base == "" {
		base = emptyTree
	}
	entries, err := e.Shell.DiffTrees(ctx, base, commit, false)
	if err != nil {
		return nil, fmt.Errorf("diff-tree %s..%s: %w", base.Short(), commit.Short(), err)
	}
	var changes []gitmeta.SubmoduleChange
	for _, d := range entries {
		if d.OldMode != "160000" && d.NewMode != "160000" {
			continue
		}
		changes = append(changes, gitmeta.SubmoduleChange{
			Name:   gitmeta.Path(d.Path),
			OldSHA: gitmeta.SHA(d.OldHash),
			NewSHA: gitmeta.SHA(d.NewHash),
		})
	}
	return changes, nil
}

// subBlock carries one inlined submodule's authorship forward into the
// stitched commit message when it differs from the meta commit's own.
type subBlock struct {
	name    string
	author  gitshell.Signature
	message string
}

func differsFromMeta(meta *gitshell.CommitMeta, author gitshell.Signature) bool {
	return author.Name != meta.Author.Name || author.Email != meta.Author.Email || author.When != meta.Author.When
}

// appendSubBlocks renders the stitched commit message: the original meta
// message, followed by one "From '<name>'" block per inlined submodule
// whose authorship differs from it, preserving attribution for content
// that's no longer reachable as its own commit.
func appendSubBlocks(base string, blocks []subBlock) string {
	if len(blocks) == 0 {
		return base
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].name < blocks[j].name })

	var sb strings.Builder
	sb.WriteString(base)
	if !strings.HasSuffix(base, "\n") {
		sb.WriteString("\n")
	}
	for _, b := range blocks {
		fmt.Fprintf(&sb, "\nFrom '%s'\n", b.name)
		if b.author.Name != "" || b.author.Email != "" {
			fmt.Fprintf(&sb, "Author: %s <%s>\n", b.author.Name, b.author.Email)
		}
		if b.author.When != "" {
			fmt.Fprintf(&sb, "Date: %s\n", b.author.When)
		}
		sb.WriteString(b.message)
		if !strings.HasSuffix(b.message, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

type referenceNote struct {
	MetaRepoCommit   string            `json:"metaRepoCommit"`
	SubmoduleCommits map[string]string `json:"submoduleCommits"`
}

func encodeReference(metaCommit gitshell.Hash, subCommits map[string]gitshell.Hash) string {
	n := referenceNote{MetaRepoCommit: metaCommit.String(), SubmoduleCommits: make(map[string]string, len(subCommits))}
	for name, sha := range subCommits {
		n.SubmoduleCommits[name] = sha.String()
	}
	data, _ := json.Marshal(n)
	return string(data)
}

func encodeChangeCache(changes []gitmeta.SubmoduleChange) string {
	data, _ := json.Marshal(changes)
	return string(data)
}
