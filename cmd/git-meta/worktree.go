package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/deinit"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/opener"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/workqueue"
)

// cmdOpen opens every submodule under the given paths (or, with -c and no
// paths, every submodule that commit modified), fanning out per sub and
// collecting per-sub failures so one bad sub does not stop the rest.
func (a *app) cmdOpen(ctx context.Context, args []string) error {
	set := getopt.New()
	commitish := set.StringLong("commit", 'c', "", "open subs modified in this commit", "COMMITISH")
	force := set.BoolLong("force", 'f', "reopen subs that are already open")
	half := set.BoolLong("half", 0, "bare-only open (no working tree)")
	set.Parse(args)
	paths := set.Args()

	pinned, err := a.head(ctx)
	if err != nil {
		return err
	}
	selector := pinned
	if *commitish != "" {
		if selector, err = a.resolve(ctx, *commitish); err != nil {
			return err
		}
	}

	names, err := a.selectSubs(ctx, selector, paths, *commitish != "" && len(paths) == 0)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no submodules match")
	}

	op, _ := a.openerAt(pinned)
	mode := opener.ForceOpen
	if *half {
		mode = opener.AllowBare
	}

	alreadyOpen, err := op.OpenSubs(ctx)
	if err != nil {
		return err
	}

	items := make([]workqueue.Item[gitmeta.Path], 0, len(names))
	for _, n := range names {
		if alreadyOpen[n] && !*force {
			a.log.Debug("already open", "submodule", n)
			continue
		}
		items = append(items, workqueue.Item[gitmeta.Path]{Name: string(n), Val: n})
	}

	_, err = workqueue.Run(ctx, items, 0, func(ctx context.Context, it workqueue.Item[gitmeta.Path]) (struct{}, error) {
		_, err := op.GetSubrepo(ctx, it.Val, mode)
		return struct{}{}, err
	})
	if err != nil {
		return err
	}
	return a.rewriteSparseBits(ctx)
}

// selectSubs resolves which submodule names an open should touch: index
// gitlinks under the path prefixes, or the subs the selector commit
// modified when fromCommit is set.
func (a *app) selectSubs(ctx context.Context, selector gitshell.Hash, paths []string, fromCommit bool) ([]gitmeta.Path, error) {
	if fromCommit {
		parent, err := a.shell.RevParse(ctx, selector.String()+"^")
		if err != nil {
			parent = "4b825dc642cb6eb9a060e54bf8d69288fbee4904" // empty tree
		}
		diffs, err := a.shell.DiffTrees(ctx, parent, selector, false)
		if err != nil {
			return nil, err
		}
		var out []gitmeta.Path
		for _, d := range diffs {
			if d.NewMode == "160000" {
				out = append(out, gitmeta.Path(d.Path))
			}
		}
		return out, nil
	}

	entries, err := a.shell.ListIndexEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []gitmeta.Path
	for _, e := range entries {
		if e.Mode != "160000" {
			continue
		}
		if len(paths) == 0 || underAny(e.Path, paths) {
			out = append(out, gitmeta.Path(e.Path))
		}
	}
	return out, nil
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.Trim(p, "/")
		if p == "" || p == "." || path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// cmdClose deinits the named subs: working directory gone (or emptied),
// config stanza cleared, .git/modules/<name> preserved.
func (a *app) cmdClose(ctx context.Context, args []string) error {
	set := getopt.New()
	set.Parse(args)
	if len(set.Args()) == 0 {
		return fmt.Errorf("close requires at least one submodule name")
	}

	names := make([]gitmeta.Path, 0, len(set.Args()))
	for _, n := range set.Args() {
		names = append(names, gitmeta.Path(n).Clean())
	}
	sparse := sparsecheckout.InSparseMode(ctx, a.shell, a.gitDir)
	if err := deinit.Names(ctx, a.shell, a.gitDir, a.workDir, names, sparse); err != nil {
		return err
	}
	return a.rewriteSparseBits(ctx)
}

// cmdCheckout checks out the meta-repo at a committish (optionally onto a
// new branch) and realigns every open submodule's HEAD to the sha the new
// meta tree records for it.
func (a *app) cmdCheckout(ctx context.Context, args []string) error {
	set := getopt.New()
	branch := set.StringLong("branch", 'b', "", "create and switch to this branch", "NAME")
	set.Parse(args)
	rest := set.Args()

	target, err := a.head(ctx)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		if target, err = a.resolve(ctx, rest[0]); err != nil {
			return err
		}
	}

	if err := a.shell.Checkout(ctx, target, gitshell.CheckoutOptions{Branch: *branch, Create: *branch != ""}); err != nil {
		return err
	}
	if err := a.alignOpenSubs(ctx, target); err != nil {
		return err
	}
	return a.rewriteSparseBits(ctx)
}

// alignOpenSubs points every open sub's HEAD at the sha commit's tree
// records for it, fetching the sha first when the sub doesn't have it.
func (a *app) alignOpenSubs(ctx context.Context, commit gitshell.Hash) error {
	op, f := a.openerAt(commit)
	open, err := op.OpenSubs(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	tree, err := a.shell.RevParse(ctx, commit.String()+"^{tree}")
	if err != nil {
		return err
	}
	entries, err := a.shell.ListTreeRecursive(ctx, tree)
	if err != nil {
		return err
	}
	want := map[gitmeta.Path]gitshell.Hash{}
	for _, te := range entries {
		if te.IsGitlink() {
			want[gitmeta.Path(te.Name)] = te.Hash
		}
	}

	var items []workqueue.Item[gitmeta.Path]
	for n := range open {
		if _, ok := want[n]; ok {
			items = append(items, workqueue.Item[gitmeta.Path]{Name: string(n), Val: n})
		}
	}
	_, err = workqueue.Run(ctx, items, 0, func(ctx context.Context, it workqueue.Item[gitmeta.Path]) (struct{}, error) {
		sub, err := op.GetSubrepo(ctx, it.Val, opener.ForceOpen)
		if err != nil {
			return struct{}{}, err
		}
		sha := want[it.Val]
		if err := f.FetchSha(ctx, sub, it.Val, gitmeta.SHA(sha.String())); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, sub.CheckoutDetached(gitobj.NewHash(sha.String()))
	})
	return err
}
