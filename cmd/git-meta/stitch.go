package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/stitch"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
	"github.com/git-meta/git-meta/internal/syntheticrefgc"
)

func (a *app) cmdStitch(ctx context.Context, args []string) error {
	set := getopt.New()
	targetBranch := set.StringLong("target-branch", 0, "", "branch to point at the stitched head", "NAME")
	numParallel := set.IntLong("num-parallel", 'j', 0, "concurrent per-submodule fetches")
	keep := set.ListLong("keep", 'k', "submodule paths to keep as gitlinks", "PATH")
	skipEmpty := set.BoolLong("skip-empty", 0, "omit commits whose stitched tree matches the parent")
	doFetch := set.BoolLong("fetch", 0, "fetch the meta repo before stitching")
	url := set.StringLong("url", 0, "", "meta remote url for --fetch", "URL")
	joinRoot := set.StringLong("join-root", 0, "", "re-root the stitched tree at this subdirectory", "PATH")
	gc := set.BoolLong("gc", 0, "prune redundant synthetic refs instead of stitching")
	dryRun := set.BoolLong("dry-run", 'n', "with --gc, report what would be pruned")
	set.Parse(args)
	rest := set.Args()

	if *gc {
		locator := submoduleconfig.LoadServerLocator(ctx, a.shell)
		engine := syntheticrefgc.New(a.shell, locator, a.log, os.Stdout)
		out, err := engine.Run(ctx, syntheticrefgc.Options{DryRun: *dryRun})
		if err != nil {
			return err
		}
		a.log.Info("synthetic ref gc done",
			"repos", out.ReposVisited, "removed", out.RefsRemoved, "kept", out.RefsKept, "dry-run", *dryRun)
		return nil
	}

	if *doFetch {
		if *url == "" {
			return fmt.Errorf("--fetch requires --url")
		}
		if err := a.obj.FetchRefs(ctx, *url, "+refs/heads/*:refs/remotes/origin/*"); err != nil {
			return fmt.Errorf("fetch %s: %w", *url, err)
		}
	}

	rev := "HEAD"
	if len(rest) > 0 {
		rev = rest[0]
	}
	head, err := a.resolve(ctx, rev)
	if err != nil {
		return err
	}

	op, f := a.openerAt(head)
	engine := stitch.New(a.shell, a.obj, op, f, a.log)

	opts := stitch.Options{
		Keep:        *keep,
		JoinRoot:    *joinRoot,
		SkipEmpty:   *skipEmpty,
		Parallelism: *numParallel,
	}
	if *targetBranch != "" {
		opts.TargetRef = "refs/heads/" + *targetBranch
	}

	out, err := engine.Stitch(ctx, head, opts)
	if err != nil {
		return err
	}
	if out.CommitsWritten == 0 {
		a.log.Info("nothing to stitch; all commits already converted")
		return nil
	}
	a.log.Info("stitch complete",
		"head", out.Head.Short(), "written", out.CommitsWritten, "skipped", out.CommitsSkipped)
	return nil
}
