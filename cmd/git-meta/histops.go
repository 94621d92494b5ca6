package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/cherrypick"
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/mergeengine"
	"github.com/git-meta/git-meta/internal/metaerr"
	"github.com/git-meta/git-meta/internal/rebase"
	"github.com/git-meta/git-meta/internal/reset"
)

// cmdReset is the composite reset: meta and every affected open sub
// in lockstep, or path-mode partial reset when paths are given.
func (a *app) cmdReset(ctx context.Context, args []string) error {
	set := getopt.New()
	soft := set.BoolLong("soft", 0, "move HEAD only")
	mixed := set.BoolLong("mixed", 0, "move HEAD and reset the index")
	hard := set.BoolLong("hard", 0, "move HEAD and reset index and worktree")
	set.Parse(args)
	rest := set.Args()

	head, err := a.head(ctx)
	if err != nil {
		return err
	}

	commit := head
	var paths []string
	if len(rest) > 0 {
		if c, err := a.resolve(ctx, rest[0]); err == nil {
			commit = c
			paths = rest[1:]
		} else {
			paths = rest
		}
	}

	op, f := a.openerAt(head)
	engine := reset.New(a.shell, a.obj, a.gitDir, op, f)

	if len(paths) > 0 {
		if *soft || *mixed || *hard {
			return fmt.Errorf("reset with paths takes no mode flag")
		}
		gp := make([]gitmeta.Path, len(paths))
		for i, p := range paths {
			gp[i] = gitmeta.Path(p)
		}
		return engine.ResetPaths(ctx, a.cwdRelative(), commit, gp)
	}

	mode := gitshell.ResetMixed
	switch {
	case *soft:
		mode = gitshell.ResetSoft
	case *hard:
		mode = gitshell.ResetHard
	case *mixed:
	}
	return engine.Reset(ctx, commit, mode)
}

// cwdRelative returns the caller's cwd relative to the meta worktree
// root, "" when outside it (paths then resolve from the root).
func (a *app) cwdRelative() gitmeta.Path {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(a.workDir, wd)
	if err != nil || rel == "." || len(rel) >= 2 && rel[:2] == ".." {
		return ""
	}
	return gitmeta.Path(filepath.ToSlash(rel))
}

func (a *app) cmdMerge(ctx context.Context, args []string) error {
	set := getopt.New()
	ffOnly := set.BoolLong("ff-only", 0, "refuse anything but a fast-forward")
	noFF := set.BoolLong("no-ff", 0, "always create a merge commit")
	message := set.StringLong("message", 'm', "", "merge commit message", "MSG")
	cont := set.BoolLong("continue", 0, "resume after resolving conflicts")
	abort := set.BoolLong("abort", 0, "abandon the in-progress merge")
	bare := set.BoolLong("bare", 0, "merge without touching any working tree")
	set.Parse(args)
	rest := set.Args()

	head, err := a.head(ctx)
	if err != nil {
		return err
	}
	op, f := a.openerAt(head)
	engine := mergeengine.New(a.shell, a.gitDir, a.workDir, op, f, a.log)

	opts := mergeengine.Options{
		RefToUpdate: "HEAD",
		ForceBare:   *bare,
		Author:      a.identity(ctx, "AUTHOR"),
		Committer:   a.identity(ctx, "COMMITTER"),
	}
	switch {
	case *ffOnly:
		opts.FF = mergeengine.FFOnly
	case *noFF:
		opts.FF = mergeengine.ForceCommit
	}

	switch {
	case *abort:
		return engine.Abort(ctx)
	case *cont:
		out, err := engine.Continue(ctx, opts, *message)
		if err != nil {
			return err
		}
		a.log.Info("merge completed", "commit", out.FinishSHA.Short())
		return nil
	}

	if len(rest) != 1 {
		return fmt.Errorf("merge takes exactly one committish")
	}
	if !*bare {
		clean, err := a.statusAt(op).IsDeepClean(ctx, false)
		if err != nil {
			return err
		}
		if !clean {
			return &metaerr.NotDeepClean{}
		}
	}
	theirs, err := a.resolve(ctx, rest[0])
	if err != nil {
		return err
	}
	msg := *message
	if msg == "" {
		msg = fmt.Sprintf("Merge %s into %s", rest[0], currentBranchOr(ctx, a.shell, "HEAD"))
	}

	out, err := engine.Merge(ctx, head, theirs, opts, msg)
	if err != nil {
		return err
	}
	switch {
	case out.NoOp:
		a.log.Info("already up to date")
	case out.FastForward:
		a.log.Info("fast-forwarded", "commit", out.FinishSHA.Short())
	default:
		a.log.Info("merge completed", "commit", out.FinishSHA.Short())
	}
	return nil
}

func (a *app) cmdCherryPick(ctx context.Context, args []string) error {
	set := getopt.New()
	cont := set.BoolLong("continue", 0, "resume after resolving conflicts")
	abort := set.BoolLong("abort", 0, "abandon the in-progress cherry-pick")
	set.Parse(args)
	rest := set.Args()

	head, err := a.head(ctx)
	if err != nil {
		return err
	}
	op, f := a.openerAt(head)
	engine := cherrypick.New(a.shell, a.obj, a.gitDir, a.workDir, op, f, a.statusAt(op), a.log)

	switch {
	case *abort:
		return engine.Abort(ctx)
	case *cont:
		out, err := engine.Continue(ctx)
		if err != nil {
			return err
		}
		a.log.Info("cherry-pick completed", "commit", out.FinishSHA.Short())
		return nil
	}

	if len(rest) != 1 {
		return fmt.Errorf("cherry-pick takes exactly one committish")
	}
	commit, err := a.resolve(ctx, rest[0])
	if err != nil {
		return err
	}
	out, err := engine.CherryPick(ctx, commit)
	if err != nil {
		return err
	}
	a.log.Info("cherry-pick completed", "commit", out.FinishSHA.Short())
	return nil
}

func (a *app) cmdRebase(ctx context.Context, args []string) error {
	set := getopt.New()
	cont := set.BoolLong("continue", 0, "resume after resolving conflicts")
	abort := set.BoolLong("abort", 0, "abandon the in-progress rebase")
	set.Parse(args)
	rest := set.Args()

	head, err := a.head(ctx)
	if err != nil {
		return err
	}
	op, f := a.openerAt(head)
	engine := rebase.New(a.shell, a.obj, a.gitDir, a.workDir, op, f, a.statusAt(op), a.log)

	switch {
	case *abort:
		return engine.Abort(ctx)
	case *cont:
		out, err := engine.Continue(ctx)
		if err != nil {
			return err
		}
		a.log.Info("rebase completed", "commit", out.FinishSHA.Short())
		return nil
	}

	if len(rest) != 1 {
		return fmt.Errorf("rebase takes exactly one onto committish")
	}
	onto, err := a.resolve(ctx, rest[0])
	if err != nil {
		return err
	}
	out, err := engine.Rebase(ctx, onto)
	if err != nil {
		return err
	}
	switch {
	case out.NoOp:
		a.log.Info("already up to date")
	case out.FastForward:
		a.log.Info("fast-forwarded", "commit", out.FinishSHA.Short())
	default:
		a.log.Info("rebase completed", "commit", out.FinishSHA.Short(), "commits", len(out.CommitMap))
	}
	return nil
}

func currentBranchOr(ctx context.Context, shell *gitshell.Repository, fallback string) string {
	if b, err := shell.SymbolicRef(ctx, "HEAD"); err == nil && b != "" {
		return b
	}
	return fallback
}
