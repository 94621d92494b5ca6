package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/status"
	"github.com/git-meta/git-meta/internal/statuscheck"
)

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	set := getopt.New()
	porcelain := set.BoolLong("porcelain", 0, "machine-readable output")
	allUntracked := set.BoolLong("all-untracked", 'u', "list untracked files individually")
	metaChanges := set.BoolLong("meta", 0, "include non-submodule file changes")
	checkInvariants := set.BoolLong("check-invariants", 0, "validate on-disk invariants and report violations")
	set.Parse(args)
	paths := set.Args()

	if *checkInvariants {
		violations, err := statuscheck.Check(ctx, a.shell, a.gitDir, a.workDir)
		if err != nil {
			return err
		}
		for _, v := range violations {
			fmt.Printf("violation: %s\n", v)
		}
		if len(violations) > 0 {
			return fmt.Errorf("%d invariant violations", len(violations))
		}
		fmt.Println("ok")
		return nil
	}

	head, err := a.head(ctx)
	if err != nil {
		return err
	}
	op, _ := a.openerAt(head)

	opts := status.Options{
		ShowAllUntracked: *allUntracked,
		ShowMetaChanges:  *metaChanges,
		Cwd:              a.cwdRelative(),
	}
	for _, p := range paths {
		opts.Paths = append(opts.Paths, gitmeta.Path(p))
	}

	st, err := a.statusAt(op).GetRepoStatus(ctx, opts)
	if err != nil {
		return err
	}
	if *porcelain {
		renderPorcelain(os.Stdout, st)
	} else {
		renderHuman(os.Stdout, st)
	}
	return nil
}

func renderHuman(w *os.File, st *gitmeta.RepoStatus) {
	if st.CurrentBranch != "" {
		fmt.Fprintf(w, "On branch %s\n", st.CurrentBranch)
	} else {
		fmt.Fprintf(w, "HEAD detached at %s\n", st.HeadCommit.Short())
	}
	if st.Sequencer != nil {
		fmt.Fprintf(w, "A %s is in progress (target %s).\n", st.Sequencer.Type, st.Sequencer.Target.Short())
		fmt.Fprintf(w, "  (use \"git-meta %s --continue\" or \"git-meta %s --abort\")\n", st.Sequencer.Type, st.Sequencer.Type)
	}

	if len(st.Staged) > 0 {
		fmt.Fprintln(w, "Changes to be committed:")
		for _, p := range sortedPaths(st.Staged) {
			fmt.Fprintf(w, "\t%s:   %s\n", changeWord(st.Staged[p]), p)
		}
	}
	if len(st.Workdir) > 0 {
		fmt.Fprintln(w, "Changes not staged for commit:")
		for _, p := range sortedPaths(st.Workdir) {
			fmt.Fprintf(w, "\t%s:   %s\n", changeWord(st.Workdir[p]), p)
		}
	}

	names := make([]gitmeta.Path, 0, len(st.Submodules))
	for n := range st.Submodules {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, n := range names {
		sub := st.Submodules[n]
		fmt.Fprintf(w, "submodule %s: %s\n", n, describeSub(sub))
		if sub.Workdir != nil && sub.Workdir.Status != nil && !sub.Workdir.Status.IsDeepClean(true) {
			fmt.Fprintf(w, "\t(has uncommitted changes)\n")
		}
	}
}

// renderPorcelain emits one stable tab-separated line per fact, for
// scripting: H <sha>, B <branch>, S/W <change> <path>, M <sub> <state>.
func renderPorcelain(w *os.File, st *gitmeta.RepoStatus) {
	fmt.Fprintf(w, "H\t%s\n", st.HeadCommit)
	if st.CurrentBranch != "" {
		fmt.Fprintf(w, "B\t%s\n", st.CurrentBranch)
	}
	for _, p := range sortedPaths(st.Staged) {
		fmt.Fprintf(w, "S\t%s\t%s\n", changeWord(st.Staged[p]), p)
	}
	for _, p := range sortedPaths(st.Workdir) {
		fmt.Fprintf(w, "W\t%s\t%s\n", changeWord(st.Workdir[p]), p)
	}
	names := make([]gitmeta.Path, 0, len(st.Submodules))
	for n := range st.Submodules {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, n := range names {
		fmt.Fprintf(w, "M\t%s\t%s\n", n, describeSub(st.Submodules[n]))
	}
}

func describeSub(sub *gitmeta.SubmoduleStatus) string {
	switch {
	case sub.Commit == nil && sub.Index != nil:
		return "added, staged at " + sub.Index.SHA.Short()
	case sub.Commit != nil && sub.Index == nil:
		return "removed (was " + sub.Commit.SHA.Short() + ")"
	case sub.Index != nil && sub.Index.Relation != gitmeta.RelationSame:
		return fmt.Sprintf("staged %s, %s of HEAD", sub.Index.SHA.Short(), sub.Index.Relation)
	case sub.Workdir == nil:
		return "closed"
	case sub.Index != nil:
		return "open at " + sub.Index.SHA.Short()
	default:
		return "open"
	}
}

func changeWord(c gitmeta.Change) string {
	switch c {
	case gitmeta.ChangeFileAdded:
		return "new file"
	case gitmeta.ChangeFileDeleted:
		return "deleted"
	case gitmeta.ChangeFileTypeChange:
		return "typechange"
	case gitmeta.ChangeFileConflicted:
		return "conflict"
	default:
		return "modified"
	}
}

func sortedPaths(m map[gitmeta.Path]gitmeta.Change) []gitmeta.Path {
	out := make([]gitmeta.Path, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
