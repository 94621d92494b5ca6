// git-meta is the composite porcelain over a meta-repository: every
// command keeps the meta-repo and its open submodules mutually
// consistent (open, close, checkout, reset, merge, cherry-pick, rebase,
// status, stitch).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/metaerr"
)

var usageStr = `
Commands:
    open [-c <commitish>] [-f] [--half] <path>...   Open submodules
    close <name>...                                 Deinit submodules
    checkout [-b <name>] [<committish>]             Checkout meta + open subs
    reset [--soft|--mixed|--hard] [<committish>] [-- <path>...]
    merge [--ff-only|--no-ff] [-m <msg>] [--bare] <committish>
    merge --continue | --abort
    cherry-pick <committish> | --continue | --abort
    rebase <onto> | --continue | --abort
    status [--porcelain] [--check-invariants] [<path>...]
    stitch [--target-branch <name>] [--keep <path>]... [--skip-empty]
           [--join-root <path>] [--num-parallel <n>] [<committish>]
    stitch --gc [--dry-run]                         Prune synthetic refs
`

func usage() {
	fmt.Fprintf(os.Stderr, "\n")
	getopt.PrintUsage(os.Stderr)
	fmt.Fprint(os.Stderr, usageStr)
}

func usagef(format string, args ...interface{}) {
	usage()
	fmt.Fprintf(os.Stderr, "\nfatal: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	getopt.SetUsage(usage)
	repodir := getopt.StringLong("git-dir", 'd', ".", "path to the meta repo", "GIT_DIR")
	verbose := getopt.BoolLong("verbose", 'v', "verbose mode")
	getopt.Parse()

	logger := log.New(os.Stderr)
	logger.SetPrefix("git-meta")
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	args := getopt.Args()
	if len(args) < 1 {
		usagef("no command specified.")
	}

	a, err := newApp(*repodir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	switch args[0] {
	case "open":
		err = a.cmdOpen(ctx, args)
	case "close":
		err = a.cmdClose(ctx, args)
	case "checkout":
		err = a.cmdCheckout(ctx, args)
	case "reset":
		err = a.cmdReset(ctx, args)
	case "merge":
		err = a.cmdMerge(ctx, args)
	case "cherry-pick":
		err = a.cmdCherryPick(ctx, args)
	case "rebase":
		err = a.cmdRebase(ctx, args)
	case "status":
		err = a.cmdStatus(ctx, args)
	case "stitch":
		err = a.cmdStitch(ctx, args)
	default:
		usagef("unknown command %v", args[0])
	}
	os.Exit(exitCode(err))
}

// exitCode maps the error taxonomy to the shared CLI contract: 0 on
// success, 1 for user errors, 2 for anything internal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var userErr metaerr.UserError
	if errors.As(err, &userErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", userErr)
		return 1
	}
	var multi *metaerr.MultiError
	if errors.As(err, &multi) {
		allUser := true
		for _, e := range multi.Errs {
			var u metaerr.UserError
			if !errors.As(e, &u) {
				allUser = false
				break
			}
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", multi)
		if allUser {
			return 1
		}
		return 2
	}
	fmt.Fprintf(os.Stderr, "internal error: %v\n", err)
	return 2
}
