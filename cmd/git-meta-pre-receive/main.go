// git-meta-pre-receive is the server-side push gate. Installed in a meta
// repo's hooks/ it verifies that every submodule commit a pushed ref
// introduces is pinned by a refs/commits/<sha> synthetic ref in the sub's
// server-side repository; installed in a submodule repo (with
// --submodule) it admits only well-formed synthetic-ref pushes.
//
// Exit status: 0 accepts the push, anything else rejects it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pborman/getopt"

	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/prereceive"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

func main() {
	repodir := getopt.StringLong("git-dir", 'd', ".", "path to the receiving repo", "GIT_DIR")
	submodule := getopt.BoolLong("submodule", 's', "run the submodule-side check")
	getopt.Parse()

	logger := log.New(os.Stderr)
	logger.SetPrefix("pre-receive")

	updates, err := prereceive.ParseUpdates(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if *submodule {
		if err := prereceive.CheckSubmodulePush(updates); err != nil {
			fmt.Fprintf(os.Stderr, "rejected: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// GIT_OBJECT_DIRECTORY / GIT_ALTERNATE_OBJECT_DIRECTORIES from the
	// receiving git's quarantine environment are inherited by every git
	// subprocess gitshell spawns, so the pushed-but-unreferenced objects
	// are visible without explicit alternate wiring.
	ctx := context.Background()
	shell := gitshell.Open(*repodir, logger)
	checker := &prereceive.MetaChecker{
		Shell:   shell,
		Locator: submoduleconfig.LoadServerLocator(ctx, shell),
		Log:     logger,
		Out:     os.Stderr,
	}
	if err := checker.Check(ctx, updates); err != nil {
		os.Exit(1)
	}
}
