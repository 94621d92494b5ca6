// Package statuscheck re-validates the at-rest invariants of a meta-repo
// against its live on-disk state: the open-sub set, the gitlink/URL
// correspondence, sparse-checkout bits, and sub HEAD alignment. It is the
// engine behind `git-meta status --check-invariants` and exists so a
// repo that was mutated out of band can be diagnosed instead of guessed
// at.
package statuscheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/sequencer"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// Violation is one detected invariant breach.
type Violation struct {
	Invariant string // short identifier, e.g. "open-set"
	Detail    string
}

func (v Violation) String() string { return v.Invariant + ": " + v.Detail }

// Check runs every invariant check and returns the violations found.
// An empty result means the repo is consistent.
func Check(ctx context.Context, shell *gitshell.Repository, gitDir, workDir string) ([]Violation, error) {
	var out []Violation

	configText, err := readFile(filepath.Join(gitDir, "config"))
	if err != nil {
		return nil, err
	}
	configured := submoduleconfig.ParseOpenSubs(configText)

	gitlinks, urls, err := indexState(ctx, shell, workDir)
	if err != nil {
		return nil, err
	}

	opInProgress := sequencer.InProgress(gitDir, gitmeta.OpMerge) ||
		sequencer.InProgress(gitDir, gitmeta.OpCherryPick) ||
		sequencer.InProgress(gitDir, gitmeta.OpRebase)

	out = append(out, checkOpenSet(gitDir, workDir, configured)...)
	out = append(out, checkURLCorrespondence(gitlinks, urls)...)
	if !opInProgress {
		out = append(out, checkSubHeads(ctx, workDir, configured, gitlinks)...)
	}
	if sparsecheckout.InSparseMode(ctx, shell, gitDir) {
		v, err := checkSparseBits(ctx, shell, gitDir, workDir, configured)
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

// checkOpenSet validates that a configured sub is open iff both its
// workdir .git link and .git/modules/<name>/HEAD exist; half-open means
// only the latter.
func checkOpenSet(gitDir, workDir string, configured map[string]bool) []Violation {
	var out []Violation
	for name := range configured {
		dotGit := exists(filepath.Join(workDir, name, ".git"))
		modHead := exists(filepath.Join(gitDir, "modules", name, "HEAD"))
		switch {
		case dotGit && !modHead:
			out = append(out, Violation{
				Invariant: "open-set",
				Detail:    fmt.Sprintf("submodule %q has a workdir .git but no .git/modules/%s/HEAD", name, name),
			})
		case !dotGit && !modHead:
			out = append(out, Violation{
				Invariant: "open-set",
				Detail:    fmt.Sprintf("submodule %q is configured but neither open nor half-open on disk", name),
			})
		}
	}
	return out
}

// checkURLCorrespondence validates that the .gitmodules URL name set
// equals the index-gitlink name set.
func checkURLCorrespondence(gitlinks map[string]gitshell.Hash, urls map[string]string) []Violation {
	var out []Violation
	for name := range urls {
		if _, ok := gitlinks[name]; !ok {
			out = append(out, Violation{
				Invariant: "gitmodules",
				Detail:    fmt.Sprintf(".gitmodules names %q but the index has no gitlink for it", name),
			})
		}
	}
	for name := range gitlinks {
		if _, ok := urls[name]; !ok {
			out = append(out, Violation{
				Invariant: "gitmodules",
				Detail:    fmt.Sprintf("index gitlink %q has no url in .gitmodules", name),
			})
		}
	}
	return out
}

// checkSubHeads validates that every open sub's HEAD equals its
// staged gitlink sha. Skipped entirely while a sequencer is present.
func checkSubHeads(ctx context.Context, workDir string, configured map[string]bool, gitlinks map[string]gitshell.Hash) []Violation {
	var out []Violation
	for name := range configured {
		if !exists(filepath.Join(workDir, name, ".git")) {
			continue
		}
		staged, ok := gitlinks[name]
		if !ok {
			continue
		}
		sub := gitshell.Open(filepath.Join(workDir, name), nil)
		head, err := sub.RevParse(ctx, "HEAD")
		if err != nil {
			out = append(out, Violation{
				Invariant: "sub-head",
				Detail:    fmt.Sprintf("open submodule %q has no resolvable HEAD", name),
			})
			continue
		}
		if head != staged {
			out = append(out, Violation{
				Invariant: "sub-head",
				Detail:    fmt.Sprintf("submodule %q HEAD %s != staged gitlink %s", name, head.Short(), staged.Short()),
			})
		}
	}
	return out
}

// checkSparseBits validates that exactly .gitmodules and open subs
// have SKIP_WORKTREE cleared.
func checkSparseBits(ctx context.Context, shell *gitshell.Repository, gitDir, workDir string, configured map[string]bool) ([]Violation, error) {
	entries, err := shell.ListIndexFlags(ctx)
	if err != nil {
		return nil, err
	}
	open := map[string]bool{}
	for name := range configured {
		if exists(filepath.Join(workDir, name, ".git")) && exists(filepath.Join(gitDir, "modules", name, "HEAD")) {
			open[name] = true
		}
	}
	var out []Violation
	for _, e := range entries {
		shouldShow := e.Path == ".gitmodules" || open[e.Path]
		if shouldShow && e.SkipWorktree {
			out = append(out, Violation{
				Invariant: "sparse-bits",
				Detail:    fmt.Sprintf("%q should be materialized but carries skip-worktree", e.Path),
			})
		}
		if !shouldShow && !e.SkipWorktree {
			out = append(out, Violation{
				Invariant: "sparse-bits",
				Detail:    fmt.Sprintf("%q should carry skip-worktree in sparse mode", e.Path),
			})
		}
	}
	return out, nil
}

func indexState(ctx context.Context, shell *gitshell.Repository, workDir string) (map[string]gitshell.Hash, map[string]string, error) {
	entries, err := shell.ListIndexEntries(ctx)
	if err != nil {
		return nil, nil, err
	}
	gitlinks := map[string]gitshell.Hash{}
	for _, e := range entries {
		if e.Mode == "160000" {
			gitlinks[e.Path] = e.Hash
		}
	}
	text, err := readFile(filepath.Join(workDir, ".gitmodules"))
	if err != nil {
		return nil, nil, err
	}
	return gitlinks, submoduleconfig.ParseGitmodules(text), nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
