// Package prereceive implements the server-side push checks: the meta
// variant verifies that every submodule commit a pushed meta ref
// introduces is pinned by a refs/commits/<sha> synthetic ref in the sub's
// server-side repository (so nothing the meta history points at can be
// garbage-collected), and the submodule variant admits only well-formed
// synthetic-ref pushes.
package prereceive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// CheckNoteRef marks meta commits whose submodule pins have already been
// verified by an earlier push, so re-pushes stop walking there.
const CheckNoteRef = "refs/notes/git-meta/subrepo-check"

const syntheticPrefix = "refs/commits/"

var shaRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// RefUpdate is one "old new ref" line of pre-receive stdin.
type RefUpdate struct {
	Old gitshell.Hash
	New gitshell.Hash
	Ref string
}

// ParseUpdates reads the pre-receive stdin protocol: one update per line,
// three space-separated fields. Blank lines are ignored; anything else
// malformed is an error since git never produces it.
func ParseUpdates(r io.Reader) ([]RefUpdate, error) {
	var updates []RefUpdate
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed pre-receive line %q", line)
		}
		updates = append(updates, RefUpdate{
			Old: gitshell.Hash(fields[0]),
			New: gitshell.Hash(fields[1]),
			Ref: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}

// CheckSubmodulePush is the submodule-side variant: a push is accepted
// only when every updated ref is refs/commits/<sha> and the new value is
// exactly that sha. Deletions of synthetic refs are admitted too (the GC
// deletes them through the same hook).
func CheckSubmodulePush(updates []RefUpdate) error {
	for _, u := range updates {
		sha, ok := strings.CutPrefix(u.Ref, syntheticPrefix)
		if !ok || !shaRe.MatchString(sha) {
			return fmt.Errorf("ref %s: only refs/commits/<sha> may be pushed here", u.Ref)
		}
		if u.New.IsZero() {
			continue
		}
		if string(u.New) != sha {
			return fmt.Errorf("ref %s: must point at %s, not %s", u.Ref, sha, u.New)
		}
	}
	return nil
}

// MetaChecker verifies meta-repo pushes.
type MetaChecker struct {
	Shell   *gitshell.Repository
	Locator submoduleconfig.ServerLocator
	Log     *log.Logger
	Out     io.Writer
}

// Check validates every branch update: each meta commit between the
// previous tip (or the last check-noted ancestor) and the new tip must
// only add or change submodule shas that carry a synthetic ref in the
// sub's server-side repo. Valid updates get an "ok" note on the new tip.
func (c *MetaChecker) Check(ctx context.Context, updates []RefUpdate) error {
	notes := c.Shell.Notes(CheckNoteRef)

	for _, u := range updates {
		if !strings.HasPrefix(u.Ref, "refs/heads/") || u.New.IsZero() {
			continue
		}

		toCheck, err := c.commitsToCheck(ctx, u, notes)
		if err != nil {
			return err
		}
		for _, commit := range toCheck {
			if err := c.checkCommit(ctx, commit, u.Ref); err != nil {
				return err
			}
		}
		if err := notes.Add(ctx, u.New, "ok"); err != nil {
			c.Log.Warn("could not record check note", "commit", u.New.Short(), "err", err)
		}
	}
	return nil
}

func (c *MetaChecker) commitsToCheck(ctx context.Context, u RefUpdate, notes *gitshell.Notes) ([]gitshell.Hash, error) {
	var stop []gitshell.Hash
	if !u.Old.IsZero() {
		stop = append(stop, u.Old)
	}
	ancestors, err := c.Shell.ListAncestors(ctx, u.New, stop...)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", u.Ref, err)
	}
	// Walk newest first so a noted commit can exclude its ancestors too.
	excluded := map[gitshell.Hash]bool{}
	var out []gitshell.Hash
	for i := len(ancestors) - 1; i >= 0; i-- {
		ci := ancestors[i]
		if excluded[ci.Hash] || notes.Has(ctx, ci.Hash) {
			for _, p := range ci.ParentHashes {
				excluded[p] = true
			}
			continue
		}
		out = append(out, ci.Hash)
	}
	return out, nil
}

// checkCommit diffs commit against its first parent (the empty tree for a
// root commit) and verifies every added or changed gitlink.
func (c *MetaChecker) checkCommit(ctx context.Context, commit gitshell.Hash, ref string) error {
	const emptyTree = gitshell.Hash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

	meta, err := c.Shell.ReadCommitMeta(ctx, commit)
	if err != nil {
		return err
	}
	base := meta.Parent
	if base == "" {
		base = emptyTree
	}
	diffs, err := c.Shell.DiffTrees(ctx, base, commit, false)
	if err != nil {
		return fmt.Errorf("diff %s: %w", commit.Short(), err)
	}

	var urls map[string]string
	for _, d := range diffs {
		if d.NewMode != "160000" || d.NewHash.IsZero() {
			continue
		}
		if urls == nil {
			if urls, err = c.gitmodulesAt(ctx, commit); err != nil {
				return err
			}
		}
		if err := c.checkPinned(ctx, d.Path, urls[d.Path], d.NewHash); err != nil {
			fmt.Fprintf(c.Out, "rejected %s: %v\n", ref, err)
			return err
		}
	}
	return nil
}

func (c *MetaChecker) checkPinned(ctx context.Context, name, url string, sha gitshell.Hash) error {
	if url == "" {
		return fmt.Errorf("submodule %q has no url in .gitmodules", name)
	}
	local := c.Locator.LocalPath(url)
	if local == "" {
		return fmt.Errorf("submodule %q url %q is outside the configured url base", name, url)
	}
	sub := gitshell.Open(local, c.Log)
	got, err := sub.RevParse(ctx, syntheticPrefix+sha.String())
	if err != nil || got != sha {
		return fmt.Errorf("submodule %q commit %s has no %s%s", name, sha.Short(), syntheticPrefix, sha)
	}
	return nil
}

func (c *MetaChecker) gitmodulesAt(ctx context.Context, commit gitshell.Hash) (map[string]string, error) {
	blob, err := c.Shell.RevParse(ctx, commit.String()+":.gitmodules")
	if err != nil {
		return map[string]string{}, nil
	}
	data, err := c.Shell.ReadBlob(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules at %s: %w", commit.Short(), err)
	}
	return submoduleconfig.ParseGitmodules(string(data)), nil
}
