package gitshell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MergeTreeRequest describes a three-way merge performed entirely in the
// object database, touching neither the index nor the working tree.
type MergeTreeRequest struct {
	Base    Hash // merge base; required
	Ours    Hash
	Theirs  Hash
}

// MergeTreeConflictFile is one conflicted path reported by merge-tree.
type MergeTreeConflictFile struct {
	Mode  string
	Hash  Hash
	Stage int
	Path  string
}

// MergeTreeResult is the outcome of a MergeTree call.
type MergeTreeResult struct {
	Tree      Hash
	Clean     bool
	Conflicts []MergeTreeConflictFile
}

// MergeTree runs `git merge-tree --write-tree --stdin` to compute a
// 3-way merge of two trees against an explicit base without disturbing
// the caller's index or working tree, parsing the null-delimited output
// protocol into a tree hash plus per-file conflict stages.
func (r *Repository) MergeTree(ctx context.Context, req MergeTreeRequest) (*MergeTreeResult, error) {
	stdin := fmt.Sprintf("%s -- %s %s\n", req.Base, req.Ours, req.Theirs)
	cmd := r.cmd(ctx, "merge-tree", "--write-tree", "--stdin", "-z").StdinString(stdin)

	out, err := cmd.Output(r.exec)
	if err != nil {
		// merge-tree exits 1 on conflict, which still has well-formed
		// stdout; only treat other exit statuses as hard failures.
		var exitErr interface{ ExitCode() int }
		if !errors.As(err, &exitErr) || exitErr.ExitCode() > 1 {
			return nil, fmt.Errorf("merge-tree: %w", err)
		}
	}

	scan := bufio.NewScanner(strings.NewReader(string(out)))
	scan.Split(splitNull)

	if !scan.Scan() {
		return nil, fmt.Errorf("merge-tree: no status output")
	}
	clean := scan.Text() == "1"

	if !scan.Scan() {
		return nil, fmt.Errorf("merge-tree: no tree hash output")
	}
	result := &MergeTreeResult{Tree: Hash(scan.Text()), Clean: clean}
	if clean {
		return result, nil
	}

	for scan.Scan() && scan.Text() != "" {
		line := scan.Text()
		cf, ok := parseConflictFileLine(line)
		if ok {
			result.Conflicts = append(result.Conflicts, cf)
		}
	}
	// Remaining null-delimited sections are informational
	// (Auto-merging/CONFLICT messages); not needed for index staging, so
	// drain and discard them.
	for scan.Scan() {
	}
	return result, nil
}

func parseConflictFileLine(line string) (MergeTreeConflictFile, bool) {
	rest, path, ok := strings.Cut(line, "\t")
	if !ok {
		return MergeTreeConflictFile{}, false
	}
	toks := strings.SplitN(rest, " ", 3)
	if len(toks) != 3 {
		return MergeTreeConflictFile{}, false
	}
	stage, err := strconv.Atoi(toks[2])
	if err != nil {
		return MergeTreeConflictFile{}, false
	}
	return MergeTreeConflictFile{Mode: toks[0], Hash: Hash(toks[1]), Stage: stage, Path: path}, true
}
