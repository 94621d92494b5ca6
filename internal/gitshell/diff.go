package gitshell

import (
	"context"
	"fmt"
	"strings"
)

// DiffEntry is one changed path between two trees, as reported by
// `git diff-tree -r`.
type DiffEntry struct {
	OldMode string
	NewMode string
	OldHash Hash
	NewHash Hash
	Status  byte // 'A', 'D', 'M', 'T' (type change), 'R' (rename, unused here)
	Path    string
}

// DiffTrees reports the entries that differ between a and b (both
// tree-ish), non-recursive into subtrees already expressed via mode 040000
// changes unless recursive is requested.
func (r *Repository) DiffTrees(ctx context.Context, a, b Hash, recursive bool) ([]DiffEntry, error) {
	args := []string{"diff-tree", "-r", "--no-commit-id", "--full-tree"}
	if !recursive {
		args = []string{"diff-tree", "--no-commit-id", "--full-tree"}
	}
	args = append(args, a.String(), b.String())
	out, err := r.cmd(ctx, args...).OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("diff-tree: %w", err)
	}
	return parseDiffTree(out)
}

func parseDiffTree(out string) ([]DiffEntry, error) {
	var entries []DiffEntry
	for _, line := range splitLines(out) {
		if line == "" || !strings.HasPrefix(line, ":") {
			continue
		}
		meta, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		toks := strings.Fields(strings.TrimPrefix(meta, ":"))
		if len(toks) != 5 {
			continue
		}
		entries = append(entries, DiffEntry{
			OldMode: toks[0],
			NewMode: toks[1],
			OldHash: Hash(toks[2]),
			NewHash: Hash(toks[3]),
			Status:  toks[4][0],
			Path:    path,
		})
	}
	return entries, nil
}

// DiffIndexToWorktree reports paths changed in the working tree relative
// to the index (`git diff-files`). The raw output carries modes, so
// callers can tell a gitlink change apart from an ordinary file change.
func (r *Repository) DiffIndexToWorktree(ctx context.Context) ([]DiffEntry, error) {
	out, err := r.cmd(ctx, "diff-files", "--no-renames").OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("diff-files: %w", err)
	}
	return parseDiffTree(out)
}

// DiffHeadToIndex reports staged changes (`git diff-index --cached HEAD`),
// in the same mode-carrying raw format as DiffIndexToWorktree.
func (r *Repository) DiffHeadToIndex(ctx context.Context) ([]DiffEntry, error) {
	out, err := r.cmd(ctx, "diff-index", "--cached", "--no-renames", "HEAD").OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("diff-index --cached: %w", err)
	}
	return parseDiffTree(out)
}

// IsGitlink reports whether either side of the entry is a gitlink.
func (d DiffEntry) IsGitlink() bool {
	return d.OldMode == "160000" || d.NewMode == "160000"
}

// UntrackedFiles lists untracked paths; individual is false when git should
// roll directories up (matching StatusEngine's showAllUntracked option).
func (r *Repository) UntrackedFiles(ctx context.Context, individual bool) ([]string, error) {
	mode := "normal"
	if individual {
		mode = "all"
	}
	out, err := r.cmd(ctx, "ls-files", "--others", "--exclude-standard", "--directory="+mode).
		OutputString(r.exec)
	if err != nil {
		// --directory takes no value in some git versions; fall back.
		args := []string{"ls-files", "--others", "--exclude-standard"}
		if !individual {
			args = append(args, "--directory")
		}
		out, err = r.cmd(ctx, args...).OutputString(r.exec)
		if err != nil {
			return nil, fmt.Errorf("ls-files --others: %w", err)
		}
	}
	var files []string
	for _, line := range splitLines(out) {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
