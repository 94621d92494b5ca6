package gitshell

import (
	"context"
	"fmt"
	"strings"
)

// IndexFileEntry is one line of `git ls-files -v`: a path and whether the
// index currently marks it skip-worktree (a lowercase tag letter).
type IndexFileEntry struct {
	Path         string
	SkipWorktree bool
}

// ListIndexFlags lists every path in the index along with its
// skip-worktree bit.
func (r *Repository) ListIndexFlags(ctx context.Context) ([]IndexFileEntry, error) {
	out, err := r.cmd(ctx, "ls-files", "-v").OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("ls-files -v: %w", err)
	}
	var entries []IndexFileEntry
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		tag, path, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		entries = append(entries, IndexFileEntry{
			Path:         path,
			SkipWorktree: tag == strings.ToLower(tag),
		})
	}
	return entries, nil
}

// SetSkipWorktree sets or clears the skip-worktree bit on paths
// (`git update-index --skip-worktree` / `--no-skip-worktree`).
func (r *Repository) SetSkipWorktree(ctx context.Context, skip bool, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	flag := "--no-skip-worktree"
	if skip {
		flag = "--skip-worktree"
	}
	args := append([]string{"update-index", flag}, paths...)
	return r.cmd(ctx, args...).Run(r.exec)
}
