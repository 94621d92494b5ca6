// Package sparsecheckout implements the meta-repo's sparse mode: a
// .git/info/sparse-checkout whose sole entry is ".gitmodules", with every
// tree entry other than .gitmodules and an open sub's own gitlink carrying
// SKIP_WORKTREE. This lets a meta-repo's working tree show only the subs
// the user has actually opened. The bits are driven through git's own
// update-index, since go-git has no sparse-checkout support.
package sparsecheckout

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-meta/git-meta/internal/gitshell"
)

const sparseFilePath = "info/sparse-checkout"

// InSparseMode reports whether repo is configured for the meta-repo's
// sparse mode: core.sparsecheckout=true and the sparse-checkout file's
// sole content is ".gitmodules".
func InSparseMode(ctx context.Context, r *gitshell.Repository, gitDir string) bool {
	enabled, err := r.ConfigBool(ctx, "core.sparsecheckout")
	if err != nil || !enabled {
		return false
	}
	data, err := os.ReadFile(filepath.Join(gitDir, sparseFilePath))
	if err != nil {
		return false
	}
	return string(data) == ".gitmodules\n"
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// AddToSparseFile appends name to the sparse-checkout file if not already
// present.
func AddToSparseFile(gitDir, name string) error {
	path := filepath.Join(gitDir, sparseFilePath)
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l == name {
			return nil
		}
	}
	lines = append(lines, name)
	return writeLines(path, lines)
}

// RemoveFromSparseFile removes every entry in names from the
// sparse-checkout file.
func RemoveFromSparseFile(gitDir string, names []string) error {
	path := filepath.Join(gitDir, sparseFilePath)
	lines, err := readLines(path)
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := lines[:0]
	for _, l := range lines {
		if !drop[l] {
			kept = append(kept, l)
		}
	}
	return writeLines(path, kept)
}
