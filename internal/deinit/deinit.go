// Package deinit implements "close": removing a submodule's working-tree
// materialization while leaving its .git/modules/<name> object store
// intact. Cleanup tolerates ENOENT/ENOTEMPTY throughout, so a
// half-removed sub can be closed again.
package deinit

import (
	"context"
	"os"
	"path/filepath"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/sparsecheckout"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// Names deinits every name in names: in sparse mode it removes the
// sub's working directory and prunes now-empty parents; otherwise it
// empties the directory's contents but keeps the directory itself (an
// absent directory there would look like a submodule deletion to Git).
// It then clears each name's [submodule] config stanza. Callers MUST
// follow with sparsecheckout.SetSparseBitsAndWriteIndex.
func Names(ctx context.Context, r *gitshell.Repository, gitDir, workDir string, names []gitmeta.Path, sparse bool) error {
	for _, name := range names {
		if err := One(gitDir, workDir, string(name), sparse); err != nil {
			return err
		}
	}
	if sparse {
		strs := make([]string, len(names))
		for i, n := range names {
			strs[i] = string(n)
		}
		if err := sparsecheckout.RemoveFromSparseFile(gitDir, strs); err != nil {
			return err
		}
	}
	return nil
}

// One deinits a single submodule path, tolerating a directory that is
// already gone.
func One(gitDir, workDir, name string, sparse bool) error {
	dir := filepath.Join(workDir, name)

	if sparse {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			return err
		}
		pruneEmptyParents(workDir, filepath.Dir(name))
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			for _, e := range entries {
				if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
					return err
				}
			}
		}
	}

	return submoduleconfig.ClearConfigEntry(filepath.Join(gitDir, "config"), name)
}

// pruneEmptyParents walks upward from workDir/rel, removing directories
// that have become empty, stopping at workDir or on the first non-empty
// one. ENOENT/ENOTEMPTY are not errors here, just stop conditions.
func pruneEmptyParents(workDir, rel string) {
	dir := rel
	for dir != "." && dir != "/" && dir != "" {
		full := filepath.Join(workDir, dir)
		entries, err := os.ReadDir(full)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(full); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
