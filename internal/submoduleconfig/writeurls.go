package submoduleconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/git-meta/git-meta/internal/gitshell"
)

// WriteURLs re-materializes .gitmodules from urls. With cached=false (the
// common working-tree path) it writes the file and stages it itself. With
// cached=true (used by merge's --force-bare path, "merge-bare") it writes
// the blob straight to the object database and stages an index entry
// without touching the working tree at all. An empty urls map removes
// .gitmodules from the index (and, with cached=false, from the working
// tree) instead.
func WriteURLs(ctx context.Context, r *gitshell.Repository, workDir string, urls map[string]string, cached bool) error {
	content := WriteGitmodules(urls)

	if !cached {
		path := filepath.Join(workDir, ".gitmodules")
		if len(urls) == 0 {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove .gitmodules: %w", err)
			}
			return r.RemoveFromIndex(ctx, ".gitmodules")
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write .gitmodules: %w", err)
		}
		return r.AddPath(ctx, ".gitmodules")
	}

	if len(urls) == 0 {
		return r.RemoveFromIndex(ctx, ".gitmodules")
	}
	hash, err := r.WriteBlob(ctx, []byte(content))
	if err != nil {
		return fmt.Errorf("write .gitmodules blob: %w", err)
	}
	return r.UpdateIndex(ctx, []gitshell.IndexEntry{{Mode: "100644", Hash: hash, Path: ".gitmodules"}})
}
