package gitshell

import (
	"fmt"
	"os"
)

// tempIndexPath allocates a scratch index file path (not yet created on
// disk; git creates it on first read-tree/update-index invocation) and a
// cleanup func that removes it.
func tempIndexPath() (string, func(), error) {
	f, err := os.CreateTemp("", "git-meta-index-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp index: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path) // git refuses to read-tree into an index file that already exists with content; let it create fresh
	return path, func() { _ = os.Remove(path) }, nil
}
