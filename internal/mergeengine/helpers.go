package mergeengine

import (
	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
)

func newSubShell(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}

func toStrBoolMap(m map[gitmeta.Path]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
