package status

import (
	"context"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/gitshell"
)

type nameURL struct {
	SHA gitmeta.SHA
	URL string
}

func (e *Engine) headSubmoduleEntries(ctx context.Context, head gitmeta.SHA) (map[gitmeta.Path]nameURL, error) {
	out := map[gitmeta.Path]nameURL{}
	if head.IsZero() {
		return out, nil
	}
	commit, err := e.Obj.CommitObject(gitobj.NewHash(head.String()))
	if err != nil {
		return out, nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return out, nil
	}
	subs, err := e.Obj.ListSubmodules(tree)
	if err != nil {
		return out, nil
	}
	for _, s := range subs {
		out[gitmeta.Path(s.Path)] = nameURL{SHA: gitmeta.SHA(s.SHA.String()), URL: s.URL}
	}
	return out, nil
}

func (e *Engine) indexSubmoduleEntries(ctx context.Context) (map[gitmeta.Path]nameURL, error) {
	out := map[gitmeta.Path]nameURL{}
	entries, err := e.Shell.ListIndexEntries(ctx)
	if err != nil {
		return out, err
	}
	for _, entry := range entries {
		if entry.Mode != "160000" {
			continue
		}
		out[gitmeta.Path(entry.Path)] = nameURL{SHA: gitmeta.SHA(entry.Hash.String())}
	}
	return out, nil
}

func toHash(s gitmeta.SHA) gitshell.Hash { return gitshell.Hash(s.String()) }

func newSubShell(sub *gitobj.Repository) *gitshell.Repository {
	dir := sub.Root
	if dir == "" {
		dir = sub.GitDir
	}
	return gitshell.Open(dir, nil)
}
