package gitshell

import (
	"fmt"
	"strings"

	"context"
)

// CommitMeta is the subset of a commit's metadata needed to replay it
// onto a different parent (cherry-pick/rebase), preserving the original
// author and message.
type CommitMeta struct {
	Parent      Hash
	Author      Signature
	Committer   Signature
	Message     string
}

// ReadCommitMeta reads commit's first parent, author, committer, and raw
// message, used by the cherry-pick/rebase engines to replay a commit
// onto a new parent with commit-tree while preserving its identity and
// message, the way `git cherry-pick`/`git rebase` do.
func (r *Repository) ReadCommitMeta(ctx context.Context, commit Hash) (*CommitMeta, error) {
	format := "%P%x00%an%x00%ae%x00%ad%x00%cn%x00%ce%x00%cd%x00%B"
	out, err := r.cmd(ctx, "log", "-1", "--date=raw", "--format="+format, commit.String()).Output(r.exec)
	if err != nil {
		return nil, fmt.Errorf("log -1 %s: %w", commit.Short(), err)
	}
	parts := strings.SplitN(string(out), "\x00", 8)
	for len(parts) < 8 {
		parts = append(parts, "")
	}
	var parent Hash
	if fields := strings.Fields(parts[0]); len(fields) > 0 {
		parent = Hash(fields[0])
	}
	return &CommitMeta{
		Parent:    parent,
		Author:    Signature{Name: parts[1], Email: parts[2], When: parts[3]},
		Committer: Signature{Name: parts[4], Email: parts[5], When: parts[6]},
		Message:   parts[7],
	}, nil
}

func (h Hash) Short() string {
	if len(h) <= 10 {
		return string(h)
	}
	return string(h[:10])
}
