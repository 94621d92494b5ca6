package gitshell

import (
	"context"
	"fmt"
	"strings"
)

// CommitInfo is the subset of commit metadata the engines need without a
// full object parse.
type CommitInfo struct {
	Hash        Hash
	ParentHashes []Hash
	IsMerge     bool
}

// ListAncestors lists the commits reachable from from but not from any of
// the stop revisions, topologically ordered so that every ancestor
// precedes its descendants. Merge commits are included in the listing;
// callers that want only non-merge commits filter on
// len(ParentHashes) > 1 themselves, since the traversal still needs to
// walk through merges to find their ancestors.
func (r *Repository) ListAncestors(ctx context.Context, from Hash, stop ...Hash) ([]CommitInfo, error) {
	args := []string{"rev-list", "--topo-order", "--reverse", "--parents", from.String()}
	// --not toggles for every following rev, so it is given once before
	// all of the stop revisions.
	if len(stop) > 0 {
		args = append(args, "--not")
	}
	for _, s := range stop {
		args = append(args, s.String())
	}
	out, err := r.cmd(ctx, args...).OutputString(r.exec)
	if err != nil {
		return nil, fmt.Errorf("rev-list: %w", err)
	}
	var commits []CommitInfo
	for _, line := range splitLines(out) {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		ci := CommitInfo{Hash: Hash(fields[0])}
		for _, p := range fields[1:] {
			ci.ParentHashes = append(ci.ParentHashes, Hash(p))
		}
		ci.IsMerge = len(ci.ParentHashes) > 1
		commits = append(commits, ci)
	}
	return commits, nil
}
