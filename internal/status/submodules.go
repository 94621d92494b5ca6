package status

import (
	"context"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/opener"
)

// fillSubmoduleStatuses enumerates subs from the union of the open-sub set
// and the HEAD-tree/index diff, so additions and deletions appear too.
func (e *Engine) fillSubmoduleStatuses(ctx context.Context, st *gitmeta.RepoStatus, opts Options) error {
	openSubs, err := e.Opener.OpenSubs(ctx)
	if err != nil {
		return err
	}

	headEntries, err := e.headSubmoduleEntries(ctx, st.HeadCommit)
	if err != nil {
		return err
	}
	indexEntries, err := e.indexSubmoduleEntries(ctx)
	if err != nil {
		return err
	}

	names := map[gitmeta.Path]bool{}
	for n := range openSubs {
		names[n] = true
	}
	for n := range headEntries {
		names[n] = true
	}
	for n := range indexEntries {
		names[n] = true
	}

	for name := range names {
		ss := &gitmeta.SubmoduleStatus{}
		if h, ok := headEntries[name]; ok {
			ss.Commit = &gitmeta.SubmoduleRef{SHA: h.SHA, URL: h.URL}
		}
		if idx, ok := indexEntries[name]; ok {
			rel := gitmeta.RelationUnknown
			if ss.Commit != nil {
				rel = e.relation(ctx, idx.SHA, ss.Commit.SHA)
			}
			ss.Index = &gitmeta.SubmoduleRef{SHA: idx.SHA, URL: idx.URL, Relation: rel}
		}

		if openSubs[name] {
			sub, err := e.Opener.GetSubrepo(ctx, name, opener.AllowBare)
			if err == nil {
				wdStatus, wdRel, err := e.nestedStatus(ctx, sub, ss)
				if err == nil {
					ss.Workdir = &gitmeta.WorkdirRef{Status: wdStatus, Relation: wdRel}
				}
			}
		}
		st.Submodules[name] = ss
	}
	return nil
}

func (e *Engine) nestedStatus(ctx context.Context, sub *gitobj.Repository, ss *gitmeta.SubmoduleStatus) (*gitmeta.RepoStatus, gitmeta.Relation, error) {
	subShell := newSubShell(sub)
	subEngine := New(subShell, sub, e.Opener)
	nested, err := subEngine.GetRepoStatus(ctx, Options{ShowMetaChanges: true})
	if err != nil {
		return nil, gitmeta.RelationUnknown, err
	}
	rel := gitmeta.RelationUnknown
	if ss.Index != nil && nested.HeadCommit == ss.Index.SHA {
		rel = gitmeta.RelationSame
	}
	return nested, rel, nil
}

// relation classifies a's ancestry relative to b: SAME if equal, else
// tries descendantOf in both directions, UNKNOWN on any lookup failure.
func (e *Engine) relation(ctx context.Context, a, b gitmeta.SHA) gitmeta.Relation {
	if a == b {
		return gitmeta.RelationSame
	}
	if a.IsZero() || b.IsZero() {
		return gitmeta.RelationUnrelated
	}
	ah, bh := toHash(a), toHash(b)
	if ok, err := e.Shell.IsAncestor(ctx, bh, ah); err == nil && ok {
		return gitmeta.RelationAhead
	}
	if ok, err := e.Shell.IsAncestor(ctx, ah, bh); err == nil && ok {
		return gitmeta.RelationBehind
	}
	return gitmeta.RelationUnrelated
}
