package rebase

import (
	"context"

	"github.com/git-meta/git-meta/internal/gitshell"
	"github.com/git-meta/git-meta/internal/submoduleconfig"
)

// mergeModulesFile three-way merges .gitmodules across a single rebased
// commit: base is the commit's original parent, theirs is the commit
// itself, ours is the current real HEAD (the already-rebased parent). A
// name added or URL-changed only on theirs' side is carried forward; a
// name whose URL differs between ours and theirs relative to base is a
// genuine conflict, reported by returning false.
func (e *Engine) mergeModulesFile(ctx context.Context, base, theirs gitshell.Hash) (clean bool, err error) {
	ours, err := e.Shell.RevParse(ctx, "HEAD")
	if err != nil {
		return false, err
	}

	baseURLs, err := currentGitmodulesURLs(ctx, e.Shell, base)
	if err != nil {
		return false, err
	}
	theirsURLs, err := currentGitmodulesURLs(ctx, e.Shell, theirs)
	if err != nil {
		return false, err
	}
	oursURLs, err := currentGitmodulesURLs(ctx, e.Shell, ours)
	if err != nil {
		return false, err
	}

	merged, ok := mergeURLMaps(baseURLs, oursURLs, theirsURLs)
	if !ok {
		return false, nil
	}

	content := submoduleconfig.WriteGitmodules(merged)
	blob, err := e.Shell.WriteBlob(ctx, []byte(content))
	if err != nil {
		return false, err
	}
	if err := e.Shell.UpdateIndexInfo(ctx, "", []gitshell.IndexEntry{
		{Mode: "100644", Hash: blob, Path: ".gitmodules"},
	}); err != nil {
		return false, err
	}
	if err := e.Shell.CheckoutIndex(ctx, ".gitmodules"); err != nil {
		return false, err
	}
	return true, nil
}

// mergeURLMaps three-way merges the name->url maps of three .gitmodules
// revisions. It returns the merged map, or ok=false when the same name's
// URL was changed incompatibly on both sides.
func mergeURLMaps(base, ours, theirs map[string]string) (map[string]string, bool) {
	merged := map[string]string{}
	for name, url := range ours {
		merged[name] = url
	}

	for name, theirsURL := range theirs {
		baseURL, hadBase := base[name]
		oursURL, hasOurs := ours[name]
		switch {
		case !hadBase:
			// added on theirs' side; take it unless ours already added a
			// different url for the same name.
			if hasOurs && oursURL != theirsURL {
				return nil, false
			}
			merged[name] = theirsURL
		case theirsURL == baseURL:
			// unchanged on theirs' side; keep whatever ours has.
		case !hasOurs:
			merged[name] = theirsURL
		case oursURL == baseURL:
			merged[name] = theirsURL
		case oursURL != theirsURL:
			return nil, false
		}
	}
	for name, baseURL := range base {
		if _, stillThere := theirs[name]; stillThere {
			continue
		}
		// removed on theirs' side.
		if oursURL, hasOurs := ours[name]; hasOurs && oursURL != baseURL {
			return nil, false
		}
		delete(merged, name)
	}
	return merged, true
}
