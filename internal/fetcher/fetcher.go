// Package fetcher resolves submodule URLs lazily and fetches pinned
// commits into submodule repositories on demand, deduplicating concurrent
// fetches of the same (submodule name, sha) pair. URL lookups (the meta origin and
// each sub's .gitmodules entry at the pinned commit) are read once and
// cached for the operation's lifetime.
package fetcher

import (
	"context"
	"sync"

	"github.com/git-meta/git-meta/internal/gitmeta"
	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/metaerr"
)

// tristate caches a lazily-read value that may legitimately be absent.
type tristate struct {
	read bool
	val  string
}

// SubmoduleFetcher lazily resolves the meta-repo's origin URL and each
// submodule's .gitmodules URL at a pinned commit, then fetches commits
// into submodule repos, deduplicating concurrent fetches of the same sha.
type SubmoduleFetcher struct {
	meta   *gitobj.Repository
	commit gitobj.Hash // the pinned commit .gitmodules is read from; zero if none given

	mu          sync.Mutex
	metaOrigin  tristate
	subURLs     map[gitmeta.Path]string
	inFlight    map[string]*sync.WaitGroup
	inFlightErr map[string]error
}

// New constructs a fetcher bound to meta, resolving submodule URLs from
// .gitmodules as of commit (the zero hash means "use the worktree's
// .gitmodules", resolved lazily by the caller instead).
func New(meta *gitobj.Repository, commit gitobj.Hash) *SubmoduleFetcher {
	return &SubmoduleFetcher{
		meta:        meta,
		commit:      commit,
		subURLs:     map[gitmeta.Path]string{},
		inFlight:    map[string]*sync.WaitGroup{},
		inFlightErr: map[string]error{},
	}
}

// GetMetaOriginURL returns the meta-repo's "origin" remote URL, or "" if
// none is configured. The result is cached after the first call.
func (f *SubmoduleFetcher) GetMetaOriginURL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaOrigin.read {
		return f.metaOrigin.val, nil
	}
	cfg, err := f.meta.Config()
	if err != nil {
		return "", err
	}
	url := ""
	if r, ok := cfg.Remotes["origin"]; ok && len(r.URLs) > 0 {
		url = r.URLs[0]
	}
	f.metaOrigin = tristate{read: true, val: url}
	return url, nil
}

// GetSubmoduleURL returns the URL recorded for name in .gitmodules at the
// fetcher's pinned commit, caching the result. Returns NoSubmoduleURL if
// absent.
func (f *SubmoduleFetcher) GetSubmoduleURL(name gitmeta.Path) (string, error) {
	f.mu.Lock()
	if url, ok := f.subURLs[name]; ok {
		f.mu.Unlock()
		return url, nil
	}
	f.mu.Unlock()

	commit, err := f.meta.CommitObject(f.commit)
	if err != nil {
		return "", err
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", err
	}
	subs, err := f.meta.ListSubmodules(tree)
	if err != nil {
		return "", err
	}
	url, found := "", false
	for _, s := range subs {
		if s.Path == string(name) {
			url, found = s.URL, s.URL != ""
		}
	}
	if !found {
		return "", &metaerr.NoSubmoduleURL{Name: string(name)}
	}
	f.mu.Lock()
	f.subURLs[name] = url
	f.mu.Unlock()
	return url, nil
}

// FetchSha fetches sha into subRepo if it is not already present,
// resolving name's URL (relative to the meta origin if needed) and
// deduplicating concurrent requests for the same (name, sha).
func (f *SubmoduleFetcher) FetchSha(ctx context.Context, subRepo *gitobj.Repository, name gitmeta.Path, sha gitmeta.SHA) error {
	h := gitobj.NewHash(string(sha))
	if subRepo.HasObject(h) {
		return nil
	}

	key := string(name) + "@" + string(sha)
	f.mu.Lock()
	if wg, busy := f.inFlight[key]; busy {
		f.mu.Unlock()
		wg.Wait()
		f.mu.Lock()
		err := f.inFlightErr[key]
		f.mu.Unlock()
		return err
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	f.inFlight[key] = wg
	f.mu.Unlock()

	err := f.doFetch(ctx, subRepo, name, sha, h)

	f.mu.Lock()
	f.inFlightErr[key] = err
	delete(f.inFlight, key)
	f.mu.Unlock()
	wg.Done()
	return err
}

func (f *SubmoduleFetcher) doFetch(ctx context.Context, subRepo *gitobj.Repository, name gitmeta.Path, sha gitmeta.SHA, h gitobj.Hash) error {
	url, err := f.GetSubmoduleURL(name)
	if err != nil {
		return err
	}
	metaOrigin, err := f.GetMetaOriginURL()
	if err != nil {
		return err
	}
	resolved := url
	if isRelativeURL(url) {
		if metaOrigin == "" {
			return &metaerr.RelativeURLWithoutOrigin{Name: string(name), URL: url}
		}
		resolved = resolveRelative(metaOrigin, url)
	}
	if err := subRepo.FetchSHA(ctx, resolved, h); err != nil {
		return metaerr.NewFetchFailed(string(name), string(sha), err)
	}
	return nil
}

func isRelativeURL(url string) bool {
	return len(url) > 0 && url[0] == '.'
}

func resolveRelative(base, rel string) string {
	// The same resolution submoduleconfig.ResolveURL performs, repeated
	// here in miniature.
	b := base
	r := rel
	for len(r) >= 3 && r[:3] == "../" {
		if idx := lastSlash(b); idx >= 0 {
			b = b[:idx]
		}
		r = r[3:]
	}
	if len(r) >= 2 && r[:2] == "./" {
		r = r[2:]
	}
	return b + "/" + r
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
