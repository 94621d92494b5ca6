// Package submoduleconfig owns the on-disk representations that bind a
// name to a sub-repo: .gitmodules content, the open-sub stanzas in
// .git/config, and the machinery that materializes a fresh sub-repo
// (gitdir links, templates, origin remotes). Config stanzas are edited
// line-by-line so everything outside the touched stanza is preserved
// verbatim.
package submoduleconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/git-meta/git-meta/internal/gitobj"
	"github.com/git-meta/git-meta/internal/metaerr"
)

// ParseGitmodules extracts name->url from .gitmodules content.
func ParseGitmodules(text string) map[string]string {
	urls := gitobj.ParseGitmodulesURLs(text)
	out := make(map[string]string, len(urls))
	for name, url := range urls {
		out[strings.TrimSuffix(name, "/")] = url
	}
	return out
}

// WriteGitmodules renders urls (name->url) back into .gitmodules form,
// sorted by name for deterministic output.
func WriteGitmodules(urls map[string]string) string {
	names := make([]string, 0, len(urls))
	for n := range urls {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "[submodule %q]\n", n)
		fmt.Fprintf(&b, "\tpath = %s\n", n)
		fmt.Fprintf(&b, "\turl = %s\n", urls[n])
	}
	return b.String()
}

// ResolveURL resolves a possibly-relative submodule url against the
// meta-repo's own origin url, as git does for "./" and "../" submodule
// urls. metaURL == "" is only an error when url is actually relative.
func ResolveURL(name, metaURL, url string) (string, error) {
	if !strings.HasPrefix(url, "./") && !strings.HasPrefix(url, "../") {
		return url, nil
	}
	if metaURL == "" {
		return "", &metaerr.RelativeURLWithoutOrigin{Name: name, URL: url}
	}
	base := strings.TrimSuffix(metaURL, "/")
	rel := url
	for strings.HasPrefix(rel, "../") {
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[:idx]
		}
		rel = strings.TrimPrefix(rel, "../")
	}
	rel = strings.TrimPrefix(rel, "./")
	return base + "/" + rel, nil
}
