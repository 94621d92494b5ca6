package submoduleconfig

import (
	"context"
	"path"
	"strings"

	"github.com/git-meta/git-meta/internal/gitshell"
)

// ServerLocator maps a submodule's configured URL to the server-side bare
// repository that holds its objects and refs/commits/* synthetic refs.
// The mapping is configured by three git-config keys on the meta repo:
//
//	gitmeta.subrepourlbase   URL prefix shared by every sub (stripped)
//	gitmeta.subreporootpath  local directory the remainder is joined to
//	gitmeta.subreposuffix    appended to the result (typically ".git")
type ServerLocator struct {
	URLBase  string
	RootPath string
	Suffix   string
}

// LoadServerLocator reads the gitmeta.* keys from r's configuration.
func LoadServerLocator(ctx context.Context, r *gitshell.Repository) ServerLocator {
	var l ServerLocator
	if v, ok := r.ConfigString(ctx, "gitmeta.subrepourlbase"); ok {
		l.URLBase = v
	}
	if v, ok := r.ConfigString(ctx, "gitmeta.subreporootpath"); ok {
		l.RootPath = v
	}
	if v, ok := r.ConfigString(ctx, "gitmeta.subreposuffix"); ok {
		l.Suffix = v
	}
	return l
}

// LocalPath resolves url to the bare repo's on-disk path, or "" when url
// is outside the configured URL base.
func (l ServerLocator) LocalPath(url string) string {
	rel := url
	if l.URLBase != "" {
		if !strings.HasPrefix(url, l.URLBase) {
			return ""
		}
		rel = strings.TrimPrefix(url, l.URLBase)
	}
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return ""
	}
	return path.Join(l.RootPath, rel) + l.Suffix
}
