package gitobj

import (
	"bytes"

	gitconfig "github.com/go-git/go-git/v5/plumbing/format/config"
)

// ParseGitmodulesURLs extracts path->url from .gitmodules content using
// go-git's config-file decoder (the same ini dialect git itself uses),
// rather than hand-rolling a line scanner.
func ParseGitmodulesURLs(contents string) map[string]string {
	out := map[string]string{}
	cfg := gitconfig.New()
	if err := gitconfig.NewDecoder(bytes.NewBufferString(contents)).Decode(cfg); err != nil {
		return out
	}
	for _, s := range cfg.Sections {
		if s.Name != "submodule" {
			continue
		}
		for _, sub := range s.Subsections {
			path := sub.Option("path")
			if path == "" {
				// A stanza without a path still names the sub.
				path = sub.Name
			}
			url := sub.Option("url")
			if path != "" {
				out[path] = url
			}
		}
	}
	return out
}
