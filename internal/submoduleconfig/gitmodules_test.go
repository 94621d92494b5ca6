package submoduleconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/metaerr"
)

func TestWriteGitmodulesRoundTrip(t *testing.T) {
	urls := map[string]string{
		"libs/core": "https://example.com/core.git",
		"app":       "../app.git",
		"z":         "git@example.com:z.git",
	}
	got := ParseGitmodules(WriteGitmodules(urls))
	assert.Equal(t, urls, got)
}

func TestWriteGitmodulesSortedByName(t *testing.T) {
	out := WriteGitmodules(map[string]string{
		"b": "https://example.com/b",
		"a": "https://example.com/a",
	})
	want := "[submodule \"a\"]\n" +
		"\tpath = a\n" +
		"\turl = https://example.com/a\n" +
		"[submodule \"b\"]\n" +
		"\tpath = b\n" +
		"\turl = https://example.com/b\n"
	assert.Equal(t, want, out)
}

func TestParseGitmodulesStripsTrailingSlash(t *testing.T) {
	text := "[submodule \"libs/core/\"]\n\tpath = libs/core/\n\turl = https://example.com/core\n"
	got := ParseGitmodules(text)
	assert.Equal(t, map[string]string{"libs/core": "https://example.com/core"}, got)
}

func TestParseGitmodulesIgnoresOtherKeys(t *testing.T) {
	text := "[submodule \"s\"]\n" +
		"\tpath = s\n" +
		"\turl = https://example.com/s\n" +
		"\tbranch = main\n" +
		"\tshallow = true\n" +
		"[core]\n" +
		"\tbare = false\n"
	got := ParseGitmodules(text)
	assert.Equal(t, map[string]string{"s": "https://example.com/s"}, got)
}

func TestParseGitmodulesEmptyAndGarbage(t *testing.T) {
	assert.Empty(t, ParseGitmodules(""))
	assert.Empty(t, ParseGitmodules("not an ini file at all"))
}

func TestResolveURLAbsolutePassThrough(t *testing.T) {
	got, err := ResolveURL("s", "https://example.com/meta", "https://other.com/s.git")
	require.NoError(t, err)
	assert.Equal(t, "https://other.com/s.git", got)
}

func TestResolveURLRelative(t *testing.T) {
	tests := []struct {
		name    string
		metaURL string
		url     string
		want    string
	}{
		{"dot", "https://example.com/org/meta", "./sub.git", "https://example.com/org/meta/sub.git"},
		{"dotdot", "https://example.com/org/meta", "../sub.git", "https://example.com/org/sub.git"},
		{"double dotdot", "https://example.com/org/meta", "../../sub.git", "https://example.com/sub.git"},
		{"trailing slash on meta", "https://example.com/org/meta/", "../sub.git", "https://example.com/org/sub.git"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL("s", tt.metaURL, tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURLRelativeWithoutOrigin(t *testing.T) {
	_, err := ResolveURL("s", "", "../sub.git")
	var userErr *metaerr.RelativeURLWithoutOrigin
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "s", userErr.Name)
}
