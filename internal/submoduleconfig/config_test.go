package submoduleconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[core]
	repositoryformatversion = 0
	bare = false
[submodule "libs/core"]
	url = https://example.com/core.git
	active = true
[remote "origin"]
	url = https://example.com/meta.git
[submodule "app"]
	url = https://example.com/app.git
`

func TestParseOpenSubs(t *testing.T) {
	got := ParseOpenSubs(sampleConfig)
	assert.Equal(t, map[string]bool{"libs/core": true, "app": true}, got)
}

func TestParseOpenSubsEmpty(t *testing.T) {
	assert.Empty(t, ParseOpenSubs(""))
	assert.Empty(t, ParseOpenSubs("[core]\n\tbare = true\n"))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClearConfigEntryRemovesStanza(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	require.NoError(t, ClearConfigEntry(path, "libs/core"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := string(data)
	assert.NotContains(t, got, `[submodule "libs/core"]`)
	assert.NotContains(t, got, "core.git")
	// Everything else survives, including the other stanza.
	assert.Contains(t, got, `[remote "origin"]`)
	assert.Contains(t, got, `[submodule "app"]`)
	assert.Contains(t, got, "app.git")
}

func TestClearConfigEntryStopsAtNextSection(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	require.NoError(t, ClearConfigEntry(path, "app"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, `[submodule "libs/core"]`)
	assert.Contains(t, got, `[remote "origin"]`)
	assert.NotContains(t, got, "app.git")
}

func TestClearConfigEntryIdempotent(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	require.NoError(t, ClearConfigEntry(path, "nonexistent"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig, string(data))
}

func TestClearConfigEntryMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	assert.NoError(t, ClearConfigEntry(path, "anything"))
}

func TestAppendSubmoduleStanza(t *testing.T) {
	path := writeConfig(t, "[core]\n\tbare = false\n")
	require.NoError(t, AppendSubmoduleStanza(path, "s", "https://example.com/s.git"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[submodule \"s\"]\n\turl = https://example.com/s.git\n")
	assert.Equal(t, map[string]bool{"s": true}, ParseOpenSubs(string(data)))
}

func TestAppendSubmoduleStanzaReplacesPrior(t *testing.T) {
	path := writeConfig(t, "[core]\n\tbare = false\n")
	require.NoError(t, AppendSubmoduleStanza(path, "s", "https://old.example.com/s.git"))
	require.NoError(t, AppendSubmoduleStanza(path, "s", "https://new.example.com/s.git"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old.example.com")
	assert.Contains(t, string(data), "new.example.com")
}
