package mergeengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-meta/git-meta/internal/gitmeta"
)

func TestRenderSubmoduleItselfConflicts(t *testing.T) {
	err := renderSubmoduleItselfConflicts(map[gitmeta.Path]gitmeta.Conflict{
		"libs/core": {Path: "libs/core"},
	})
	require.Error(t, err)
	assert.Equal(t, "Merge conflict in submodule 'libs/core' itself", err.Error())
}

func TestRenderSubmoduleItselfConflictsMultiple(t *testing.T) {
	err := renderSubmoduleItselfConflicts(map[gitmeta.Path]gitmeta.Conflict{
		"s": {Path: "s"},
		"t": {Path: "t"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Merge conflict in submodule 's' itself")
	assert.Contains(t, err.Error(), "Merge conflict in submodule 't' itself")
}

func TestRenderConflictMessage(t *testing.T) {
	cause := errors.New("s: fetch failed")
	err := renderConflictMessage(map[gitmeta.Path]gitmeta.Conflict{"s": {Path: "s"}}, cause)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFLICT (submodule): Merge conflict in s")
	assert.Contains(t, err.Error(), "s: fetch failed")
}

func TestRenderConflictMessageNoCause(t *testing.T) {
	err := renderConflictMessage(map[gitmeta.Path]gitmeta.Conflict{"s": {Path: "s"}}, nil)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT (submodule): Merge conflict in s", err.Error())
}

func TestDefaultIndexPath(t *testing.T) {
	assert.Equal(t, "/meta/.git/index", defaultIndexPath("/meta/.git"))
}

func TestToStrBoolMap(t *testing.T) {
	got := toStrBoolMap(map[gitmeta.Path]bool{"libs/core": true})
	assert.Equal(t, map[string]bool{"libs/core": true}, got)
}

func TestFFModeValues(t *testing.T) {
	// The zero value must be the plain --ff behavior, since Options is
	// commonly constructed without setting FF.
	var opts Options
	assert.Equal(t, Normal, opts.FF)
}
