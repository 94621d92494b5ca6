package metaerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserErrorCodes(t *testing.T) {
	cases := []struct {
		err  UserError
		code string
	}{
		{&RelativeURLWithoutOrigin{Name: "s", URL: "../s"}, "RelativeUrlWithoutOrigin"},
		{&NoSubmoduleURL{Name: "s"}, "NoSubmoduleUrl"},
		{NewFetchFailed("s", "abc", errors.New("boom")), "FetchFailed"},
		{&NoCommonAncestor{A: "a", B: "b"}, "NoCommonAncestor"},
		{&URLChangesUnsupported{Commit: "c"}, "URLChangesUnsupported"},
		{&NonSubChangeUnsupported{Commit: "c", Path: "p"}, "NonSubChangeUnsupported"},
		{&MergeInProgress{}, "MergeInProgress"},
		{&NoMergeInProgress{Op: "merge"}, "NoMergeInProgress"},
		{&NotDeepClean{}, "NotDeepClean"},
		{&CannotFastForward{Ours: "a", Theirs: "b"}, "CannotFastForward"},
		{&PathsOutsideWorkTree{Paths: []string{"x"}}, "PathsOutsideWorkTree"},
		{&UnresolvedConflicts{Paths: []string{"x"}}, "UnresolvedConflicts"},
		{&SubHEADMissing{Name: "s"}, "SubHEADMissing"},
		{&CannotResetNonHEAD{Commit: "c"}, "CannotResetNonHEAD"},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, c.err.Code())
		assert.NotEmpty(t, c.err.Error())
	}
}

func TestUserErrorThroughWrap(t *testing.T) {
	inner := &NotDeepClean{Path: "s"}
	wrapped := fmt.Errorf("merge: %w", inner)

	var userErr UserError
	require.ErrorAs(t, wrapped, &userErr)
	assert.Equal(t, "NotDeepClean", userErr.Code())
}

func TestFetchFailedUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewFetchFailed("s", "abc", cause)
	assert.ErrorIs(t, err, cause)
}

func TestNewMultiErrorEmpty(t *testing.T) {
	assert.Nil(t, NewMultiError(nil))
	assert.Nil(t, NewMultiError([]error{nil, nil}))
}

func TestNewMultiErrorSingle(t *testing.T) {
	inner := &NoSubmoduleURL{Name: "s"}
	err := NewMultiError([]error{nil, inner})
	assert.Same(t, error(inner), err)
}

func TestNewMultiErrorSeveral(t *testing.T) {
	e1 := errors.New("one")
	e2 := &NotDeepClean{}
	err := NewMultiError([]error{e1, e2})

	var multi *MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errs, 2)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "one")

	// errors.As reaches through the aggregate to each member.
	var userErr UserError
	assert.ErrorAs(t, err, &userErr)
}
