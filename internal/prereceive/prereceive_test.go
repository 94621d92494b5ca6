package prereceive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shaA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	zero = "0000000000000000000000000000000000000000"
)

func TestParseUpdates(t *testing.T) {
	in := shaA + " " + shaB + " refs/heads/master\n" +
		zero + " " + shaA + " refs/heads/topic\n"
	updates, err := ParseUpdates(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, shaA, string(updates[0].Old))
	assert.Equal(t, shaB, string(updates[0].New))
	assert.Equal(t, "refs/heads/master", updates[0].Ref)

	assert.True(t, updates[1].Old.IsZero())
}

func TestParseUpdatesSkipsBlankLines(t *testing.T) {
	updates, err := ParseUpdates(strings.NewReader("\n\n" + shaA + " " + shaB + " refs/heads/x\n\n"))
	require.NoError(t, err)
	assert.Len(t, updates, 1)
}

func TestParseUpdatesMalformed(t *testing.T) {
	_, err := ParseUpdates(strings.NewReader(shaA + " refs/heads/master\n"))
	assert.Error(t, err)
}

func TestParseUpdatesEmpty(t *testing.T) {
	updates, err := ParseUpdates(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestCheckSubmodulePushAccepts(t *testing.T) {
	err := CheckSubmodulePush([]RefUpdate{
		{Old: zero, New: shaA, Ref: "refs/commits/" + shaA},
	})
	assert.NoError(t, err)
}

func TestCheckSubmodulePushAcceptsDeletion(t *testing.T) {
	err := CheckSubmodulePush([]RefUpdate{
		{Old: shaA, New: zero, Ref: "refs/commits/" + shaA},
	})
	assert.NoError(t, err)
}

func TestCheckSubmodulePushRejectsMismatchedSha(t *testing.T) {
	err := CheckSubmodulePush([]RefUpdate{
		{Old: zero, New: shaB, Ref: "refs/commits/" + shaA},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must point at")
}

func TestCheckSubmodulePushRejectsOtherRefs(t *testing.T) {
	for _, ref := range []string{
		"refs/heads/master",
		"refs/commits/not-a-sha",
		"refs/commits/" + shaA + "/extra",
		"refs/tags/v1",
	} {
		err := CheckSubmodulePush([]RefUpdate{{Old: zero, New: shaA, Ref: ref}})
		assert.Error(t, err, "ref %s must be rejected", ref)
	}
}
