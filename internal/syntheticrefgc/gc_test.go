package syntheticrefgc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/git-meta/git-meta/internal/gitshell"
)

const (
	shaRoot = gitshell.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	shaMid  = gitshell.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	shaOld  = gitshell.Hash("cccccccccccccccccccccccccccccccccccccccc")
	shaSide = gitshell.Hash("dddddddddddddddddddddddddddddddddddddddd")
)

func refFor(h gitshell.Hash) string { return syntheticPrefix + h.String() }

func TestRedundantPrunesReachableAncestors(t *testing.T) {
	synthetic := map[string]gitshell.Hash{
		refFor(shaRoot): shaRoot,
		refFor(shaMid):  shaMid,
		refFor(shaOld):  shaOld,
	}
	reachable := map[gitshell.Hash]bool{shaRoot: true, shaMid: true, shaOld: true}
	roots := map[gitshell.Hash]bool{shaRoot: true}

	got := Redundant(synthetic, reachable, roots)
	assert.ElementsMatch(t, []string{refFor(shaMid), refFor(shaOld)}, got)
}

func TestRedundantKeepsRoots(t *testing.T) {
	synthetic := map[string]gitshell.Hash{refFor(shaRoot): shaRoot}
	reachable := map[gitshell.Hash]bool{shaRoot: true}
	roots := map[gitshell.Hash]bool{shaRoot: true}

	assert.Empty(t, Redundant(synthetic, reachable, roots))
}

func TestRedundantKeepsUnreachable(t *testing.T) {
	// A side-branch pin no root reaches must survive: nothing else
	// keeps it alive.
	synthetic := map[string]gitshell.Hash{refFor(shaSide): shaSide}
	reachable := map[gitshell.Hash]bool{shaRoot: true}
	roots := map[gitshell.Hash]bool{shaRoot: true}

	assert.Empty(t, Redundant(synthetic, reachable, roots))
}

func TestRedundantIgnoresMismatchedRefs(t *testing.T) {
	// A ref whose name doesn't match its target isn't a synthetic ref
	// this GC owns.
	synthetic := map[string]gitshell.Hash{refFor(shaMid): shaOld}
	reachable := map[gitshell.Hash]bool{shaMid: true, shaOld: true}
	roots := map[gitshell.Hash]bool{shaRoot: true}

	assert.Empty(t, Redundant(synthetic, reachable, roots))
}
