package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawDelta(s string) Delta {
	return json.RawMessage(`"` + s + `"`)
}

func TestAppendThenDrainPreservesOrder(t *testing.T) {
	q := New()
	q.Append(rawDelta("a"))
	q.Append(rawDelta("b"))
	q.Append(rawDelta("c"))

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, rawDelta("a"), got[0])
	assert.Equal(t, rawDelta("b"), got[1])
	assert.Equal(t, rawDelta("c"), got[2])
}

func TestDrainEmptiesQueue(t *testing.T) {
	q := New()
	q.Append(rawDelta("a"))
	q.Drain()

	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain())
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	q := New()
	q.Append(rawDelta("a"))

	clone := q.Clone()
	q.Append(rawDelta("b"))     // appended after clone: must not appear in clone
	clone.Append(rawDelta("c")) // appended to clone: must not appear in source

	cloneDrained := clone.Drain()
	require.Len(t, cloneDrained, 2)
	assert.Equal(t, rawDelta("a"), cloneDrained[0])
	assert.Equal(t, rawDelta("c"), cloneDrained[1])

	sourceDrained := q.Drain()
	require.Len(t, sourceDrained, 2)
	assert.Equal(t, rawDelta("a"), sourceDrained[0])
	assert.Equal(t, rawDelta("b"), sourceDrained[1])
}

func TestCloneThenAppendToCloneLeavesSourceUnchanged(t *testing.T) {
	q := New()
	q.Append(rawDelta("a"))

	clone := q.Clone()
	clone.Append(rawDelta("b"))

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestAppendThenCloneIncludesNewDelta(t *testing.T) {
	q := New()
	q.Append(rawDelta("a"))
	clone := q.Clone()

	assert.Equal(t, 1, clone.Len())
	assert.Equal(t, 1, q.Len())
}
