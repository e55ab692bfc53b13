package sidres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIteratorForwardAndBack(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	a, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	b, _ := Create(Params{Parent: root, Type: plainType, IDPart: "b"})
	c, _ := Create(Params{Parent: root, Type: plainType, IDPart: "c"})

	it := NewIterator(root)
	assert.Nil(t, it.Current())
	assert.Equal(t, a, it.Next())
	assert.Equal(t, b, it.Next())
	assert.Equal(t, c, it.Next())
	assert.Nil(t, it.Next())

	assert.Equal(t, c, it.Previous())
	assert.Equal(t, b, it.Previous())
	assert.Equal(t, a, it.Previous())
	assert.Nil(t, it.Previous())
}

func TestIteratorSurvivesCurrentRemoval(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	a, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	b, _ := Create(Params{Parent: root, Type: plainType, IDPart: "b"})
	c, _ := Create(Params{Parent: root, Type: plainType, IDPart: "c"})

	it := NewIterator(root)
	require.Equal(t, a, it.Next())
	require.Equal(t, b, it.Next())

	// remove the current element from the tree mid-iteration
	b.unlink()

	assert.Equal(t, c, it.Next())
}
