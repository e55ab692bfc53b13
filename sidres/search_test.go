package sidres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchModes(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	a, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	x, _ := Create(Params{Parent: a, Type: plainType, IDPart: "x"})
	y, _ := Create(Params{Parent: a, Type: plainType, IDPart: "y"})

	assert.Equal(t, a, Search(x, ImmediateAncestor, nil, ""))
	assert.Equal(t, a, Search(x, Ancestor, nil, "")) // nearest ancestor first
	assert.Equal(t, root, Search(a, Ancestor, plainType, ""))
	assert.Equal(t, y, Search(a, ImmediateDescendant, plainType, "y"))
	assert.Equal(t, root, Search(x, TopLevel, nil, ""))

	found := Search(root, WideDFS, plainType, "x")
	require.NotNil(t, found)
	assert.Equal(t, x, found)
}

func TestMatchFiltersByTypeAndID(t *testing.T) {
	other := &Type{Name: "other"}
	root, _ := Create(Params{Type: plainType})
	a, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	assert.True(t, a.Match(plainType, "a"))
	assert.False(t, a.Match(other, ""))
	assert.False(t, a.Match(plainType, "b"))
	assert.True(t, a.Match(nil, ""))
}
