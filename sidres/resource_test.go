package sidres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plainType = &Type{Name: "plain"}

func TestCreateComposesID(t *testing.T) {
	root, err := Create(Params{Type: plainType})
	require.NoError(t, err)
	child, err := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	require.NoError(t, err)
	assert.Equal(t, "plain", root.GetID())
	assert.Equal(t, "plain/a", child.GetID())
	assert.Equal(t, root, child.GetParent())
}

func TestCreateDuplicateIDFails(t *testing.T) {
	root, err := Create(Params{Type: plainType})
	require.NoError(t, err)
	_, err = Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	require.NoError(t, err)
	_, err = Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	assert.Error(t, err)
}

func TestCreateInitFailureUnwinds(t *testing.T) {
	root, err := Create(Params{Type: plainType})
	require.NoError(t, err)
	failing := &Type{Name: "failing", Init: func(r *Resource, params any) (any, error) {
		return nil, assertErr
	}}
	_, err = Create(Params{Parent: root, Type: failing})
	require.Error(t, err)
	assert.Empty(t, root.Children())
}

var assertErr = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "boom" }

func TestDestroyIsPostOrder(t *testing.T) {
	var order []string
	mk := func(name string) *Type {
		return &Type{Name: name, Destroy: func(r *Resource) error {
			order = append(order, r.GetID())
			return nil
		}}
	}
	root, _ := Create(Params{Type: mk("root")})
	a, _ := Create(Params{Parent: root, Type: mk("a")})
	Create(Params{Parent: a, Type: mk("x")})
	Create(Params{Parent: root, Type: mk("b")})

	root.Destroy()
	// children destroyed before root; within root, b (inserted after a)
	// destroys before a (reverse insertion order), and x (a's child)
	// destroys before a itself.
	assert.Equal(t, []string{"b", "x", "a", "root"}, order)
}

func TestRefUnrefTriggersDestroy(t *testing.T) {
	destroyed := false
	typ := &Type{Name: "refd", Destroy: func(r *Resource) error {
		destroyed = true
		return nil
	}}
	r, err := Create(Params{Type: typ})
	require.NoError(t, err)
	r.Ref()
	assert.False(t, r.Unref())
	assert.False(t, destroyed)
	assert.True(t, r.Unref())
	assert.True(t, destroyed)
}

func TestIsolateReparentsChildrenInOrder(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	a, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	b, _ := Create(Params{Parent: root, Type: plainType, IDPart: "b"})
	c, _ := Create(Params{Parent: root, Type: plainType, IDPart: "c"})
	x, _ := Create(Params{Parent: b, Type: plainType, IDPart: "x"})
	y, _ := Create(Params{Parent: b, Type: plainType, IDPart: "y"})

	require.NoError(t, b.Isolate())

	var ids []string
	for _, r := range root.Children() {
		ids = append(ids, r.GetID())
	}
	assert.Equal(t, []string{"plain/a", "plain/x", "plain/y", "plain/c"}, ids)
	assert.Equal(t, root, x.GetParent())
	assert.Equal(t, root, y.GetParent())
	assert.Nil(t, b.GetParent())
	_ = a
	_ = c
}

func TestIsolateRejectsLoopOwner(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	child, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	child.SetLoop(fakeLoop{})
	assert.Error(t, child.Isolate())
}

func TestIsolateRejectsNoParent(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	assert.Error(t, root.Isolate())
}

func TestAddChildRejectsAlreadyParented(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	other, _ := Create(Params{Type: plainType})
	child, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	assert.Error(t, AddChild(other, child))
}

func TestFindLoopWalksAncestors(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	root.SetLoop(fakeLoop{})
	child, _ := Create(Params{Parent: root, Type: plainType, IDPart: "a"})
	grandchild, _ := Create(Params{Parent: child, Type: plainType, IDPart: "b"})
	assert.Nil(t, child.Loop())
	assert.NotNil(t, grandchild.FindLoop())
}

func TestFindLoopNoMedium(t *testing.T) {
	root, _ := Create(Params{Type: plainType})
	assert.Nil(t, root.FindLoop())
}

type fakeLoop struct{}

func (fakeLoop) Exit() {}
