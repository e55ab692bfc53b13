// Package sidres implements the resource tree: typed, reference-counted,
// hierarchical nodes, each optionally owning an event loop, with typed
// search, safe bidirectional child iteration, and isolation semantics.
package sidres

// EventSourceOwner is the narrow view of an event loop that sidres needs
// in order to walk ancestors looking for "the nearest loop-owning
// resource". sidevent.Loop satisfies this; sidres never imports sidevent
// to avoid a cycle (sidevent's sources are in turn owned by a Resource).
type EventSourceOwner interface {
	// Exit requests loop termination; used when a loop-owning resource is
	// destroyed so its loop unwinds before the resource is freed.
	Exit()
}

// InitFunc runs inside Create after the node is linked into its parent
// and before Create returns; no event loop is attached to the node yet.
// Returning an error unwinds the just-created node.
type InitFunc func(r *Resource, params any) (data any, err error)

// DestroyFunc runs during Destroy, after all descendants are gone, before
// the loop (if any) is released and the node is unlinked. Its error is
// logged but never stops teardown — destroy never fails.
type DestroyFunc func(r *Resource) error

// Type is the immutable resource-type descriptor. Two resources share a
// Type by sharing a pointer to the same Type value; Type equality is by
// address, matching the original's "identified by address" rule.
type Type struct {
	Name            string // short name, used to compose resource ids
	Description     string
	Init            InitFunc
	Destroy         DestroyFunc
	WithEventLoop   bool // resources of this type own a loop; Create does not attach it, the caller does via SetLoop
	DisallowIsolate bool // Isolate/IsolateWithChildren always fail
}

// ServiceLinkDef names an external notification target a resource should
// be associated with at creation time (see package sidsvc for the
// concrete link implementations). Cloneable links propagate into
// re-exec'd worker children.
type ServiceLinkDef struct {
	Name      string
	Link      any // concrete type is sidsvc.ServiceLink; kept opaque to avoid an import cycle
	Cloneable bool
}
