package sidres

import (
	"os"
	"sync/atomic"

	"github.com/prajnoha/sid/sidlog"
	"github.com/prajnoha/sid/siderr"
)

// Resource is one node in the tree. Fields are unexported; all mutation
// goes through the package's operations so invariants (id stability,
// post-order destruction, single owned loop) hold everywhere.
type Resource struct {
	typ        *Type
	id         string
	idPart     string
	parent     *Resource
	children   []*Resource // insertion-ordered
	loop       EventSourceOwner
	data       any
	pidCreated int
	refCount   int32
	svcLinks   []ServiceLinkDef
	logger     sidlog.Logger
}

// SetLogger attaches a logger used for destroy-path diagnostics (best
// effort destroy-error reports and cross-fork destructor notices).
// Resources with no logger set simply skip logging.
func (r *Resource) SetLogger(l sidlog.Logger) { r.logger = l }

// Logger returns the logger attached to r, or to the nearest ancestor
// that has one, or nil if none of r's lineage ever called SetLogger.
func (r *Resource) Logger() sidlog.Logger { return r.loggerOrAncestor() }

func (r *Resource) loggerOrAncestor() sidlog.Logger {
	for n := r; n != nil; n = n.parent {
		if n.logger != nil {
			return n.logger
		}
	}
	return nil
}

// Params bundles Create's inputs that aren't already positional, mirroring
// the C API's longer parameter list (priority, flags, service links).
type Params struct {
	Parent      *Resource // nil for a root resource
	Type        *Type
	IDPart      string // composed into "<type.Name>[/<id_part>]"
	InitParams  any
	ServiceLinks []ServiceLinkDef
}

// Create allocates a Resource, composes its id, links it into its parent's
// child list, and invokes Type.Init. On any failure it unwinds what it
// created and returns an error — never a partially-constructed Resource.
// Create does not create an event loop, even when Type.WithEventLoop is
// set; the caller attaches one with SetLoop after Create returns.
func Create(p Params) (*Resource, error) {
	if p.Type == nil {
		return nil, siderr.New(siderr.KindArgument, errnoInval, "res_create")
	}
	id := p.Type.Name
	if p.IDPart != "" {
		id = id + "/" + p.IDPart
	}
	if p.Parent != nil {
		for _, c := range p.Parent.children {
			if c.id == id {
				return nil, siderr.New(siderr.KindResource, errnoBusy, "res_create")
			}
		}
	}

	r := &Resource{
		typ:        p.Type,
		id:         id,
		idPart:     p.IDPart,
		parent:     p.Parent,
		pidCreated: os.Getpid(),
		refCount:   1,
		svcLinks:   append([]ServiceLinkDef(nil), p.ServiceLinks...),
	}

	if p.Parent != nil {
		p.Parent.children = append(p.Parent.children, r)
	}

	if p.Type.Init != nil {
		data, err := p.Type.Init(r, p.InitParams)
		if err != nil {
			r.unlink()
			return nil, err
		}
		r.data = data
	}

	return r, nil
}

// SetLoop attaches an owned event loop to r. The creator of a
// Type.WithEventLoop resource calls it after Create returns; a Resource
// may have at most one loop.
func (r *Resource) SetLoop(l EventSourceOwner) { r.loop = l }

// Loop returns r's own event loop, or nil if r doesn't own one.
func (r *Resource) Loop() EventSourceOwner { return r.loop }

// FindLoop walks r and its ancestors for the nearest loop-owning resource,
// so event sources can be attached at any point in the tree and still
// reach the owning loop. Returns nil if no ancestor owns a loop.
func (r *Resource) FindLoop() EventSourceOwner {
	for n := r; n != nil; n = n.parent {
		if n.loop != nil {
			return n.loop
		}
	}
	return nil
}

// Ref increments the reference count and returns r for chaining.
func (r *Resource) Ref() *Resource {
	atomic.AddInt32(&r.refCount, 1)
	return r
}

// Unref decrements the reference count; reaching zero destroys r.
// Returns true if this call triggered destruction.
func (r *Resource) Unref() bool {
	if atomic.AddInt32(&r.refCount, -1) == 0 {
		r.Destroy()
		return true
	}
	return false
}

// Destroy tears r down: children first in reverse insertion order
// (post-order across the whole subtree), then Type.Destroy (best-effort,
// errors logged not propagated), then the owned loop is exited, then r is
// unlinked from its parent.
func (r *Resource) Destroy() {
	for i := len(r.children) - 1; i >= 0; i-- {
		r.children[i].Destroy()
	}
	r.children = nil

	if r.typ != nil && r.typ.Destroy != nil {
		if err := r.typ.Destroy(r); err != nil {
			if l := r.loggerOrAncestor(); l != nil {
				l.Error(r.id, "destroy failed", sidlog.F("error", err.Error()))
			}
		}
	}

	if r.loop != nil {
		r.loop.Exit()
		r.loop = nil
	}

	if pid := os.Getpid(); pid != r.pidCreated {
		if l := r.loggerOrAncestor(); l != nil {
			l.Debug(r.id, "destroyed in forked process", sidlog.F("created_pid", r.pidCreated), sidlog.F("pid", pid))
		}
	}

	r.unlink()
}

// unlink removes r from its parent's child slice without touching
// children or running Type.Destroy; used both by Destroy and by failed
// Create unwinding.
func (r *Resource) unlink() {
	if r.parent == nil {
		return
	}
	siblings := r.parent.children
	for i, c := range siblings {
		if c == r {
			r.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	r.parent = nil
}

// GetID returns r's stable identifier.
func (r *Resource) GetID() string { return r.id }

// GetData returns the opaque data blob Type.Init produced.
func (r *Resource) GetData() any { return r.data }

// GetParent returns r's parent, or nil for a root resource.
func (r *Resource) GetParent() *Resource { return r.parent }

// GetTopLevel walks to the topmost ancestor (the resource with no parent).
func (r *Resource) GetTopLevel() *Resource {
	n := r
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// GetType returns r's type descriptor.
func (r *Resource) GetType() *Type { return r.typ }

// ServiceLinks returns r's service link definitions.
func (r *Resource) ServiceLinks() []ServiceLinkDef { return r.svcLinks }

// Match reports whether r matches typ (nil matches any type) and id (empty
// matches any id suffix after the type name).
func (r *Resource) Match(typ *Type, id string) bool {
	if typ != nil && r.typ != typ {
		return false
	}
	if id != "" && r.idPart != id {
		return false
	}
	return true
}

// AddChild reparents an orphan resource under parent. Rejects a resource
// that already has a parent.
func AddChild(parent, child *Resource) error {
	if child.parent != nil {
		return siderr.New(siderr.KindResource, errnoBusy, "res_add_child")
	}
	child.parent = parent
	parent.children = append(parent.children, child)
	return nil
}

// Isolate detaches res from its parent, first reparenting res's own
// children to res's former parent (the grandparent from their point of
// view), preserving their relative order at the splice point. Rejects
// resources that own a loop, have no parent, or whose type disallows
// isolation.
func (r *Resource) Isolate() error {
	if err := r.checkIsolatable(); err != nil {
		return err
	}
	parent := r.parent
	idx := r.indexInParent()

	kids := r.children
	r.children = nil
	for _, k := range kids {
		k.parent = parent
	}
	newSiblings := make([]*Resource, 0, len(parent.children)-1+len(kids))
	newSiblings = append(newSiblings, parent.children[:idx]...)
	newSiblings = append(newSiblings, kids...)
	newSiblings = append(newSiblings, parent.children[idx+1:]...)
	parent.children = newSiblings
	r.parent = nil
	return nil
}

// IsolateWithChildren detaches res together with its entire subtree,
// leaving res's children attached to res. Same rejection rules as
// Isolate.
func (r *Resource) IsolateWithChildren() error {
	if err := r.checkIsolatable(); err != nil {
		return err
	}
	r.unlink()
	return nil
}

func (r *Resource) checkIsolatable() error {
	if r.loop != nil {
		return siderr.New(siderr.KindResource, errnoPerm, "res_isolate")
	}
	if r.parent == nil {
		return siderr.New(siderr.KindResource, errnoPerm, "res_isolate")
	}
	if r.typ != nil && r.typ.DisallowIsolate {
		return siderr.New(siderr.KindResource, errnoNotSup, "res_isolate")
	}
	return nil
}

func (r *Resource) indexInParent() int {
	for i, c := range r.parent.children {
		if c == r {
			return i
		}
	}
	return -1
}

// Children returns r's direct children in insertion order. Callers must
// not mutate the returned slice; use the Iterator for safe traversal
// while mutating.
func (r *Resource) Children() []*Resource { return r.children }
