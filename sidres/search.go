package sidres

// SearchMode selects the traversal used by Search.
type SearchMode int

const (
	// ImmediateAncestor matches only the immediate parent.
	ImmediateAncestor SearchMode = iota
	// Ancestor matches any ancestor, nearest first.
	Ancestor
	// ImmediateDescendant matches only direct children.
	ImmediateDescendant
	// WideDFS matches anywhere in the whole tree via depth-first search
	// starting at the topmost ancestor.
	WideDFS
	// TopLevel matches only the topmost ancestor.
	TopLevel
)

// Search walks from start according to mode, returning the first resource
// matching typ (nil = any type) and id (empty = any id suffix).
func Search(start *Resource, mode SearchMode, typ *Type, id string) *Resource {
	switch mode {
	case ImmediateAncestor:
		if start.parent != nil && start.parent.Match(typ, id) {
			return start.parent
		}
		return nil

	case Ancestor:
		for n := start.parent; n != nil; n = n.parent {
			if n.Match(typ, id) {
				return n
			}
		}
		return nil

	case ImmediateDescendant:
		for _, c := range start.children {
			if c.Match(typ, id) {
				return c
			}
		}
		return nil

	case WideDFS:
		return dfsFind(start.GetTopLevel(), typ, id)

	case TopLevel:
		top := start.GetTopLevel()
		if top.Match(typ, id) {
			return top
		}
		return nil

	default:
		return nil
	}
}

func dfsFind(n *Resource, typ *Type, id string) *Resource {
	if n.Match(typ, id) {
		return n
	}
	for _, c := range n.children {
		if found := dfsFind(c, typ, id); found != nil {
			return found
		}
	}
	return nil
}
