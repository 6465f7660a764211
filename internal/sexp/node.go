// Package sexp is a loss-less S-expression engine: a lexer, a work-list
// parser that builds an arena tree of identity-bearing nodes, a printer that
// reproduces untouched input byte for byte, and an edit journal whose
// captured records undo any structural change exactly.
package sexp

import (
	"fmt"
	"sync/atomic"
)

// NodeID identifies a node for the lifetime of a tree lineage (a parsed tree
// and every clone derived from it). IDs are allocated monotonically and are
// never reused, even after the node is removed.
type NodeID uint64

// NoNode is the zero NodeID; no real node ever has it.
const NoNode NodeID = 0

// Kind is the structural kind of a node.
type Kind int

const (
	KindList Kind = iota
	KindAtom
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindAtom:
		return "atom"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is one arena record. Nodes reachable from a tree must be treated as
// read-only by callers; all writes go through an Edit.
type Node struct {
	ID   NodeID
	Kind Kind

	// Raw is the exact source spelling of an atom or string (quotes and
	// escapes included). Value is the decoded literal.
	Raw   string
	Value string

	// Children holds the ordered child ids of a list.
	Children []NodeID

	// Leading is the whitespace and comments that precede the node.
	Leading string
	// Closing is the whitespace and comments before a list's ')'. On the
	// root it holds the trailing trivia of the file.
	Closing string

	// gen is the generation of the tree that may write this record in place.
	gen uint64
}

// IsList reports whether n is a list.
func (n *Node) IsList() bool { return n.Kind == KindList }

// IsAtomic reports whether n is an atom or a string.
func (n *Node) IsAtomic() bool { return n.Kind != KindList }

// lineage is shared by a parsed tree and all of its clones.
type lineage struct {
	next atomic.Uint64
}

func (l *lineage) alloc() NodeID {
	return NodeID(l.next.Add(1))
}

var generations atomic.Uint64

func nextGen() uint64 { return generations.Add(1) }

// Diagnostic is a non-fatal observation made while parsing.
type Diagnostic struct {
	Offset  int
	Message string
}

// Tree is an arena of nodes indexed by NodeID plus a synthetic root list
// whose children are the top-level forms of the source. The root is never
// printed with parentheses.
type Tree struct {
	nodes []*Node // index == NodeID; nil for removed or foreign ids
	root  NodeID
	gen   uint64
	ids   *lineage

	// SourceLen is the byte length of the parsed source.
	SourceLen int
	// Diagnostics collects non-fatal parse observations.
	Diagnostics []Diagnostic
}

func newTree() *Tree {
	t := &Tree{gen: nextGen(), ids: &lineage{}}
	t.nodes = make([]*Node, 1, 64)
	root := t.newNode(KindList)
	t.root = root.ID
	return t
}

func (t *Tree) newNode(kind Kind) *Node {
	n := &Node{ID: t.ids.alloc(), Kind: kind, gen: t.gen}
	t.put(n)
	return n
}

func (t *Tree) put(n *Node) {
	for int(n.ID) >= len(t.nodes) {
		t.nodes = append(t.nodes, nil)
	}
	t.nodes[n.ID] = n
}

// Root returns the id of the synthetic root list.
func (t *Tree) Root() NodeID { return t.root }

// Node returns the record for id, or nil if id is not part of this tree.
func (t *Tree) Node(id NodeID) *Node {
	if id == NoNode || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Has reports whether id is live in this tree.
func (t *Tree) Has(id NodeID) bool { return t.Node(id) != nil }

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int {
	n := 0
	for _, rec := range t.nodes {
		if rec != nil {
			n++
		}
	}
	return n
}

// Clone returns an independent tree sharing every node record with t. Both
// trees move to fresh generations, so the first write to a shared record on
// either side copies it. Clone is O(number of ids), not O(tree bytes).
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes:       make([]*Node, len(t.nodes)),
		root:        t.root,
		gen:         nextGen(),
		ids:         t.ids,
		SourceLen:   t.SourceLen,
		Diagnostics: append([]Diagnostic(nil), t.Diagnostics...),
	}
	copy(c.nodes, t.nodes)
	t.gen = nextGen()
	return c
}

// writable returns a record for id that t may modify in place.
func (t *Tree) writable(id NodeID) *Node {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	if n.gen == t.gen {
		return n
	}
	c := *n
	c.Children = append([]NodeID(nil), n.Children...)
	c.gen = t.gen
	t.nodes[id] = &c
	return &c
}

// =============================================================================
// READ HELPERS
// =============================================================================

// Head returns the value of a list's first child when it is an atom, which
// is how KiCad names its forms: (footprint ...), (at 1 2), (net 3 "GND").
func (t *Tree) Head(id NodeID) string {
	n := t.Node(id)
	if n == nil || !n.IsList() || len(n.Children) == 0 {
		return ""
	}
	first := t.Node(n.Children[0])
	if first == nil || first.Kind != KindAtom {
		return ""
	}
	return first.Value
}

// Child returns the first list child of id whose head is name.
func (t *Tree) Child(id NodeID, name string) NodeID {
	n := t.Node(id)
	if n == nil {
		return NoNode
	}
	for _, c := range n.Children {
		if t.Head(c) == name {
			return c
		}
	}
	return NoNode
}

// ChildrenNamed returns every list child of id whose head is name.
func (t *Tree) ChildrenNamed(id NodeID, name string) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	var out []NodeID
	for _, c := range n.Children {
		if t.Head(c) == name {
			out = append(out, c)
		}
	}
	return out
}

// Args returns the atomic children of a list after its head, e.g. for
// (at 1 2 90) the ids of 1, 2 and 90.
func (t *Tree) Args(id NodeID) []NodeID {
	n := t.Node(id)
	if n == nil || !n.IsList() {
		return nil
	}
	var out []NodeID
	for i, c := range n.Children {
		if i == 0 && t.Head(id) != "" {
			continue
		}
		if cn := t.Node(c); cn != nil && cn.IsAtomic() {
			out = append(out, c)
		}
	}
	return out
}

// ArgValues returns the decoded values of Args.
func (t *Tree) ArgValues(id NodeID) []string {
	args := t.Args(id)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = t.Node(a).Value
	}
	return out
}

// FirstArg returns the first argument value of id, or "".
func (t *Tree) FirstArg(id NodeID) string {
	vals := t.ArgValues(id)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Parent returns the list that directly contains id. It walks the tree, so
// callers resolving many parents should keep their own index.
func (t *Tree) Parent(id NodeID) NodeID {
	var parent NodeID
	t.Walk(func(n *Node) bool {
		if parent != NoNode {
			return false
		}
		for _, c := range n.Children {
			if c == id {
				parent = n.ID
				return false
			}
		}
		return true
	})
	return parent
}

// IndexOf returns the position of child within parent, or -1.
func (t *Tree) IndexOf(parent, child NodeID) int {
	n := t.Node(parent)
	if n == nil {
		return -1
	}
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// Walk visits nodes depth first in document order, starting at the root.
// Returning false from fn prunes the children of that node. The traversal
// uses an explicit stack so nesting depth is bounded only by memory.
func (t *Tree) Walk(fn func(n *Node) bool) {
	t.WalkFrom(t.root, fn)
}

// WalkFrom is Walk rooted at start.
func (t *Tree) WalkFrom(start NodeID, fn func(n *Node) bool) {
	stack := []NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.Node(id)
		if n == nil {
			continue
		}
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Find returns the first node in document order matching pred.
func (t *Tree) Find(pred func(t *Tree, n *Node) bool) (NodeID, bool) {
	found := NoNode
	t.Walk(func(n *Node) bool {
		if found != NoNode {
			return false
		}
		if pred(t, n) {
			found = n.ID
			return false
		}
		return true
	})
	return found, found != NoNode
}

// Subtree returns the ids of start and all of its descendants.
func (t *Tree) Subtree(start NodeID) []NodeID {
	var ids []NodeID
	t.WalkFrom(start, func(n *Node) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// Indent returns the indentation (text after the last newline) of a node's
// leading trivia, or "" when the node shares its line with a predecessor.
func (t *Tree) Indent(id NodeID) (string, bool) {
	n := t.Node(id)
	if n == nil {
		return "", false
	}
	for i := len(n.Leading) - 1; i >= 0; i-- {
		if n.Leading[i] == '\n' {
			return n.Leading[i+1:], true
		}
	}
	return "", false
}
