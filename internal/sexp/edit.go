package sexp

import (
	"strings"

	"boardedit/internal/apperr"
)

// DefaultIndentUnit is added to a parent's indentation when a list child is
// inserted into a list that has no list children to copy indentation from.
const DefaultIndentUnit = "  "

// Snapshot is the captured pre-image of an edit: a copy of every record the
// edit wrote or removed, plus the ids the edit created. Restoring it puts
// the tree back exactly, node ids included.
type Snapshot struct {
	Records []Node
	Created []NodeID
}

// Empty reports whether the snapshot captured nothing.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Records) == 0 && len(s.Created) == 0)
}

// Size is the number of records held.
func (s *Snapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Records) + len(s.Created)
}

// Restore applies a snapshot to t.
func (t *Tree) Restore(s *Snapshot) {
	if s == nil {
		return
	}
	for _, id := range s.Created {
		if int(id) < len(t.nodes) {
			t.nodes[id] = nil
		}
	}
	for i := range s.Records {
		rec := s.Records[i]
		rec.Children = append([]NodeID(nil), rec.Children...)
		rec.gen = t.gen
		t.put(&rec)
	}
}

// Edit is a journaled set of changes to one tree. Every primitive records
// the pre-image of what it touches, so Abort undoes a half-finished change
// and Snapshot yields the inverse of a finished one.
type Edit struct {
	t          *Tree
	saved      map[NodeID]Node
	order      []NodeID
	created    map[NodeID]struct{}
	createdSeq []NodeID

	// IndentUnit is used when no sibling shows how to indent a new form.
	IndentUnit string
}

// Begin starts an edit on t.
func (t *Tree) Begin() *Edit {
	return &Edit{
		t:          t,
		saved:      make(map[NodeID]Node),
		created:    make(map[NodeID]struct{}),
		IndentUnit: DefaultIndentUnit,
	}
}

// Tree returns the tree being edited, for reads.
func (e *Edit) Tree() *Tree { return e.t }

// Changed reports whether the edit wrote anything.
func (e *Edit) Changed() bool { return len(e.order) > 0 || len(e.createdSeq) > 0 }

// Snapshot returns the pre-image captured so far.
func (e *Edit) Snapshot() *Snapshot {
	s := &Snapshot{
		Records: make([]Node, 0, len(e.order)),
		Created: append([]NodeID(nil), e.createdSeq...),
	}
	for _, id := range e.order {
		s.Records = append(s.Records, e.saved[id])
	}
	return s
}

// Abort restores everything the edit touched.
func (e *Edit) Abort() {
	e.t.Restore(e.Snapshot())
	e.saved = make(map[NodeID]Node)
	e.order = nil
	e.created = make(map[NodeID]struct{})
	e.createdSeq = nil
}

func (e *Edit) save(id NodeID) {
	if _, ok := e.created[id]; ok {
		return
	}
	if _, ok := e.saved[id]; ok {
		return
	}
	n := e.t.Node(id)
	if n == nil {
		return
	}
	c := *n
	c.Children = append([]NodeID(nil), n.Children...)
	e.saved[id] = c
	e.order = append(e.order, id)
}

func (e *Edit) touch(id NodeID) (*Node, error) {
	if !e.t.Has(id) {
		return nil, apperr.ValidationAt("edit", uint64(id), "node %d does not exist", id)
	}
	e.save(id)
	return e.t.writable(id), nil
}

func (e *Edit) list(id NodeID) (*Node, error) {
	n := e.t.Node(id)
	if n == nil {
		return nil, apperr.ValidationAt("edit", uint64(id), "node %d does not exist", id)
	}
	if !n.IsList() {
		return nil, apperr.ValidationAt("edit", uint64(id), "node %d is a %s, not a list", id, n.Kind)
	}
	return e.touch(id)
}

// =============================================================================
// SCALAR EDITS
// =============================================================================

// SetRaw replaces the spelling of an atom or string. raw must lex as exactly
// one atom or string token. The node keeps its id and leading trivia.
func (e *Edit) SetRaw(id NodeID, raw string) error {
	n := e.t.Node(id)
	if n == nil || !n.IsAtomic() {
		return apperr.ValidationAt("edit", uint64(id), "node %d is not an atom", id)
	}
	toks, err := Tokenize(raw)
	if err != nil {
		return err
	}
	if len(toks) != 1 || (toks[0].Kind != TokenAtom && toks[0].Kind != TokenString) {
		return apperr.ValidationAt("edit", uint64(id), "%q is not a single atom", raw)
	}
	w, err := e.touch(id)
	if err != nil {
		return err
	}
	w.Raw = raw
	w.Value = raw
	w.Kind = KindAtom
	if toks[0].Kind == TokenString {
		w.Kind = KindString
		w.Value = Unquote(raw)
	}
	return nil
}

// SetValue replaces the value of an atom or string, keeping its kind: a
// string stays quoted, an atom stays bare unless value needs quoting.
func (e *Edit) SetValue(id NodeID, value string) error {
	n := e.t.Node(id)
	if n == nil || !n.IsAtomic() {
		return apperr.ValidationAt("edit", uint64(id), "node %d is not an atom", id)
	}
	raw := QuoteIfNeeded(value)
	if n.Kind == KindString {
		raw = Quote(value)
	}
	return e.SetRaw(id, raw)
}

// InsertAtom inserts a new atom at index of parent, separated by one space.
func (e *Edit) InsertAtom(parent NodeID, index int, raw string) (NodeID, error) {
	p, err := e.list(parent)
	if err != nil {
		return NoNode, err
	}
	if index < 0 || index > len(p.Children) {
		return NoNode, apperr.ValidationAt("edit", uint64(parent), "index %d out of range", index)
	}
	ids, err := e.fragment(raw)
	if err != nil {
		return NoNode, err
	}
	if len(ids) != 1 || !e.t.Node(ids[0]).IsAtomic() {
		e.dropFragment(ids)
		return NoNode, apperr.ValidationAt("edit", uint64(parent), "%q is not a single atom", raw)
	}
	n := e.t.writable(ids[0])
	n.Leading = " "
	if index == 0 && parent != e.t.root {
		n.Leading = ""
	}
	p.Children = insertAt(p.Children, index, n.ID)
	return n.ID, nil
}

// =============================================================================
// STRUCTURAL EDITS
// =============================================================================

// InsertForm parses text as exactly one form and inserts it at index of
// parent. The new node's leading trivia is derived from its neighbours so the
// result stays visually consistent; its interior keeps the spelling of text.
func (e *Edit) InsertForm(parent NodeID, index int, text string) (NodeID, error) {
	p, err := e.list(parent)
	if err != nil {
		return NoNode, err
	}
	if index < 0 || index > len(p.Children) {
		return NoNode, apperr.ValidationAt("edit", uint64(parent), "index %d out of range", index)
	}
	ids, err := e.fragment(text)
	if err != nil {
		return NoNode, err
	}
	if len(ids) != 1 {
		e.dropFragment(ids)
		return NoNode, apperr.ValidationAt("edit", uint64(parent), "fragment holds %d forms, want 1", len(ids))
	}
	n := e.t.writable(ids[0])
	n.Leading = e.leadingFor(parent, index)
	p = e.t.writable(parent)
	p.Children = insertAt(p.Children, index, n.ID)
	return n.ID, nil
}

// AppendForm is InsertForm at the end of parent.
func (e *Edit) AppendForm(parent NodeID, text string) (NodeID, error) {
	n := e.t.Node(parent)
	if n == nil {
		return NoNode, apperr.ValidationAt("edit", uint64(parent), "node %d does not exist", parent)
	}
	return e.InsertForm(parent, len(n.Children), text)
}

// ReplaceForm swaps child of parent for the form in text. The new node takes
// over the old node's leading trivia and position.
func (e *Edit) ReplaceForm(parent, child NodeID, text string) (NodeID, error) {
	idx := e.t.IndexOf(parent, child)
	if idx < 0 {
		return NoNode, apperr.ValidationAt("edit", uint64(child), "node %d is not a child of %d", child, parent)
	}
	leading := e.t.Node(child).Leading
	if err := e.Remove(parent, child); err != nil {
		return NoNode, err
	}
	id, err := e.InsertForm(parent, idx, text)
	if err != nil {
		return NoNode, err
	}
	e.t.writable(id).Leading = leading
	return id, nil
}

// Remove detaches child from parent and drops its subtree from the arena.
// The removed records are captured so Abort or a restored Snapshot brings
// them back under their original ids.
func (e *Edit) Remove(parent, child NodeID) error {
	idx := e.t.IndexOf(parent, child)
	if idx < 0 {
		return apperr.ValidationAt("edit", uint64(child), "node %d is not a child of %d", child, parent)
	}
	p, err := e.list(parent)
	if err != nil {
		return err
	}
	for _, id := range e.t.Subtree(child) {
		e.save(id)
		e.t.nodes[id] = nil
	}
	p.Children = append(p.Children[:idx:idx], p.Children[idx+1:]...)
	return nil
}

func (e *Edit) fragment(text string) ([]NodeID, error) {
	ids, err := e.t.parseFragment(text)
	if err != nil {
		return nil, err
	}
	for _, root := range ids {
		for _, id := range e.t.Subtree(root) {
			e.created[id] = struct{}{}
			e.createdSeq = append(e.createdSeq, id)
		}
	}
	return ids, nil
}

func (e *Edit) dropFragment(ids []NodeID) {
	for _, root := range ids {
		e.t.dropSubtree(root)
	}
}

// leadingFor derives the trivia for a list child inserted at index of parent.
func (e *Edit) leadingFor(parent NodeID, index int) string {
	p := e.t.Node(parent)

	// Prefer the nearest list sibling before the insertion point, then after.
	sibling := NoNode
	for i := index - 1; i >= 0 && sibling == NoNode; i-- {
		if e.t.Node(p.Children[i]).IsList() {
			sibling = p.Children[i]
		}
	}
	for i := index; i < len(p.Children) && sibling == NoNode; i++ {
		if e.t.Node(p.Children[i]).IsList() {
			sibling = p.Children[i]
		}
	}
	if sibling != NoNode {
		if indent, ok := e.t.Indent(sibling); ok {
			return "\n" + indent
		}
		return " "
	}

	if parent == e.t.root {
		if len(p.Children) == 0 {
			return ""
		}
		return "\n"
	}
	if indent, ok := e.t.Indent(parent); ok {
		return "\n" + indent + e.IndentUnit
	}
	if strings.Contains(p.Closing, "\n") {
		return "\n" + e.IndentUnit
	}
	return " "
}

func insertAt(s []NodeID, i int, id NodeID) []NodeID {
	s = append(s, NoNode)
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}
