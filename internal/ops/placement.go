package ops

import (
	"fmt"
	"strconv"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

// =============================================================================
// MOVE
// =============================================================================

type moveComponent struct {
	base
	node sexp.NodeID
	ref  string
	x, y Number
}

func buildMoveComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindMoveComponent, args)
	ref := r.str("reference")
	x := r.num("x")
	y := r.num("y")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		node, err := findComponent(KindMoveComponent, d, ref)
		if err != nil {
			return nil, err
		}
		return newMoveComponent(node, ref, x, y), nil
	}, nil
}

func newMoveComponent(node sexp.NodeID, ref string, x, y Number) *moveComponent {
	return &moveComponent{
		base: newBase(KindMoveComponent,
			fmt.Sprintf("Move %s to (%s, %s)", ref, x.Raw, y.Raw),
			map[string]any{"reference": ref, "x": x.Value, "y": y.Value},
			node),
		node: node,
		ref:  ref,
		x:    x,
		y:    y,
	}
}

func (o *moveComponent) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.node); err != nil {
		return nil, err
	}
	_, args, err := atArgs(o.kind, t, o.node)
	if err != nil {
		return nil, err
	}
	inv := newMoveComponent(o.node, o.ref, numberAt(t, args[0]), numberAt(t, args[1]))
	if err := e.SetRaw(args[0], o.x.Raw); err != nil {
		return nil, err
	}
	if err := e.SetRaw(args[1], o.y.Raw); err != nil {
		return nil, err
	}
	return inv, nil
}

// =============================================================================
// ROTATE
// =============================================================================

type rotateComponent struct {
	base
	node  sexp.NodeID
	ref   string
	angle Number
}

func buildRotateComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindRotateComponent, args)
	ref := r.str("reference")
	angle := r.num("angle")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		node, err := findComponent(KindRotateComponent, d, ref)
		if err != nil {
			return nil, err
		}
		return newRotateComponent(node, ref, angle), nil
	}, nil
}

func newRotateComponent(node sexp.NodeID, ref string, angle Number) *rotateComponent {
	return &rotateComponent{
		base: newBase(KindRotateComponent,
			fmt.Sprintf("Rotate %s to %s degrees", ref, angle.Raw),
			map[string]any{"reference": ref, "angle": angle.Value},
			node),
		node:  node,
		ref:   ref,
		angle: angle,
	}
}

// Apply overwrites an existing angle symmetrically. A position without an
// angle gets one inserted, which is undone from the snapshot.
func (o *rotateComponent) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.node); err != nil {
		return nil, err
	}
	at, args, err := atArgs(o.kind, t, o.node)
	if err != nil {
		return nil, err
	}
	if len(args) >= 3 {
		inv := newRotateComponent(o.node, o.ref, numberAt(t, args[2]))
		if err := e.SetRaw(args[2], o.angle.Raw); err != nil {
			return nil, err
		}
		return inv, nil
	}
	if _, err := e.InsertAtom(at, t.IndexOf(at, args[1])+1, o.angle.Raw); err != nil {
		return nil, err
	}
	return nil, nil
}

// =============================================================================
// FLIP
// =============================================================================

// flipGraphics are the footprint children whose (layer ...) follows the side.
var flipGraphics = []string{"fp_line", "fp_rect", "fp_circle", "fp_arc", "fp_poly", "fp_text", "property"}

type flipComponent struct {
	base
	node sexp.NodeID
}

func buildFlipComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindFlipComponent, args)
	ref := r.str("reference")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		node, err := findComponent(KindFlipComponent, d, ref)
		if err != nil {
			return nil, err
		}
		return &flipComponent{
			base: newBase(KindFlipComponent, fmt.Sprintf("Flip %s to the opposite side", ref),
				map[string]any{"reference": ref}, node),
			node: node,
		}, nil
	}, nil
}

func (o *flipComponent) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.node); err != nil {
		return nil, err
	}

	var atoms []sexp.NodeID
	if a := firstArgNode(t, t.Child(o.node, "layer")); a != sexp.NoNode {
		atoms = append(atoms, a)
	}
	for _, pad := range t.ChildrenNamed(o.node, "pad") {
		atoms = append(atoms, t.Args(t.Child(pad, "layers"))...)
	}
	for _, name := range flipGraphics {
		for _, g := range t.ChildrenNamed(o.node, name) {
			if a := firstArgNode(t, t.Child(g, "layer")); a != sexp.NoNode {
				atoms = append(atoms, a)
			}
		}
	}

	for _, id := range atoms {
		old := t.Node(id).Value
		if flipped := FlipLayer(old); flipped != old {
			if err := e.SetValue(id, flipped); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// =============================================================================
// DELETE
// =============================================================================

// removeItem detaches a bound node from its parent. It backs every delete
// operation in the catalog.
type removeItem struct {
	base
	parent sexp.NodeID
	node   sexp.NodeID
}

func newRemoveItem(kind, desc string, params map[string]any, parent, node sexp.NodeID) *removeItem {
	return &removeItem{base: newBase(kind, desc, params, node), parent: parent, node: node}
}

func (o *removeItem) Apply(e *sexp.Edit) (document.Operation, error) {
	if err := requireLive(o.kind, e.Tree(), o.parent, o.node); err != nil {
		return nil, err
	}
	return nil, e.Remove(o.parent, o.node)
}

func buildDeleteComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindDeleteComponent, args)
	ref := r.str("reference")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		node, err := findComponent(KindDeleteComponent, d, ref)
		if err != nil {
			return nil, err
		}
		parent := d.Tree().Parent(node)
		return newRemoveItem(KindDeleteComponent, "Delete component "+ref,
			map[string]any{"reference": ref}, parent, node), nil
	}, nil
}

// =============================================================================
// PLACE
// =============================================================================

// appendForm adds one new form to parent, at the end or at index. It backs
// every operation that creates an item.
type appendForm struct {
	base
	parent sexp.NodeID
	index  int // -1 appends
	text   string
}

func newAppendForm(kind, desc string, params map[string]any, parent sexp.NodeID, text string) *appendForm {
	return newInsertForm(kind, desc, params, parent, -1, text)
}

func newInsertForm(kind, desc string, params map[string]any, parent sexp.NodeID, index int, text string) *appendForm {
	return &appendForm{base: newBase(kind, desc, params, parent), parent: parent, index: index, text: text}
}

func (o *appendForm) Apply(e *sexp.Edit) (document.Operation, error) {
	if err := requireLive(o.kind, e.Tree(), o.parent); err != nil {
		return nil, err
	}
	var err error
	if o.index < 0 {
		_, err = e.AppendForm(o.parent, o.text)
	} else {
		_, err = e.InsertForm(o.parent, o.index, o.text)
	}
	return nil, err
}

const textEffects = "(effects (font (size 1 1) (thickness 0.15)))"

func footprintText(library, ref, value string, x, y, angle Number, layer, id string) string {
	at := x.Raw + " " + y.Raw
	if angle.Value != 0 {
		at += " " + angle.Raw
	}
	var b strings.Builder
	fmt.Fprintf(&b, "(footprint %s (layer %s) (uuid %s) (at %s)",
		sexp.Quote(library), sexp.Quote(layer), sexp.Quote(id), at)
	fmt.Fprintf(&b, " (property \"Reference\" %s (at 0 -1.5 0) (layer %s) (uuid %s) %s)",
		sexp.Quote(ref), sexp.Quote(sideLayer(layer, "SilkS")), sexp.Quote(derivedUUID(id, "Reference")), textEffects)
	fmt.Fprintf(&b, " (property \"Value\" %s (at 0 1.5 0) (layer %s) (uuid %s) %s)",
		sexp.Quote(value), sexp.Quote(sideLayer(layer, "Fab")), sexp.Quote(derivedUUID(id, "Value")), textEffects)
	b.WriteString(" (attr smd))")
	return b.String()
}

func buildPlaceComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindPlaceComponent, args)
	ref := r.str("reference")
	library := r.str("library")
	x := r.num("x")
	y := r.num("y")
	angle := r.optNum("angle", 0)
	layer := NormalizeLayer(r.optStr("layer", "F.Cu"))
	value := r.optStr("value", "")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := checkReference(KindPlaceComponent, ref); err != nil {
		return nil, err
	}
	if library == "" {
		return nil, apperr.Validation(KindPlaceComponent, "library", "library cannot be empty")
	}
	if layer == "" {
		return nil, apperr.Validation(KindPlaceComponent, "layer", "layer cannot be empty")
	}
	if value == "" {
		value = library[strings.LastIndex(library, ":")+1:]
	}

	params := map[string]any{
		"reference": ref, "library": library, "value": value,
		"x": x.Value, "y": y.Value, "angle": angle.Value, "layer": layer, "uuid": id,
	}
	text := footprintText(library, ref, value, x, y, angle, layer, id)
	desc := fmt.Sprintf("Place %s (%s) at (%s, %s) on %s", ref, library, x.Raw, y.Raw, layer)

	return func(d *document.Document) (document.Operation, error) {
		if _, taken := d.Project().ComponentNode(ref); taken {
			return nil, apperr.Validation(KindPlaceComponent, "reference", "component %q already exists", ref)
		}
		top, err := topOf(KindPlaceComponent, d)
		if err != nil {
			return nil, err
		}
		return newAppendForm(KindPlaceComponent, desc, params, top, text), nil
	}, nil
}

// =============================================================================
// REPLACE
// =============================================================================

// replaceComponent swaps a footprint for a new one in the same place in the
// file. Undo restores the old footprint from the snapshot.
type replaceComponent struct {
	base
	parent sexp.NodeID
	node   sexp.NodeID
	text   string
}

func buildReplaceComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindReplaceComponent, args)
	ref := r.str("reference")
	library := r.str("library")
	value := r.optStr("value", "")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if library == "" {
		return nil, apperr.Validation(KindReplaceComponent, "library", "library cannot be empty")
	}
	if value == "" {
		value = library[strings.LastIndex(library, ":")+1:]
	}

	return func(d *document.Document) (document.Operation, error) {
		node, err := findComponent(KindReplaceComponent, d, ref)
		if err != nil {
			return nil, err
		}
		t := d.Tree()
		_, at, err := atArgs(KindReplaceComponent, t, node)
		if err != nil {
			return nil, err
		}
		angle := NewNumber(0)
		if len(at) >= 3 {
			angle = numberAt(t, at[2])
		}
		layer := t.FirstArg(t.Child(node, "layer"))
		if layer == "" {
			layer = "F.Cu"
		}

		return &replaceComponent{
			base: newBase(KindReplaceComponent,
				fmt.Sprintf("Replace %s with %s (%s)", ref, library, value),
				map[string]any{"reference": ref, "library": library, "value": value, "uuid": id},
				node),
			parent: t.Parent(node),
			node:   node,
			text:   footprintText(library, ref, value, numberAt(t, at[0]), numberAt(t, at[1]), angle, layer, id),
		}, nil
	}, nil
}

func (o *replaceComponent) Apply(e *sexp.Edit) (document.Operation, error) {
	if err := requireLive(o.kind, e.Tree(), o.parent, o.node); err != nil {
		return nil, err
	}
	_, err := e.ReplaceForm(o.parent, o.node, o.text)
	return nil, err
}

// =============================================================================
// MOUNTING HOLE
// =============================================================================

func buildAddMountingHole(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindAddMountingHole, args)
	x := r.num("x")
	y := r.num("y")
	drill := r.optNum("drill", 3.2)
	padDia := r.optNum("pad_dia", 6.0)
	ref := r.optStr("reference", "")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if drill.Value <= 0 {
		return nil, apperr.Validation(KindAddMountingHole, "drill", "drill must be positive, got %s", drill.Raw)
	}
	if padDia.Value < drill.Value {
		return nil, apperr.Validation(KindAddMountingHole, "pad_dia",
			"pad diameter %s is smaller than drill %s", padDia.Raw, drill.Raw)
	}

	return func(d *document.Document) (document.Operation, error) {
		v := d.Project()
		hole := ref
		if hole == "" {
			hole = nextFreeReference(v, "H")
		} else if err := checkReference(KindAddMountingHole, hole); err != nil {
			return nil, err
		} else if _, taken := v.ComponentNode(hole); taken {
			return nil, apperr.Validation(KindAddMountingHole, "reference", "component %q already exists", hole)
		}
		top, err := topOf(KindAddMountingHole, d)
		if err != nil {
			return nil, err
		}

		offset := NewNumber(padDia.Value/2 + 1)
		text := fmt.Sprintf("(footprint %s (layer \"F.Cu\") (uuid %s) (at %s %s)"+
			" (property \"Reference\" %s (at 0 -%s 0) (layer \"F.SilkS\") (uuid %s) %s)"+
			" (property \"Value\" \"MountingHole\" (at 0 %s 0) (layer \"F.Fab\") (uuid %s) %s)"+
			" (pad \"\" np_thru_hole circle (at 0 0) (size %s %s) (drill %s) (layers \"*.Cu\" \"*.Mask\")))",
			sexp.Quote("MountingHole:MountingHole_"+drill.Raw+"mm"), sexp.Quote(id), x.Raw, y.Raw,
			sexp.Quote(hole), offset.Raw, sexp.Quote(derivedUUID(id, "Reference")), textEffects,
			offset.Raw, sexp.Quote(derivedUUID(id, "Value")), textEffects,
			padDia.Raw, padDia.Raw, drill.Raw)
		params := map[string]any{
			"x": x.Value, "y": y.Value, "drill": drill.Value, "pad_dia": padDia.Value,
			"reference": hole, "uuid": id,
		}
		desc := fmt.Sprintf("Add mounting hole %s at (%s, %s) drill=%smm", hole, x.Raw, y.Raw, drill.Raw)
		return newAppendForm(KindAddMountingHole, desc, params, top, text), nil
	}, nil
}

// nextFreeReference returns prefix followed by the lowest unused number.
func nextFreeReference(v *document.View, prefix string) string {
	for n := 1; ; n++ {
		ref := prefix + strconv.Itoa(n)
		if _, taken := v.ComponentNode(ref); !taken {
			return ref
		}
	}
}
