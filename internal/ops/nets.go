package ops

import (
	"fmt"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

func netText(num int, name string) string {
	return fmt.Sprintf("(net %d %s)", num, sexp.Quote(name))
}

// =============================================================================
// CREATE
// =============================================================================

type createNet struct {
	base
	top  sexp.NodeID
	num  int
	name string
}

func buildCreateNet(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindCreateNet, args)
	name := r.str("name")
	num := r.optInt("number", -1)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Validation(KindCreateNet, "name", "net name cannot be empty")
	}

	return func(d *document.Document) (document.Operation, error) {
		v := d.Project()
		if _, exists := v.Net(name); exists {
			return nil, apperr.Validation(KindCreateNet, "name", "net %q already exists", name)
		}
		n := num
		if n < 0 {
			n = v.NextNetNumber()
		} else if _, taken := v.NetByNumber(n); taken {
			return nil, apperr.Validation(KindCreateNet, "number", "net number %d already in use", n)
		}
		top, err := topOf(KindCreateNet, d)
		if err != nil {
			return nil, err
		}
		return &createNet{
			base: newBase(KindCreateNet, fmt.Sprintf("Create net %d %q", n, name),
				map[string]any{"name": name, "number": n}, top),
			top:  top,
			num:  n,
			name: name,
		}, nil
	}, nil
}

// Apply inserts the declaration after the last net, else after the layer
// table, else right after the head of the top form.
func (o *createNet) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.top); err != nil {
		return nil, err
	}
	children := t.Node(o.top).Children
	idx := -1
	for i, c := range children {
		if t.Head(c) == "net" {
			idx = i + 1
		}
	}
	if idx < 0 {
		for i, c := range children {
			if t.Head(c) == "layers" {
				idx = i + 1
				break
			}
		}
	}
	if idx < 0 {
		idx = 1
		if len(children) == 0 {
			idx = 0
		}
	}
	_, err := e.InsertForm(o.top, idx, netText(o.num, o.name))
	return nil, err
}

// =============================================================================
// DELETE
// =============================================================================

func buildDeleteNet(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindDeleteNet, args)
	name := r.str("name")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		n, err := findNet(KindDeleteNet, d, name)
		if err != nil {
			return nil, err
		}
		top, err := topOf(KindDeleteNet, d)
		if err != nil {
			return nil, err
		}
		return newRemoveItem(KindDeleteNet, fmt.Sprintf("Delete net %q", name),
			map[string]any{"name": name}, top, n.Node), nil
	}, nil
}

// =============================================================================
// ASSIGN
// =============================================================================

type assignNet struct {
	base
	pad sexp.NodeID
	net document.Net
}

func buildAssignNet(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindAssignNet, args)
	ref := r.str("reference")
	padNum := r.str("pad")
	netName := r.str("net")
	if err := r.Err(); err != nil {
		return nil, err
	}

	return func(d *document.Document) (document.Operation, error) {
		n, err := findNet(KindAssignNet, d, netName)
		if err != nil {
			return nil, err
		}
		comp, ok := d.Project().Component(ref)
		if !ok {
			if err := checkReference(KindAssignNet, ref); err != nil {
				return nil, err
			}
			return nil, apperr.Validation(KindAssignNet, "reference", "component %q not found", ref)
		}
		pad := sexp.NoNode
		for _, p := range comp.Pads {
			if p.Number == padNum {
				pad = p.Node
				break
			}
		}
		if pad == sexp.NoNode {
			return nil, apperr.Validation(KindAssignNet, "pad", "pad %q not found on %s", padNum, ref)
		}
		return &assignNet{
			base: newBase(KindAssignNet, fmt.Sprintf("Assign net %q to %s pad %s", netName, ref, padNum),
				map[string]any{"reference": ref, "pad": padNum, "net": netName}, pad),
			pad: pad,
			net: n,
		}, nil
	}, nil
}

func (o *assignNet) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.pad); err != nil {
		return nil, err
	}
	text := netText(o.net.Number, o.net.Name)
	var err error
	if existing := t.Child(o.pad, "net"); existing != sexp.NoNode {
		_, err = e.ReplaceForm(o.pad, existing, text)
	} else {
		_, err = e.AppendForm(o.pad, text)
	}
	return nil, err
}
