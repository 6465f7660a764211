package ops

import (
	"fmt"
	"sort"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

type propertyMode int

const (
	// propertyOverwrite replaces the value atom of an existing property.
	propertyOverwrite propertyMode = iota
	// propertyFill adds the missing value atom to (property "Name").
	propertyFill
	// propertyCreate appends a new hidden property to the component.
	propertyCreate
)

type setProperty struct {
	base
	mode   propertyMode
	comp   sexp.NodeID
	target sexp.NodeID
	ref    string
	name   string
	value  string
	// raw, when set, is written verbatim instead of value. Inverses carry
	// the old spelling here.
	raw   string
	uuid  string
	layer string
}

func buildSetProperty(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindSetProperty, args)
	ref := r.str("reference")
	name := r.str("name")
	value := r.str("value")
	// Only used when the property is new.
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Validation(KindSetProperty, "name", "property name cannot be empty")
	}

	return func(d *document.Document) (document.Operation, error) {
		comp, err := findComponent(KindSetProperty, d, ref)
		if err != nil {
			return nil, err
		}
		op, err := bindProperty(KindSetProperty, d, comp, ref, name, value, id)
		if err != nil {
			return nil, err
		}
		return op, nil
	}, nil
}

// bindProperty resolves one property write on comp. id names the property
// if it has to be created.
func bindProperty(kind string, d *document.Document, comp sexp.NodeID, ref, name, value, id string) (*setProperty, error) {
	if name == "Reference" && value != ref {
		if err := checkReference(kind, value); err != nil {
			return nil, err
		}
		if _, taken := d.Project().ComponentNode(value); taken {
			return nil, apperr.Validation(kind, "value", "component %q already exists", value)
		}
	}

	t := d.Tree()
	op := &setProperty{comp: comp, ref: ref, name: name, value: value}
	op.target = findProperty(t, comp, name)
	switch {
	case op.target == sexp.NoNode:
		op.mode = propertyCreate
		op.target = comp
		op.uuid = id
		op.layer = sideLayer(t.FirstArg(t.Child(comp, "layer")), "Fab")
	case len(t.Args(op.target)) < 2:
		op.mode = propertyFill
	default:
		op.mode = propertyOverwrite
	}
	op.base = op.describe()
	return op, nil
}

// findProperty locates (property "name" ...) on comp, falling back to the
// legacy (fp_text reference|value ...) spelling.
func findProperty(t *sexp.Tree, comp sexp.NodeID, name string) sexp.NodeID {
	for _, p := range t.ChildrenNamed(comp, "property") {
		if t.FirstArg(p) == name {
			return p
		}
	}
	legacy := map[string]string{"Reference": "reference", "Value": "value"}[name]
	if legacy == "" {
		return sexp.NoNode
	}
	for _, ft := range t.ChildrenNamed(comp, "fp_text") {
		if t.FirstArg(ft) == legacy {
			return ft
		}
	}
	return sexp.NoNode
}

func (o *setProperty) describe() base {
	params := map[string]any{"reference": o.ref, "name": o.name, "value": o.value}
	if o.mode == propertyCreate {
		params["uuid"] = o.uuid
	}
	return newBase(KindSetProperty,
		fmt.Sprintf("Set %s %s to %q", o.ref, o.name, o.value),
		params, o.target)
}

func (o *setProperty) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.comp, o.target); err != nil {
		return nil, err
	}

	switch o.mode {
	case propertyCreate:
		text := fmt.Sprintf("(property %s %s (at 0 0 0) (layer %s) (uuid %s) (effects (font (size 1 1) (thickness 0.15)) hide))",
			sexp.Quote(o.name), sexp.Quote(o.value), sexp.Quote(o.layer), sexp.Quote(o.uuid))
		_, err := e.AppendForm(o.comp, text)
		return nil, err

	case propertyFill:
		args := t.Args(o.target)
		if len(args) == 0 {
			return nil, apperr.ValidationAt(o.kind, uint64(o.target), "property has no name")
		}
		_, err := e.InsertAtom(o.target, t.IndexOf(o.target, args[0])+1, sexp.Quote(o.value))
		return nil, err
	}

	args := t.Args(o.target)
	if len(args) < 2 {
		return nil, apperr.ValidationAt(o.kind, uint64(o.target), "property %s has no value", o.name)
	}
	old := t.Node(args[1])

	// After a Reference change the component is known by its new name.
	ref := o.ref
	if o.name == "Reference" {
		ref = o.value
	}
	inv := &setProperty{
		mode:   propertyOverwrite,
		comp:   o.comp,
		target: o.target,
		ref:    ref,
		name:   o.name,
		value:  old.Value,
		raw:    old.Raw,
	}
	inv.base = inv.describe()

	var err error
	if o.raw != "" {
		err = e.SetRaw(args[1], o.raw)
	} else {
		err = e.SetValue(args[1], o.value)
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// =============================================================================
// EDIT COMPONENT
// =============================================================================

// editComponent writes several properties of one component in a single
// step. It is undone symmetrically only when every write overwrote a value.
type editComponent struct {
	base
	comp  sexp.NodeID
	ref   string
	steps []*setProperty
}

func buildEditComponent(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindEditComponent, args)
	ref := r.str("reference")
	props := r.strMap("properties")
	seed := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, apperr.Validation(KindEditComponent, "properties", "no properties given")
	}
	names := make([]string, 0, len(props))
	for name := range props {
		if name == "" {
			return nil, apperr.Validation(KindEditComponent, "properties", "property name cannot be empty")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return func(d *document.Document) (document.Operation, error) {
		comp, err := findComponent(KindEditComponent, d, ref)
		if err != nil {
			return nil, err
		}
		steps := make([]*setProperty, 0, len(names))
		for _, name := range names {
			step, err := bindProperty(KindEditComponent, d, comp, ref, name, props[name], derivedUUID(seed, name))
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}
		return newEditComponent(comp, ref, seed, steps), nil
	}, nil
}

func newEditComponent(comp sexp.NodeID, ref, seed string, steps []*setProperty) *editComponent {
	props := make(map[string]any, len(steps))
	names := make([]string, 0, len(steps))
	targets := []sexp.NodeID{comp}
	for _, s := range steps {
		props[s.name] = s.value
		names = append(names, s.name)
		targets = append(targets, s.target)
	}
	params := map[string]any{"reference": ref, "properties": props}
	if seed != "" {
		params["uuid"] = seed
	}
	return &editComponent{
		base: newBase(KindEditComponent,
			fmt.Sprintf("Edit %s properties: %s", ref, strings.Join(names, ", ")),
			params, targets...),
		comp:  comp,
		ref:   ref,
		steps: steps,
	}
}

func (o *editComponent) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.targets...); err != nil {
		return nil, err
	}

	ref := o.ref
	symmetric := true
	inverses := make([]*setProperty, 0, len(o.steps))
	for _, step := range o.steps {
		inv, err := step.Apply(e)
		if err != nil {
			return nil, err
		}
		if step.name == "Reference" {
			ref = step.value
		}
		if inv == nil {
			symmetric = false
			continue
		}
		inverses = append(inverses, inv.(*setProperty))
	}
	if !symmetric {
		return nil, nil
	}
	return newEditComponent(o.comp, ref, "", inverses), nil
}
