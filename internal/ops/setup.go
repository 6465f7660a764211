package ops

import (
	"fmt"
	"sort"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

// setupRules are the numeric design rules stored in the board's (setup ...).
var setupRules = map[string]bool{
	"pad_to_mask_clearance":        true,
	"solder_mask_min_width":        true,
	"pad_to_paste_clearance":       true,
	"pad_to_paste_clearance_ratio": true,
}

var ruleAliases = map[string]string{
	"min_clearance":         "pad_to_mask_clearance",
	"mask_clearance":        "pad_to_mask_clearance",
	"mask_min_width":        "solder_mask_min_width",
	"paste_clearance":       "pad_to_paste_clearance",
	"paste_clearance_ratio": "pad_to_paste_clearance_ratio",
}

// druRules are often asked for but live in the project's .kicad_dru file,
// not in the board.
var druRules = map[string]bool{
	"clearance":                 true,
	"min_track_width":           true,
	"min_via_diameter":          true,
	"min_via_drill":             true,
	"min_microvia_diameter":     true,
	"min_microvia_drill":        true,
	"min_through_hole_diameter": true,
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// setting is one (name value) scalar.
type setting struct {
	name  string
	value Number
}

func settingsText(vals []setting) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = "(" + v.name + " " + v.value.Raw + ")"
	}
	return strings.Join(parts, " ")
}

// setupIndex is where a missing (setup ...) goes: after the layer table,
// ahead of the net declarations.
func setupIndex(t *sexp.Tree, top sexp.NodeID) int {
	if layers := t.Child(top, "layers"); layers != sexp.NoNode {
		return t.IndexOf(top, layers) + 1
	}
	if nets := t.ChildrenNamed(top, "net"); len(nets) > 0 {
		return t.IndexOf(top, nets[0])
	}
	return -1
}

// =============================================================================
// SETTINGS
// =============================================================================

// setSettings writes scalars into a container form: the board setup or one
// of its layer_constraints blocks. Overwrites are undone symmetrically.
// Anything inserted, up to the container itself, is undone from the
// snapshot.
type setSettings struct {
	base
	container sexp.NodeID

	// When container is NoNode, create is inserted into parent at index.
	parent  sexp.NodeID
	index   int
	create  string
	values  []setting
	inverse func(old []setting) *setSettings
}

func (o *setSettings) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if o.container == sexp.NoNode {
		if err := requireLive(o.kind, t, o.parent); err != nil {
			return nil, err
		}
		var err error
		if o.index < 0 {
			_, err = e.AppendForm(o.parent, o.create)
		} else {
			_, err = e.InsertForm(o.parent, o.index, o.create)
		}
		return nil, err
	}
	if err := requireLive(o.kind, t, o.container); err != nil {
		return nil, err
	}

	old := make([]setting, 0, len(o.values))
	inserted := false
	for _, v := range o.values {
		child := t.Child(o.container, v.name)
		arg := firstArgNode(t, child)
		switch {
		case arg != sexp.NoNode:
			old = append(old, setting{name: v.name, value: numberAt(t, arg)})
			if err := e.SetRaw(arg, v.value.Raw); err != nil {
				return nil, err
			}
		case child != sexp.NoNode:
			inserted = true
			if _, err := e.InsertAtom(child, 1, v.value.Raw); err != nil {
				return nil, err
			}
		default:
			inserted = true
			if _, err := e.AppendForm(o.container, "("+v.name+" "+v.value.Raw+")"); err != nil {
				return nil, err
			}
		}
	}
	if inserted {
		return nil, nil
	}
	return o.inverse(old), nil
}

// =============================================================================
// DESIGN RULES
// =============================================================================

func buildSetDesignRules(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindSetDesignRules, args)
	rules := r.numMap("rules")
	if err := r.Err(); err != nil {
		return nil, err
	}
	values, err := resolveRules(rules)
	if err != nil {
		return nil, err
	}

	return func(d *document.Document) (document.Operation, error) {
		top, err := topOf(KindSetDesignRules, d)
		if err != nil {
			return nil, err
		}
		t := d.Tree()
		return newSetDesignRules(top, t.Child(top, "setup"), setupIndex(t, top), values), nil
	}, nil
}

// resolveRules maps aliases to stored rule names and rejects anything the
// board setup cannot hold.
func resolveRules(rules map[string]Number) ([]setting, error) {
	if len(rules) == 0 {
		return nil, apperr.Validation(KindSetDesignRules, "rules", "no rules given")
	}
	valid := strings.Join(sortedKeys(setupRules), ", ")

	given := make(map[string]string, len(rules))
	out := make([]setting, 0, len(rules))
	for _, name := range sortedKeys(rules) {
		stored := name
		if alias, ok := ruleAliases[name]; ok {
			stored = alias
		}
		switch {
		case druRules[stored]:
			return nil, apperr.Validation(KindSetDesignRules, name,
				"%q belongs in the .kicad_dru design rules file, not the board setup; valid rules: %s", name, valid)
		case !setupRules[stored]:
			return nil, apperr.Validation(KindSetDesignRules, name,
				"unknown design rule %q; valid rules: %s; aliases: %s", name, valid, strings.Join(sortedKeys(ruleAliases), ", "))
		}
		if prev, dup := given[stored]; dup {
			return nil, apperr.Validation(KindSetDesignRules, name, "%q and %q both set %s", prev, name, stored)
		}
		given[stored] = name

		v := rules[name]
		if v.Value < 0 && (stored == "pad_to_mask_clearance" || stored == "solder_mask_min_width") {
			return nil, apperr.Validation(KindSetDesignRules, name, "%s cannot be negative, got %s", stored, v.Raw)
		}
		out = append(out, setting{name: stored, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func newSetDesignRules(top, setup sexp.NodeID, index int, values []setting) *setSettings {
	rules := make(map[string]any, len(values))
	names := make([]string, len(values))
	for i, v := range values {
		rules[v.name] = v.value.Value
		names[i] = v.name
	}
	target := setup
	if setup == sexp.NoNode {
		target = top
	}
	o := &setSettings{
		base: newBase(KindSetDesignRules,
			"Set design rules: "+strings.Join(names, ", "),
			map[string]any{"rules": rules}, target),
		container: setup,
		parent:    top,
		index:     index,
		create:    "(setup " + settingsText(values) + ")",
		values:    values,
	}
	o.inverse = func(old []setting) *setSettings {
		return newSetDesignRules(top, setup, index, old)
	}
	return o
}

// =============================================================================
// LAYER CONSTRAINTS
// =============================================================================

func buildSetLayerConstraints(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindSetLayerConstraints, args)
	layer := NormalizeLayer(r.str("layer"))
	var values []setting
	for _, name := range []string{"min_width", "min_clearance"} {
		if v, ok := args[name]; ok && v != nil {
			values = append(values, setting{name: name, value: r.num(name)})
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if layer == "" {
		return nil, apperr.Validation(KindSetLayerConstraints, "layer", "layer cannot be empty")
	}
	if len(values) == 0 {
		return nil, apperr.Validation(KindSetLayerConstraints, "min_width", "give min_width, min_clearance or both")
	}
	for _, v := range values {
		if v.value.Value < 0 {
			return nil, apperr.Validation(KindSetLayerConstraints, v.name, "%s cannot be negative, got %s", v.name, v.value.Raw)
		}
	}

	return func(d *document.Document) (document.Operation, error) {
		top, err := topOf(KindSetLayerConstraints, d)
		if err != nil {
			return nil, err
		}
		t := d.Tree()
		setup := t.Child(top, "setup")
		return newSetLayerConstraints(top, setup, constraintsFor(t, setup, layer), setupIndex(t, top), layer, values), nil
	}, nil
}

// constraintsFor finds the (layer_constraints (layer "name") ...) block.
func constraintsFor(t *sexp.Tree, setup sexp.NodeID, layer string) sexp.NodeID {
	if setup == sexp.NoNode {
		return sexp.NoNode
	}
	for _, c := range t.ChildrenNamed(setup, "layer_constraints") {
		if t.FirstArg(t.Child(c, "layer")) == layer {
			return c
		}
	}
	return sexp.NoNode
}

func newSetLayerConstraints(top, setup, block sexp.NodeID, index int, layer string, values []setting) *setSettings {
	params := map[string]any{"layer": layer}
	for _, v := range values {
		params[v.name] = v.value.Value
	}
	text := fmt.Sprintf("(layer_constraints (layer %s) %s)", sexp.Quote(layer), settingsText(values))

	o := &setSettings{container: block, values: values, create: text}
	target := block
	switch {
	case block != sexp.NoNode:
	case setup != sexp.NoNode:
		o.parent, o.index, target = setup, -1, setup
	default:
		o.parent, o.index, target = top, index, top
		o.create = "(setup " + text + ")"
	}
	o.base = newBase(KindSetLayerConstraints, "Set constraints for "+layer, params, target)
	o.inverse = func(old []setting) *setSettings {
		return newSetLayerConstraints(top, setup, block, index, layer, old)
	}
	return o
}

// =============================================================================
// NET CLASSES
// =============================================================================

func buildAddNetClass(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindAddNetClass, args)
	name := r.str("name")
	desc := r.optStr("description", "")
	clearance := r.optNum("clearance", 0.2)
	width := r.optNum("trace_width", 0.25)
	viaDia := r.optNum("via_dia", 0.8)
	viaDrill := r.optNum("via_drill", 0.4)
	nets := r.strList("nets")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Validation(KindAddNetClass, "name", "net class name cannot be empty")
	}
	if clearance.Value < 0 {
		return nil, apperr.Validation(KindAddNetClass, "clearance", "clearance cannot be negative, got %s", clearance.Raw)
	}
	for _, v := range []setting{{"trace_width", width}, {"via_dia", viaDia}, {"via_drill", viaDrill}} {
		if v.value.Value <= 0 {
			return nil, apperr.Validation(KindAddNetClass, v.name, "%s must be positive, got %s", v.name, v.value.Raw)
		}
	}
	if viaDrill.Value >= viaDia.Value {
		return nil, apperr.Validation(KindAddNetClass, "via_drill",
			"via drill %s must be smaller than via diameter %s", viaDrill.Raw, viaDia.Raw)
	}
	seen := make(map[string]bool, len(nets))
	for _, n := range nets {
		if seen[n] {
			return nil, apperr.Validation(KindAddNetClass, "nets", "net %q listed twice", n)
		}
		seen[n] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(net_class %s %s (clearance %s) (trace_width %s) (via_dia %s) (via_drill %s) (uuid %s)",
		sexp.Quote(name), sexp.Quote(desc), clearance.Raw, width.Raw, viaDia.Raw, viaDrill.Raw, sexp.Quote(id))
	for _, n := range nets {
		fmt.Fprintf(&b, " (add_net %s)", sexp.Quote(n))
	}
	b.WriteString(")")
	text := b.String()

	params := map[string]any{
		"name": name, "description": desc, "clearance": clearance.Value, "trace_width": width.Value,
		"via_dia": viaDia.Value, "via_drill": viaDrill.Value, "nets": append([]string{}, nets...), "uuid": id,
	}

	return func(d *document.Document) (document.Operation, error) {
		top, err := topOf(KindAddNetClass, d)
		if err != nil {
			return nil, err
		}
		t := d.Tree()
		for _, nc := range t.ChildrenNamed(top, "net_class") {
			if t.FirstArg(nc) == name {
				return nil, apperr.Validation(KindAddNetClass, "name", "net class %q already exists", name)
			}
		}
		for _, n := range nets {
			if _, err := findNet(KindAddNetClass, d, n); err != nil {
				return nil, err
			}
		}
		// Net classes follow the net declarations and any earlier classes.
		index := -1
		for _, head := range []string{"net", "net_class"} {
			if decl := t.ChildrenNamed(top, head); len(decl) > 0 {
				index = max(index, t.IndexOf(top, decl[len(decl)-1])+1)
			}
		}
		return newInsertForm(KindAddNetClass, fmt.Sprintf("Add net class %q", name), params, top, index, text), nil
	}, nil
}
