package ops

import (
	"fmt"
	"math"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

// =============================================================================
// TRACKS
// =============================================================================

func buildRouteTrace(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindRouteTrace, args)
	sx := r.num("start_x")
	sy := r.num("start_y")
	ex := r.num("end_x")
	ey := r.num("end_y")
	width := r.num("width")
	layer := NormalizeLayer(r.optStr("layer", "F.Cu"))
	net := r.integer("net")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if width.Value <= 0 {
		return nil, apperr.Validation(KindRouteTrace, "width", "width must be positive, got %s", width.Raw)
	}
	if math.Hypot(ex.Value-sx.Value, ey.Value-sy.Value) == 0 {
		return nil, apperr.Validation(KindRouteTrace, "end_x", "segment has zero length")
	}
	if net < 0 {
		return nil, apperr.Validation(KindRouteTrace, "net", "net number cannot be negative")
	}

	text := fmt.Sprintf("(segment (start %s %s) (end %s %s) (width %s) (layer %s) (net %d) (uuid %s))",
		sx.Raw, sy.Raw, ex.Raw, ey.Raw, width.Raw, sexp.Quote(layer), net, sexp.Quote(id))
	params := map[string]any{
		"start_x": sx.Value, "start_y": sy.Value, "end_x": ex.Value, "end_y": ey.Value,
		"width": width.Value, "layer": layer, "net": net, "uuid": id,
	}
	desc := fmt.Sprintf("Route trace (%s,%s)->(%s,%s) w=%s on %s net %d",
		sx.Raw, sy.Raw, ex.Raw, ey.Raw, width.Raw, layer, net)

	return func(d *document.Document) (document.Operation, error) {
		if err := checkNetNumber(KindRouteTrace, d, net); err != nil {
			return nil, err
		}
		if _, exists := d.Project().Segment(id); exists {
			return nil, apperr.Validation(KindRouteTrace, "uuid", "segment %s already exists", id)
		}
		top, err := topOf(KindRouteTrace, d)
		if err != nil {
			return nil, err
		}
		return newAppendForm(KindRouteTrace, desc, params, top, text), nil
	}, nil
}

func buildDeleteTrace(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindDeleteTrace, args)
	id := r.str("uuid")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := checkUUID(KindDeleteTrace, "uuid", id); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		s, ok := d.Project().Segment(id)
		if !ok {
			return nil, apperr.Validation(KindDeleteTrace, "uuid", "segment %q not found", id)
		}
		top, err := topOf(KindDeleteTrace, d)
		if err != nil {
			return nil, err
		}
		return newRemoveItem(KindDeleteTrace, "Delete segment "+shortID(id),
			map[string]any{"uuid": id}, top, s.Node), nil
	}, nil
}

// =============================================================================
// VIAS
// =============================================================================

func buildAddVia(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindAddVia, args)
	x := r.num("x")
	y := r.num("y")
	size := r.optNum("size", 0.8)
	drill := r.optNum("drill", 0.4)
	layers := r.strList("layers")
	net := r.integer("net")
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		layers = []string{"F.Cu", "B.Cu"}
	}
	if len(layers) != 2 {
		return nil, apperr.Validation(KindAddVia, "layers", "want a start and an end layer, got %d", len(layers))
	}
	for i := range layers {
		layers[i] = NormalizeLayer(layers[i])
	}
	if layers[0] == layers[1] {
		return nil, apperr.Validation(KindAddVia, "layers", "via must span two layers, got %s twice", layers[0])
	}
	if drill.Value <= 0 {
		return nil, apperr.Validation(KindAddVia, "drill", "drill must be positive, got %s", drill.Raw)
	}
	if drill.Value >= size.Value {
		return nil, apperr.Validation(KindAddVia, "drill", "drill %s must be smaller than size %s", drill.Raw, size.Raw)
	}
	if net < 0 {
		return nil, apperr.Validation(KindAddVia, "net", "net number cannot be negative")
	}

	text := fmt.Sprintf("(via (at %s %s) (size %s) (drill %s) (layers %s %s) (net %d) (uuid %s))",
		x.Raw, y.Raw, size.Raw, drill.Raw, sexp.Quote(layers[0]), sexp.Quote(layers[1]), net, sexp.Quote(id))
	params := map[string]any{
		"x": x.Value, "y": y.Value, "size": size.Value, "drill": drill.Value,
		"layers": []any{layers[0], layers[1]}, "net": net, "uuid": id,
	}
	desc := fmt.Sprintf("Add via at (%s,%s) net %d %s->%s", x.Raw, y.Raw, net, layers[0], layers[1])

	return func(d *document.Document) (document.Operation, error) {
		if err := checkNetNumber(KindAddVia, d, net); err != nil {
			return nil, err
		}
		if _, exists := d.Project().Via(id); exists {
			return nil, apperr.Validation(KindAddVia, "uuid", "via %s already exists", id)
		}
		top, err := topOf(KindAddVia, d)
		if err != nil {
			return nil, err
		}
		return newAppendForm(KindAddVia, desc, params, top, text), nil
	}, nil
}

func buildDeleteVia(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindDeleteVia, args)
	id := r.str("uuid")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := checkUUID(KindDeleteVia, "uuid", id); err != nil {
		return nil, err
	}
	return func(d *document.Document) (document.Operation, error) {
		via, ok := d.Project().Via(id)
		if !ok {
			return nil, apperr.Validation(KindDeleteVia, "uuid", "via %q not found", id)
		}
		top, err := topOf(KindDeleteVia, d)
		if err != nil {
			return nil, err
		}
		return newRemoveItem(KindDeleteVia, "Delete via "+shortID(id),
			map[string]any{"uuid": id}, top, via.Node), nil
	}, nil
}

// =============================================================================
// ZONES
// =============================================================================

func buildCreateZone(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindCreateZone, args)
	netName := r.str("net")
	layer := NormalizeLayer(r.str("layer"))
	pts := r.points("points")
	minThickness := r.optNum("min_thickness", 0.25)
	priority := r.optInt("priority", 0)
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(pts) < 3 {
		return nil, apperr.Validation(KindCreateZone, "points", "zone polygon needs at least 3 points, got %d", len(pts))
	}
	if layer == "" {
		return nil, apperr.Validation(KindCreateZone, "layer", "layer cannot be empty")
	}
	if minThickness.Value <= 0 {
		return nil, apperr.Validation(KindCreateZone, "min_thickness", "min_thickness must be positive")
	}
	if priority < 0 {
		return nil, apperr.Validation(KindCreateZone, "priority", "priority cannot be negative")
	}

	return func(d *document.Document) (document.Operation, error) {
		n, err := findNet(KindCreateZone, d, netName)
		if err != nil {
			return nil, err
		}
		top, err := topOf(KindCreateZone, d)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("(zone (net %d) (net_name %s) (layer %s) (uuid %s) (hatch edge 0.5)"+
			" (priority %d) (connect_pads (clearance 0.5)) (min_thickness %s)"+
			" (fill yes (thermal_gap 0.5) (thermal_bridge_width 0.5)) (polygon (pts %s)))",
			n.Number, sexp.Quote(n.Name), sexp.Quote(layer), sexp.Quote(id),
			priority, minThickness.Raw, pointsText(pts))
		params := map[string]any{
			"net": netName, "layer": layer, "points": pointParams(pts),
			"min_thickness": minThickness.Value, "priority": priority, "uuid": id,
		}
		desc := fmt.Sprintf("Create %s zone on %s (%d points)", netName, layer, len(pts))
		return newAppendForm(KindCreateZone, desc, params, top, text), nil
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
