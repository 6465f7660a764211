package ops

import (
	"fmt"
	"math"
	"strconv"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"
)

// replaceOutline swaps the Edge.Cuts lines and rectangles of the board for
// a closed run of gr_line segments.
type replaceOutline struct {
	base
	top     sexp.NodeID
	removed []sexp.NodeID
	lines   []string
}

// outlineItems lists the top-level gr_line and gr_rect forms on Edge.Cuts.
func outlineItems(t *sexp.Tree, top sexp.NodeID) []sexp.NodeID {
	var out []sexp.NodeID
	for _, c := range t.Node(top).Children {
		switch t.Head(c) {
		case "gr_line", "gr_rect":
			if t.FirstArg(t.Child(c, "layer")) == "Edge.Cuts" {
				out = append(out, c)
			}
		}
	}
	return out
}

func outlineLines(pts []document.Point, seed string) []string {
	lines := make([]string, len(pts))
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		lines[i] = fmt.Sprintf("(gr_line (start %s %s) (end %s %s) (stroke (width 0.05) (type default)) (layer \"Edge.Cuts\") (uuid %s))",
			FormatNumber(p.X), FormatNumber(p.Y), FormatNumber(q.X), FormatNumber(q.Y),
			sexp.Quote(derivedUUID(seed, "edge-"+strconv.Itoa(i))))
	}
	return lines
}

func bindOutline(kind, desc string, params map[string]any, lines []string) document.Binder {
	return func(d *document.Document) (document.Operation, error) {
		top, err := topOf(kind, d)
		if err != nil {
			return nil, err
		}
		removed := outlineItems(d.Tree(), top)
		return &replaceOutline{
			base:    newBase(kind, desc, params, append([]sexp.NodeID{top}, removed...)...),
			top:     top,
			removed: removed,
			lines:   lines,
		}, nil
	}
}

func (o *replaceOutline) Apply(e *sexp.Edit) (document.Operation, error) {
	t := e.Tree()
	if err := requireLive(o.kind, t, o.top); err != nil {
		return nil, err
	}
	if err := requireLive(o.kind, t, o.removed...); err != nil {
		return nil, err
	}
	for _, id := range o.removed {
		if err := e.Remove(o.top, id); err != nil {
			return nil, err
		}
	}
	for _, line := range o.lines {
		if _, err := e.AppendForm(o.top, line); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func buildSetBoardSize(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindSetBoardSize, args)
	w := r.num("width")
	h := r.num("height")
	seed := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if w.Value <= 0 {
		return nil, apperr.Validation(KindSetBoardSize, "width", "width must be positive, got %s", w.Raw)
	}
	if h.Value <= 0 {
		return nil, apperr.Validation(KindSetBoardSize, "height", "height must be positive, got %s", h.Raw)
	}
	pts := []document.Point{{X: 0, Y: 0}, {X: w.Value, Y: 0}, {X: w.Value, Y: h.Value}, {X: 0, Y: h.Value}}
	return bindOutline(KindSetBoardSize,
		fmt.Sprintf("Set board size to %sx%smm", w.Raw, h.Raw),
		map[string]any{"width": w.Value, "height": h.Value, "uuid": seed},
		outlineLines(pts, seed)), nil
}

func buildSetBoardOutline(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindSetBoardOutline, args)
	pts := r.points("points")
	seed := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(pts) < 3 {
		return nil, apperr.Validation(KindSetBoardOutline, "points", "outline needs at least 3 points, got %d", len(pts))
	}
	return bindOutline(KindSetBoardOutline,
		fmt.Sprintf("Set board outline with %d points", len(pts)),
		map[string]any{"points": pointParams(pts), "uuid": seed},
		outlineLines(pts, seed)), nil
}

func buildAddBoardText(args map[string]any) (document.Binder, error) {
	r := newArgReader(KindAddBoardText, args)
	text := r.str("text")
	x := r.num("x")
	y := r.num("y")
	layer := NormalizeLayer(r.optStr("layer", "F.SilkS"))
	size := r.optNum("size", 1.0)
	angle := r.optNum("angle", 0)
	id := uuidArg(r)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, apperr.Validation(KindAddBoardText, "text", "text cannot be empty")
	}
	if size.Value <= 0 {
		return nil, apperr.Validation(KindAddBoardText, "size", "size must be positive, got %s", size.Raw)
	}

	at := x.Raw + " " + y.Raw
	if angle.Value != 0 {
		at += " " + angle.Raw
	}
	thickness := NewNumber(math.Round(size.Value*0.15*1e6) / 1e6)
	form := fmt.Sprintf("(gr_text %s (at %s) (layer %s) (uuid %s) (effects (font (size %s %s) (thickness %s))))",
		sexp.Quote(text), at, sexp.Quote(layer), sexp.Quote(id), size.Raw, size.Raw, thickness.Raw)
	params := map[string]any{
		"text": text, "x": x.Value, "y": y.Value, "layer": layer,
		"size": size.Value, "angle": angle.Value, "uuid": id,
	}
	desc := fmt.Sprintf("Add text %q at (%s, %s) on %s", text, x.Raw, y.Raw, layer)

	return func(d *document.Document) (document.Operation, error) {
		top, err := topOf(KindAddBoardText, d)
		if err != nil {
			return nil, err
		}
		return newAppendForm(KindAddBoardText, desc, params, top, form), nil
	}, nil
}
