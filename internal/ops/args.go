package ops

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
)

// argReader decodes loosely typed parameters (from yaml scripts, JSON
// events or Go callers) with a sticky first error.
type argReader struct {
	op   string
	args map[string]any
	err  error
}

func newArgReader(op string, args map[string]any) *argReader {
	if args == nil {
		args = map[string]any{}
	}
	return &argReader{op: op, args: args}
}

// Err returns the first decoding error.
func (r *argReader) Err() error { return r.err }

func (r *argReader) fail(param string, cause error, format string, a ...any) {
	if r.err != nil {
		return
	}
	e := apperr.Validation(r.op, param, format, a...)
	e.Err = cause
	r.err = e
}

func (r *argReader) lookup(name string, required bool) (any, bool) {
	v, ok := r.args[name]
	if !ok || v == nil {
		if required {
			r.fail(name, ErrMissingRequiredArg, "missing required argument %q", name)
		}
		return nil, false
	}
	return v, true
}

func (r *argReader) str(name string) string {
	v, ok := r.lookup(name, true)
	if !ok {
		return ""
	}
	return r.toString(name, v)
}

func (r *argReader) optStr(name, def string) string {
	v, ok := r.lookup(name, false)
	if !ok {
		return def
	}
	return r.toString(name, v)
}

func (r *argReader) toString(name string, v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int, int64, float64, uint64:
		return fmt.Sprint(s)
	default:
		r.fail(name, ErrInvalidArgType, "argument %q must be a string, got %T", name, v)
		return ""
	}
}

func (r *argReader) num(name string) Number {
	v, ok := r.lookup(name, true)
	if !ok {
		return Number{}
	}
	return r.toNumber(name, v)
}

func (r *argReader) optNum(name string, def float64) Number {
	v, ok := r.lookup(name, false)
	if !ok {
		return NewNumber(def)
	}
	return r.toNumber(name, v)
}

func (r *argReader) toNumber(name string, v any) Number {
	n, err := numberFrom(v)
	if err != nil {
		r.fail(name, ErrInvalidArgType, "argument %q: %v", name, err)
		return Number{}
	}
	return n
}

func (r *argReader) integer(name string) int {
	n := r.num(name)
	return r.toInt(name, n)
}

func (r *argReader) optInt(name string, def int) int {
	if _, ok := r.lookup(name, false); !ok {
		return def
	}
	return r.toInt(name, r.num(name))
}

func (r *argReader) toInt(name string, n Number) int {
	if r.err != nil {
		return 0
	}
	if n.Value != math.Trunc(n.Value) {
		r.fail(name, ErrInvalidArgType, "argument %q must be an integer, got %s", name, n.Raw)
		return 0
	}
	return int(n.Value)
}

func (r *argReader) points(name string) []document.Point {
	v, ok := r.lookup(name, true)
	if !ok {
		return nil
	}
	switch pts := v.(type) {
	case []document.Point:
		return append([]document.Point(nil), pts...)
	case [][2]float64:
		out := make([]document.Point, len(pts))
		for i, p := range pts {
			out[i] = document.Point{X: p[0], Y: p[1]}
		}
		return out
	case []any:
		out := make([]document.Point, 0, len(pts))
		for i, raw := range pts {
			p, err := pointFrom(raw)
			if err != nil {
				r.fail(name, ErrInvalidArgType, "argument %q point %d: %v", name, i, err)
				return nil
			}
			out = append(out, p)
		}
		return out
	default:
		r.fail(name, ErrInvalidArgType, "argument %q must be a list of points, got %T", name, v)
		return nil
	}
}

func (r *argReader) strList(name string) []string {
	v, ok := r.lookup(name, false)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, r.toString(name, item))
		}
		return out
	case string:
		return strings.Fields(s)
	default:
		r.fail(name, ErrInvalidArgType, "argument %q must be a list of strings, got %T", name, v)
		return nil
	}
}

// object reads a required map argument such as {MPN: X1, Value: 10k}.
func (r *argReader) object(name string) map[string]any {
	v, ok := r.lookup(name, true)
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, f := range m {
			out[k] = f
		}
		return out
	default:
		r.fail(name, ErrInvalidArgType, "argument %q must be a mapping, got %T", name, v)
		return nil
	}
}

func (r *argReader) strMap(name string) map[string]string {
	m := r.object(name)
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = r.toString(name+"."+k, v)
	}
	return out
}

func (r *argReader) numMap(name string) map[string]Number {
	m := r.object(name)
	out := make(map[string]Number, len(m))
	for k, v := range m {
		out[k] = r.toNumber(name+"."+k, v)
	}
	return out
}

func pointFrom(v any) (document.Point, error) {
	switch p := v.(type) {
	case []any:
		if len(p) != 2 {
			return document.Point{}, fmt.Errorf("want [x, y], got %d values", len(p))
		}
		x, err := numberFrom(p[0])
		if err != nil {
			return document.Point{}, err
		}
		y, err := numberFrom(p[1])
		if err != nil {
			return document.Point{}, err
		}
		return document.Point{X: x.Value, Y: y.Value}, nil
	case map[string]any:
		x, err := numberFrom(p["x"])
		if err != nil {
			return document.Point{}, fmt.Errorf("x: %w", err)
		}
		y, err := numberFrom(p["y"])
		if err != nil {
			return document.Point{}, fmt.Errorf("y: %w", err)
		}
		return document.Point{X: x.Value, Y: y.Value}, nil
	case document.Point:
		return p, nil
	default:
		return document.Point{}, fmt.Errorf("unsupported point %T", v)
	}
}

// =============================================================================
// NUMBERS
// =============================================================================

// Number is a numeric parameter with the exact spelling it is written with.
// Symmetric inverses carry the old spelling so an undo puts back the
// original bytes, "10.50" included.
type Number struct {
	Value float64
	Raw   string
}

// NewNumber formats f in the shortest form that parses back to f.
func NewNumber(f float64) Number {
	return Number{Value: f, Raw: FormatNumber(f)}
}

// FormatNumber renders f without exponent or trailing zeros.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseNumber reads an atom spelling.
func ParseNumber(raw string) (Number, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Number{}, fmt.Errorf("%q is not a number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}, fmt.Errorf("%q is not a finite number", raw)
	}
	return Number{Value: f, Raw: raw}, nil
}

func numberFrom(v any) (Number, error) {
	switch n := v.(type) {
	case Number:
		return n, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Number{}, fmt.Errorf("%v is not a finite number", n)
		}
		return NewNumber(n), nil
	case float32:
		return numberFrom(float64(n))
	case int:
		return NewNumber(float64(n)), nil
	case int64:
		return NewNumber(float64(n)), nil
	case uint64:
		return NewNumber(float64(n)), nil
	case string:
		parsed, err := ParseNumber(strings.TrimSpace(n))
		if err != nil {
			return Number{}, err
		}
		return NewNumber(parsed.Value), nil
	case nil:
		return Number{}, fmt.Errorf("missing number")
	default:
		return Number{}, fmt.Errorf("%T is not a number", v)
	}
}
