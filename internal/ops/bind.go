package ops

import (
	"fmt"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/sexp"

	"github.com/google/uuid"
)

const (
	maxReferenceLen = 32
	maxUUIDLen      = 36
)

// base carries what every bound operation reports about itself.
type base struct {
	kind    string
	desc    string
	targets []sexp.NodeID
	params  map[string]any
}

func (b *base) Kind() string { return b.kind }
func (b *base) Describe() string { return b.desc }
func (b *base) Targets() []sexp.NodeID { return append([]sexp.NodeID(nil), b.targets...) }
func (b *base) Params() map[string]any {
	out := make(map[string]any, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

func newBase(kind, desc string, params map[string]any, targets ...sexp.NodeID) base {
	return base{kind: kind, desc: desc, targets: targets, params: params}
}

func newUUID() string { return uuid.NewString() }

// uuidArg returns the "uuid" argument, generating one when absent. New items
// get their uuid when the operation is built, so replaying its parameters
// produces the same bytes.
func uuidArg(r *argReader) string {
	id := r.optStr("uuid", "")
	if id == "" {
		return newUUID()
	}
	if err := checkUUID(r.op, "uuid", id); err != nil && r.err == nil {
		r.err = err
	}
	return id
}

// derivedUUID names a sub-item of seed deterministically.
func derivedUUID(seed, part string) string {
	ns, err := uuid.Parse(seed)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed))
	}
	return uuid.NewSHA1(ns, []byte(part)).String()
}

// =============================================================================
// BIND-TIME LOOKUPS
// =============================================================================

func checkReference(op, ref string) error {
	if ref == "" {
		return apperr.Validation(op, "reference", "reference designator cannot be empty")
	}
	if len(ref) > maxReferenceLen {
		return apperr.Validation(op, "reference", "reference designator too long: %q", ref)
	}
	return nil
}

func checkUUID(op, param, id string) error {
	if id == "" {
		return apperr.Validation(op, param, "uuid cannot be empty")
	}
	if len(id) > maxUUIDLen {
		return apperr.Validation(op, param, "uuid too long: %q", id)
	}
	return nil
}

func topOf(op string, d *document.Document) (sexp.NodeID, error) {
	top := d.Top()
	if top == sexp.NoNode {
		return sexp.NoNode, apperr.Validation(op, "", "document has no top-level form")
	}
	return top, nil
}

func findComponent(op string, d *document.Document, ref string) (sexp.NodeID, error) {
	if err := checkReference(op, ref); err != nil {
		return sexp.NoNode, err
	}
	id, ok := d.Project().ComponentNode(ref)
	if !ok {
		return sexp.NoNode, apperr.Validation(op, "reference", "component %q not found", ref)
	}
	return id, nil
}

func findNet(op string, d *document.Document, name string) (document.Net, error) {
	if name == "" {
		return document.Net{}, apperr.Validation(op, "net", "net name cannot be empty")
	}
	n, ok := d.Project().Net(name)
	if !ok {
		return document.Net{}, apperr.Validation(op, "net", "net %q not found on the board", name)
	}
	return n, nil
}

// checkNetNumber accepts any number on boards without a net table.
func checkNetNumber(op string, d *document.Document, num int) error {
	v := d.Project()
	if len(v.Nets()) == 0 {
		return nil
	}
	if _, ok := v.NetByNumber(num); !ok {
		return apperr.Validation(op, "net", "net %d not declared", num)
	}
	return nil
}

// =============================================================================
// APPLY-TIME HELPERS
// =============================================================================

func requireLive(op string, t *sexp.Tree, ids ...sexp.NodeID) error {
	for _, id := range ids {
		if !t.Has(id) {
			return apperr.ValidationAt(op, uint64(id), "target node %d no longer exists", id)
		}
	}
	return nil
}

// atArgs returns the argument atoms of the (at ...) child of id.
func atArgs(op string, t *sexp.Tree, id sexp.NodeID) (sexp.NodeID, []sexp.NodeID, error) {
	at := t.Child(id, "at")
	if at == sexp.NoNode {
		return sexp.NoNode, nil, apperr.ValidationAt(op, uint64(id), "component has no position")
	}
	args := t.Args(at)
	if len(args) < 2 {
		return sexp.NoNode, nil, apperr.ValidationAt(op, uint64(at), "position needs x and y")
	}
	return at, args, nil
}

// numberAt reads an atom as a Number, keeping its spelling even when it
// does not parse.
func numberAt(t *sexp.Tree, id sexp.NodeID) Number {
	n := t.Node(id)
	if n.Kind == sexp.KindString {
		return Number{Value: parseOr(n.Value), Raw: n.Raw}
	}
	if parsed, err := ParseNumber(n.Raw); err == nil {
		return parsed
	}
	return Number{Raw: n.Raw}
}

func parseOr(s string) float64 {
	n, err := ParseNumber(s)
	if err != nil {
		return 0
	}
	return n.Value
}

func firstArgNode(t *sexp.Tree, id sexp.NodeID) sexp.NodeID {
	args := t.Args(id)
	if len(args) == 0 {
		return sexp.NoNode
	}
	return args[0]
}

func pointsText(pts []document.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("(xy %s %s)", FormatNumber(p.X), FormatNumber(p.Y))
	}
	return strings.Join(parts, " ")
}

func pointParams(pts []document.Point) []any {
	out := make([]any, len(pts))
	for i, p := range pts {
		out[i] = []any{p.X, p.Y}
	}
	return out
}
