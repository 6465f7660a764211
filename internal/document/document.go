// Package document wraps one parsed S-expression tree with its file identity,
// a lazily built typed projection, and the mutate/revert protocol that
// operations use.
package document

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unicode/utf8"

	"boardedit/internal/apperr"
	"boardedit/internal/logging"
	"boardedit/internal/sexp"

	"github.com/cespare/xxhash/v2"
)

// Operation is a bound, reversible mutation. Logical references (a
// component's reference designator, a net name) have already been resolved
// to node ids when an Operation exists; Apply never searches by name.
type Operation interface {
	// Kind is the catalog name, e.g. "move_component".
	Kind() string
	// Describe is a one-line human description.
	Describe() string
	// Targets lists the node ids the operation was bound to.
	Targets() []sexp.NodeID
	// Params returns the replayable parameters of the operation.
	Params() map[string]any
	// Apply performs the edit through e. It returns a symmetric inverse
	// (the same kind parameterized with the old values) when the edit was a
	// pure field update, or nil to have the edit's snapshot used instead.
	// On error the caller aborts e, so Apply may fail at any point.
	Apply(e *sexp.Edit) (Operation, error)
}

// Binder resolves logical references against a document and returns the
// bound Operation. Binding failures are validation errors.
type Binder func(d *Document) (Operation, error)

// Strategy names how an inverse was captured.
type Strategy string

const (
	StrategySnapshot  Strategy = "snapshot"
	StrategySymmetric Strategy = "symmetric"
)

// Inverse is the data needed to undo one applied Operation.
type Inverse struct {
	Strategy Strategy
	Snapshot *sexp.Snapshot
	Op       Operation
}

// Document owns one working tree.
type Document struct {
	path        string
	tree        *sexp.Tree
	view        *View
	dirty       bool
	fingerprint uint64
	indentUnit  string
}

// Option configures a Document.
type Option func(*Document)

// WithIndentUnit sets the indentation added for inserted forms that have no
// sibling to copy indentation from.
func WithIndentUnit(unit string) Option {
	return func(d *Document) {
		if unit != "" {
			d.indentUnit = unit
		}
	}
}

// Open reads and parses path.
func Open(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("open", path, err)
		}
		return nil, apperr.IO("open", path, err)
	}
	return Parse(path, data, opts...)
}

// Parse builds a document from file contents already in memory.
func Parse(path string, data []byte, opts ...Option) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryParse, "parse "+path)
	defer timer.Stop()

	if !utf8.Valid(data) {
		return nil, apperr.Syntax(firstInvalidUTF8(data), "invalid UTF-8").WithPath(path)
	}
	tree, err := sexp.Parse(string(data))
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	for _, diag := range tree.Diagnostics {
		logging.ParseDebug("%s: %s", path, diag.Message)
	}

	d := &Document{
		path:        path,
		tree:        tree,
		fingerprint: xxhash.Sum64(data),
		indentUnit:  sexp.DefaultIndentUnit,
	}
	for _, opt := range opts {
		opt(d)
	}
	logging.ParseDebug("parsed %s: %d bytes, %d nodes", path, len(data), tree.Len())
	return d, nil
}

func firstInvalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return 0
}

// Path is the file the document was opened from.
func (d *Document) Path() string { return d.path }

// Tree exposes the parse tree for reads. Writes must go through Mutate.
func (d *Document) Tree() *sexp.Tree { return d.tree }

// Dirty reports whether the document was mutated since it was opened.
func (d *Document) Dirty() bool { return d.dirty }

// Fingerprint is the xxhash of the bytes the document was parsed from.
func (d *Document) Fingerprint() uint64 { return d.fingerprint }

// Text prints the document.
func (d *Document) Text() string { return sexp.Print(d.tree) }

// Clone returns an independent working copy. The copy shares node records
// with d until either side writes them.
func (d *Document) Clone() *Document {
	return &Document{
		path:        d.path,
		tree:        d.tree.Clone(),
		view:        d.view,
		dirty:       d.dirty,
		fingerprint: d.fingerprint,
		indentUnit:  d.indentUnit,
	}
}

// Top returns the first top-level list, e.g. (kicad_pcb ...).
func (d *Document) Top() sexp.NodeID {
	root := d.tree.Node(d.tree.Root())
	for _, c := range root.Children {
		if d.tree.Node(c).IsList() {
			return c
		}
	}
	return sexp.NoNode
}

// FindNode returns the first node in depth-first document order matching
// pred. It is meant for binding logical references once; replays use the
// returned id.
func (d *Document) FindNode(pred func(t *sexp.Tree, n *sexp.Node) bool) (sexp.NodeID, bool) {
	return d.tree.Find(pred)
}

// Mutate applies op. On any failure, panics included, the tree is left
// exactly as it was. On success the projection cache is dropped and the
// inverse is returned.
func (d *Document) Mutate(op Operation) (inv Inverse, err error) {
	e := d.tree.Begin()
	e.IndentUnit = d.indentUnit

	defer func() {
		if r := recover(); r != nil {
			e.Abort()
			panic(r)
		}
	}()

	sym, err := op.Apply(e)
	if err != nil {
		e.Abort()
		if ae, ok := apperr.As(err); ok && ae.Op == "edit" {
			c := *ae
			c.Op = op.Kind()
			err = &c
		}
		return Inverse{}, err
	}

	d.view = nil
	d.dirty = true
	logging.DocumentDebug("%s: %s (%d records)", op.Kind(), op.Describe(), e.Snapshot().Size())
	if sym != nil {
		return Inverse{Strategy: StrategySymmetric, Op: sym}, nil
	}
	return Inverse{Strategy: StrategySnapshot, Snapshot: e.Snapshot()}, nil
}

// Revert applies a captured inverse.
func (d *Document) Revert(inv Inverse) error {
	switch inv.Strategy {
	case StrategySymmetric:
		if inv.Op == nil {
			return fmt.Errorf("symmetric inverse without an operation")
		}
		if _, err := d.Mutate(inv.Op); err != nil {
			return fmt.Errorf("revert %s: %w", inv.Op.Kind(), err)
		}
	case StrategySnapshot:
		d.tree.Restore(inv.Snapshot)
		d.view = nil
		d.dirty = true
	default:
		return fmt.Errorf("unknown inverse strategy %q", inv.Strategy)
	}
	return nil
}
