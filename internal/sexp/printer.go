package sexp

import (
	"io"
	"strings"
)

// Print serializes the tree. Untouched nodes reproduce their source bytes;
// inserted nodes carry the trivia the edit assigned them.
func Print(t *Tree) string {
	var b strings.Builder
	b.Grow(t.SourceLen)
	_ = t.writeNode(&b, t.root, true)
	return b.String()
}

// WriteTo streams the printed tree to w.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := t.writeNode(cw, t.root, true)
	return cw.n, err
}

// Text prints the subtree rooted at id without its own leading trivia. It is
// used for descriptions and snapshots of single forms.
func (t *Tree) Text(id NodeID) string {
	var b strings.Builder
	_ = t.writeNode(&b, id, false)
	s := b.String()
	if n := t.Node(id); n != nil {
		s = strings.TrimPrefix(s, n.Leading)
	}
	return s
}

type stringWriter interface {
	io.Writer
	WriteString(s string) (int, error)
}

// writeNode emits id and its descendants. bare suppresses the parentheses
// of the starting list, which is how the synthetic root prints.
func (t *Tree) writeNode(w stringWriter, id NodeID, bare bool) error {
	type frame struct {
		id   NodeID
		next int
		bare bool
	}

	stack := []frame{{id: id, next: -1, bare: bare}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		n := t.Node(f.id)
		if n == nil {
			stack = stack[:len(stack)-1]
			continue
		}

		if f.next == -1 {
			if _, err := w.WriteString(n.Leading); err != nil {
				return err
			}
			if n.IsAtomic() {
				if _, err := w.WriteString(n.Raw); err != nil {
					return err
				}
				stack = stack[:len(stack)-1]
				continue
			}
			if !f.bare {
				if _, err := w.WriteString("("); err != nil {
					return err
				}
			}
			f.next = 0
		}

		if f.next < len(n.Children) {
			child := n.Children[f.next]
			f.next++
			stack = append(stack, frame{id: child, next: -1})
			continue
		}

		if _, err := w.WriteString(n.Closing); err != nil {
			return err
		}
		if !f.bare {
			if _, err := w.WriteString(")"); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}
