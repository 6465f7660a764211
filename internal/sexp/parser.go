package sexp

import (
	"strings"

	"boardedit/internal/apperr"
)

// Parse builds a tree from text. Whitespace and comments are kept verbatim as
// the leading trivia of the next sibling, or as the closing trivia of the
// enclosing list when no sibling follows, so Print(Parse(text)) == text.
//
// Empty input yields a tree whose root has no children. Unmatched
// parentheses, unterminated strings and NUL bytes fail with a syntax error
// carrying the byte offset.
func Parse(text string) (*Tree, error) {
	t := newTree()
	t.SourceLen = len(text)
	if err := t.parseInto(t.root, text, 0); err != nil {
		return nil, err
	}
	t.diagnose()
	return t, nil
}

// parseInto appends the forms of text to the list parent. offsetBase is
// added to reported offsets. The parser keeps an explicit stack of open
// lists instead of recursing.
func (t *Tree) parseInto(parent NodeID, text string, offsetBase int) error {
	type frame struct {
		id     NodeID
		offset int
	}

	lex := NewLexer(text)
	stack := []frame{{id: parent, offset: -1}}
	var trivia strings.Builder

	takeTrivia := func() string {
		s := trivia.String()
		trivia.Reset()
		return s
	}
	appendChild := func(n *Node) {
		top := t.nodes[stack[len(stack)-1].id]
		top.Children = append(top.Children, n.ID)
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			if e, ok := apperr.As(err); ok && e.Offset >= 0 {
				e.Offset += offsetBase
			}
			return err
		}

		switch tok.Kind {
		case TokenWhitespace, TokenComment:
			trivia.WriteString(tok.Text)

		case TokenAtom, TokenString:
			n := t.newNode(KindAtom)
			n.Raw = tok.Text
			n.Value = tok.Text
			if tok.Kind == TokenString {
				n.Kind = KindString
				n.Value = Unquote(tok.Text)
			}
			n.Leading = takeTrivia()
			appendChild(n)

		case TokenOpen:
			n := t.newNode(KindList)
			n.Leading = takeTrivia()
			appendChild(n)
			stack = append(stack, frame{id: n.ID, offset: tok.Offset})

		case TokenClose:
			if len(stack) == 1 {
				return apperr.Syntax(offsetBase+tok.Offset, "unexpected ')'")
			}
			top := t.nodes[stack[len(stack)-1].id]
			top.Closing = takeTrivia()
			stack = stack[:len(stack)-1]

		case TokenEOF:
			if len(stack) > 1 {
				open := stack[len(stack)-1]
				return apperr.Syntax(offsetBase+open.offset, "unclosed '(' (%d list(s) open at end of input)", len(stack)-1)
			}
			root := t.nodes[parent]
			root.Closing += takeTrivia()
			return nil
		}
	}
}

func (t *Tree) diagnose() {
	root := t.Node(t.root)
	lists := 0
	for _, c := range root.Children {
		n := t.Node(c)
		if n.IsList() {
			lists++
			continue
		}
		t.Diagnostics = append(t.Diagnostics, Diagnostic{
			Offset:  -1,
			Message: "top-level " + n.Kind.String() + " " + n.Raw + " outside any list",
		})
	}
	if lists > 1 {
		t.Diagnostics = append(t.Diagnostics, Diagnostic{
			Offset:  -1,
			Message: "multiple top-level forms",
		})
	}
}

// parseFragment parses text as a detached list of forms in this tree's id
// space and returns the ids of the top-level forms. The fragment nodes are
// registered in the arena but not linked under any parent; callers attach
// them through an Edit.
func (t *Tree) parseFragment(text string) ([]NodeID, error) {
	holder := t.newNode(KindList)
	if err := t.parseInto(holder.ID, text, 0); err != nil {
		t.dropSubtree(holder.ID)
		return nil, err
	}
	ids := holder.Children
	t.nodes[holder.ID] = nil
	return ids, nil
}

func (t *Tree) dropSubtree(id NodeID) {
	for _, d := range t.Subtree(id) {
		t.nodes[d] = nil
	}
}
