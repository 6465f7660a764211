package sexp

import (
	"fmt"

	"boardedit/internal/apperr"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenAtom       TokenKind = iota // unquoted run
	TokenString                      // double-quoted string, raw text includes quotes
	TokenOpen                        // (
	TokenClose                       // )
	TokenComment                     // ; to end of line, newline excluded
	TokenWhitespace                  // space, tab, CR, LF
	TokenEOF
)

var tokenKindNames = [...]string{"atom", "string", "open", "close", "comment", "whitespace", "eof"}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// IsTrivia reports whether tokens of this kind carry no structure.
func (k TokenKind) IsTrivia() bool {
	return k == TokenComment || k == TokenWhitespace
}

// Token is one lexical unit. Concatenating the Text of every token returned
// by a Lexer reproduces the input exactly.
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
}

// CommentPrefix starts a comment when it appears at a token boundary.
const CommentPrefix = ';'

// Lexer splits S-expression text into a loss-less token stream.
type Lexer struct {
	src string
	pos int
}

// NewLexer returns a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDelimiter(c byte) bool {
	return isSpace(c) || c == '(' || c == ')' || c == '"'
}

// Next returns the next token. At end of input it returns a TokenEOF token
// whose Offset is len(src).
func (l *Lexer) Next() (Token, error) {
	if l.pos >= len(l.src) {
		return Token{Kind: TokenEOF, Offset: len(l.src)}, nil
	}

	start := l.pos
	c := l.src[start]
	switch {
	case c == 0:
		return Token{}, apperr.Syntax(start, "embedded NUL byte")
	case c == '(':
		l.pos++
		return Token{Kind: TokenOpen, Text: "(", Offset: start}, nil
	case c == ')':
		l.pos++
		return Token{Kind: TokenClose, Text: ")", Offset: start}, nil
	case isSpace(c):
		for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
			l.pos++
		}
		return Token{Kind: TokenWhitespace, Text: l.src[start:l.pos], Offset: start}, nil
	case c == CommentPrefix:
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			if l.src[l.pos] == 0 {
				return Token{}, apperr.Syntax(l.pos, "embedded NUL byte")
			}
			l.pos++
		}
		return Token{Kind: TokenComment, Text: l.src[start:l.pos], Offset: start}, nil
	case c == '"':
		return l.lexString(start)
	default:
		for l.pos < len(l.src) && !isDelimiter(l.src[l.pos]) {
			if l.src[l.pos] == 0 {
				return Token{}, apperr.Syntax(l.pos, "embedded NUL byte")
			}
			l.pos++
		}
		return Token{Kind: TokenAtom, Text: l.src[start:l.pos], Offset: start}, nil
	}
}

func (l *Lexer) lexString(start int) (Token, error) {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case 0:
			return Token{}, apperr.Syntax(l.pos, "embedded NUL byte")
		case '\\':
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == 0 {
				return Token{}, apperr.Syntax(l.pos+1, "embedded NUL byte")
			}
			l.pos += 2
		case '"':
			l.pos++
			return Token{Kind: TokenString, Text: l.src[start:l.pos], Offset: start}, nil
		default:
			l.pos++
		}
	}
	return Token{}, apperr.Syntax(start, "unterminated string")
}

// Tokenize lexes all of src. It is mostly useful for tests and tooling; the
// parser pulls tokens one at a time.
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		t, err := l.Next()
		if err != nil {
			return nil, err
		}
		if t.Kind == TokenEOF {
			return toks, nil
		}
		toks = append(toks, t)
	}
}

// Unquote decodes the raw text of a string token. A backslash escapes the
// byte that follows it; the common \n, \t and \r escapes decode to control
// characters.
func Unquote(raw string) string {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return raw
	}
	body := raw[1 : len(raw)-1]
	if !containsByte(body, '\\') {
		return body
	}
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			out = append(out, c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		default:
			out = append(out, body[i])
		}
	}
	return string(out)
}

// Quote renders s as a string token.
func Quote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\t':
			out = append(out, '\\', 't')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	out = append(out, '"')
	return string(out)
}

// QuoteIfNeeded renders s as a bare atom when it is one, else quotes it.
func QuoteIfNeeded(s string) string {
	if s == "" || s[0] == CommentPrefix {
		return Quote(s)
	}
	for i := 0; i < len(s); i++ {
		if isDelimiter(s[i]) || s[i] == '\\' || s[i] == 0 {
			return Quote(s)
		}
	}
	return s
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
