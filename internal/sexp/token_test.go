package sexp

import (
	"testing"

	"boardedit/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeKinds(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("(at 1.5 -2) ; note\n\"a b\"")
	require.NoError(t, err)

	var kinds []TokenKind
	var texts []string
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []TokenKind{
		TokenOpen, TokenAtom, TokenWhitespace, TokenAtom, TokenWhitespace, TokenAtom, TokenClose,
		TokenWhitespace, TokenComment, TokenWhitespace, TokenString,
	}, kinds)
	assert.Equal(t, []string{"(", "at", " ", "1.5", " ", "-2", ")", " ", "; note", "\n", `"a b"`}, texts)
	assert.Equal(t, 19, toks[len(toks)-1].Offset)
}

func TestTokenizeConcatenationIsLossless(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   \t\r\n",
		"(a(b)c)",
		`(s "esc \" q" "\\")`,
		"x;y\n",
		"(a ;c1\n ;c2\n b)",
	}
	for _, in := range inputs {
		toks, err := Tokenize(in)
		require.NoError(t, err, in)
		var got string
		for _, tok := range toks {
			got += tok.Text
		}
		assert.Equal(t, in, got)
	}
}

func TestSemicolonInsideAtomIsNotAComment(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("a;b")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, TokenAtom, toks[0].Kind)
	assert.Equal(t, "a;b", toks[0].Text)
}

func TestLexerErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		in     string
		offset int
	}{
		{"unterminated string", `(a "abc`, 3},
		{"escape at end", `"abc\`, 0},
		{"nul at top level", "\x00", 0},
		{"nul in atom", "ab\x00", 2},
		{"nul in string", "\"a\x00\"", 2},
		{"escaped nul in string", "\"x\\\x00y\"", 3},
		{"nul in comment", "; a\x00", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Tokenize(tc.in)
			require.ErrorIs(t, err, apperr.ErrSyntax)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.offset, e.Offset)
		})
	}
}

func TestQuoteUnquote(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "plain", "with space", `q"uote`, `back\slash`, "line\nbreak", "tab\there"} {
		assert.Equal(t, s, Unquote(Quote(s)), s)
	}
	assert.Equal(t, "R1", QuoteIfNeeded("R1"))
	assert.Equal(t, `"F.Cu pad"`, QuoteIfNeeded("F.Cu pad"))
	assert.Equal(t, `""`, QuoteIfNeeded(""))
	assert.Equal(t, `";x"`, QuoteIfNeeded(";x"))
	assert.Equal(t, "unquoted", Unquote("unquoted"))
}
