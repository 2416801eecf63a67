package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// LEXER — token shapes
// ============================================================================

func lexAll(t *testing.T, src string) []token {
	t.Helper()
	lx := newLexer(src)
	var toks []token
	for {
		tok, err := lx.next()
		require.NoError(t, err, "lexing %q", src)
		if tok.kind == tokEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestLexerScansIntsBetweenWhitespaceAndComments(t *testing.T) {
	toks := lexAll(t, "  1 ; comment\n2 /* block */ 3")
	var kinds []tokenKind
	for _, tk := range toks {
		kinds = append(kinds, tk.kind)
	}
	assert.Contains(t, kinds, tokInt)
}

func TestLexerStringEscapes(t *testing.T) {
	lx := newLexer(`"a\nb\t\"c\""`)
	tok, err := lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokString, tok.kind)
	assert.Equal(t, "a\nb\t\"c\"", tok.str)
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	lx := newLexer(`"unterminated`)
	_, err := lx.next()
	assert.Error(t, err)
}

func TestLexerNumbers(t *testing.T) {
	lx := newLexer("42")
	tok, err := lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokInt, tok.kind)
	assert.EqualValues(t, 42, tok.i)

	lx = newLexer("3.25")
	tok, err = lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokFloat, tok.kind)
	assert.InDelta(t, 3.25, tok.f, 1e-9)

	lx = newLexer("0x1F")
	tok, err = lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokInt, tok.kind)
	assert.EqualValues(t, 31, tok.i)
}

func TestLexerInfinities(t *testing.T) {
	lx := newLexer("+inf")
	tok, err := lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokFloat, tok.kind)
	assert.True(t, tok.f > 0 && tok.f*2 == tok.f, "+inf should be +Inf")

	lx = newLexer("-inf")
	tok, err = lx.next()
	require.NoError(t, err)
	assert.True(t, tok.f < 0 && tok.f*2 == tok.f, "-inf should be -Inf")
}

func TestLexerIdentifierGrammar(t *testing.T) {
	valid := []string{"subject.role", "resource-tag", "a?", "a!", "x_y", "*special*"}
	for _, s := range valid {
		lx := newLexer(s)
		tok, err := lx.next()
		require.NoError(t, err, "lexing %q", s)
		assert.Equal(t, tokIdent, tok.kind, "%q should lex as an identifier", s)
	}
}

func TestLexerInvalidTokenErrors(t *testing.T) {
	lx := newLexer("#bad")
	_, err := lx.next()
	assert.Error(t, err)
}
