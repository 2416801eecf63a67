package policy

import (
	"strings"
	"testing"

	"github.com/ocx/relay/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// PARSER — atoms, forms, and balanced-delimiter structure
// ============================================================================

func TestParseAtoms(t *testing.T) {
	cases := map[string]expr.Expr{
		"1":            expr.Int(1),
		"-1":           expr.Int(-1),
		"1.5":          expr.Float(1.5),
		"true":         expr.Bool(true),
		"false":        expr.Bool(false),
		`"hi"`:         expr.Str("hi"),
		"subject.role": expr.Ident("subject.role"),
	}
	for src, want := range cases {
		got, err := Parse(src)
		require.NoError(t, err, "parsing %q", src)
		assert.True(t, want.Equal(*got), "parsing %q: got %s", src, got)
	}
}

func TestParseNanPrintsAsNan(t *testing.T) {
	got, err := Parse("nan")
	require.NoError(t, err)
	assert.Equal(t, expr.KindFloat, got.Kind())
	assert.Equal(t, "nan", got.String())
}

func TestParseListAndSeq(t *testing.T) {
	got, err := Parse("(and true false)")
	require.NoError(t, err)
	want := expr.List([]expr.Expr{expr.Ident("and"), expr.Bool(true), expr.Bool(false)})
	assert.True(t, want.Equal(*got))

	got, err = Parse("[1 2 3]")
	require.NoError(t, err)
	want = expr.Seq([]expr.Expr{expr.Int(1), expr.Int(2), expr.Int(3)})
	assert.True(t, want.Equal(*got))
}

func TestParseNestedForms(t *testing.T) {
	got, err := Parse(`(if (= subject.role "admin") (member? resource.tags ["prod"]) false)`)
	require.NoError(t, err)
	assert.Equal(t, expr.KindList, got.Kind())
}

func TestParseMultipleTopLevelExprsWrapIntoOuterList(t *testing.T) {
	got, err := Parse("1 2 3")
	require.NoError(t, err)
	assert.Equal(t, expr.KindList, got.Kind())
	elems, _ := got.AsList()
	require.Len(t, elems, 3)
	assert.True(t, expr.Int(1).Equal(elems[0]))
	assert.True(t, expr.Int(2).Equal(elems[1]))
	assert.True(t, expr.Int(3).Equal(elems[2]))
}

func TestParseEmptyInputIsError(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse("   ; just a comment\n")
	assert.Error(t, err)
}

func TestParseUnbalancedDelimitersFailWithSpecificMessage(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"(1 2", "unclosed '('"},
		{"[1 2", "unclosed '['"},
		{")", "')' without matching '('"},
		{"]", "']' without matching '['"},
		{"(1 2]", "'(' without matching ')'"},
		{"[1 2)", "'[' without matching ']'"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.src)
		require.Error(t, err, "parsing %q", tc.src)
		assert.Contains(t, err.Error(), tc.want, "parsing %q", tc.src)
	}
}

func TestParseInvalidTokenIsError(t *testing.T) {
	_, err := Parse("#garbage")
	assert.Error(t, err)
}

func TestParseRoundTripsThroughString(t *testing.T) {
	srcs := []string{
		"(and true false)",
		"[1 2 3]",
		`(= subject.role "admin")`,
		"(not (member? x [1 2 3]))",
	}
	for _, src := range srcs {
		e, err := Parse(src)
		require.NoError(t, err, "parsing %q", src)
		again, err := Parse(e.String())
		require.NoError(t, err, "re-parsing printed form of %q", src)
		assert.True(t, e.Equal(*again), "round trip mismatch for %q -> %q", src, e.String())
	}
}

// TestParseEvilDeepNestingDoesNotBlowStack feeds the parser a pathologically
// deep nested list — as an attacker controlling policy text might send —
// and checks the explicit-stack parser survives where a recursive-descent
// parser would overflow the goroutine stack.
func TestParseEvilDeepNestingDoesNotBlowStack(t *testing.T) {
	const depth = 20000
	src := strings.Repeat("(", depth) + "1" + strings.Repeat(")", depth)
	var got *expr.Expr
	var err error
	assert.NotPanics(t, func() {
		got, err = Parse(src)
	})
	require.NoError(t, err)
	assert.Equal(t, expr.KindList, got.Kind())
}
