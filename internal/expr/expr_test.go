package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// CONSTRUCTOR / ACCESSOR TESTS
// ============================================================================

func TestConstructorsRoundTripKind(t *testing.T) {
	assert.Equal(t, KindStr, Str("x").Kind())
	assert.Equal(t, KindInt, Int(1).Kind())
	assert.Equal(t, KindFloat, Float(1.5).Kind())
	assert.Equal(t, KindBool, Bool(true).Kind())
	assert.Equal(t, KindIdent, Ident("subject.role").Kind())
	assert.Equal(t, KindSeq, Seq([]Expr{Int(1)}).Kind())
	assert.Equal(t, KindList, List([]Expr{Ident("and")}).Kind())
}

func TestUnitIsEmptyList(t *testing.T) {
	u := Unit()
	assert.True(t, u.IsUnit())
	assert.Equal(t, "()", u.String())
}

func TestAsBoolAsIdentAsStr(t *testing.T) {
	b, ok := Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = Int(1).AsBool()
	assert.False(t, ok)

	name, ok := Ident("foo").AsIdent()
	assert.True(t, ok)
	assert.Equal(t, "foo", name)

	s, ok := Str("hi").AsStr()
	assert.True(t, ok)
	assert.Equal(t, "hi", s)
}

// ============================================================================
// EQUALITY — symmetry, reflexivity, and cross-variant lifting
// ============================================================================

func symmEq(t *testing.T, a, b Expr) {
	t.Helper()
	assert.Equal(t, a.Equal(b), b.Equal(a), "Equal must be symmetric for %s vs %s", a, b)
}

func TestEqualReflexive(t *testing.T) {
	vals := []Expr{
		Str("x"), Int(1), Float(1.5), Bool(true), Ident("a"),
		Seq([]Expr{Int(1), Int(2)}), List([]Expr{Ident("and")}), Unit(),
	}
	for _, v := range vals {
		assert.True(t, v.Equal(v), "%s should equal itself", v)
	}
}

func TestEqualIntFloatLifting(t *testing.T) {
	a, b := Int(3), Float(3.0)
	assert.True(t, a.Equal(b))
	symmEq(t, a, b)

	c := Float(3.5)
	assert.False(t, a.Equal(c))
	symmEq(t, a, c)
}

func TestEqualCrossVariantNeverEqual(t *testing.T) {
	pairs := [][2]Expr{
		{Str("1"), Int(1)},
		{Bool(true), Int(1)},
		{Ident("x"), Str("x")},
		{Seq([]Expr{Int(1)}), List([]Expr{Int(1)})},
	}
	for _, p := range pairs {
		assert.False(t, p[0].Equal(p[1]), "%s should not equal %s", p[0], p[1])
		symmEq(t, p[0], p[1])
	}
}

func TestEqualSeqIsElementwise(t *testing.T) {
	a := Seq([]Expr{Int(1), Str("x")})
	b := Seq([]Expr{Int(1), Str("x")})
	c := Seq([]Expr{Int(1), Str("y")})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

// ============================================================================
// ORDERING — partial order per the spec's Compare contract
// ============================================================================

func TestCompareIntAndFloatLifted(t *testing.T) {
	ord, ok := Int(1).Compare(Float(2.0))
	assert.True(t, ok)
	assert.Equal(t, Less, ord)

	ord, ok = Float(2.0).Compare(Int(1))
	assert.True(t, ok)
	assert.Equal(t, Greater, ord)
}

func TestCompareNaNIsIncomparable(t *testing.T) {
	_, ok := Float(math.NaN()).Compare(Float(1.0))
	assert.False(t, ok)

	_, ok = Float(1.0).Compare(Float(math.NaN()))
	assert.False(t, ok)

	_, ok = Float(math.NaN()).Compare(Float(math.NaN()))
	assert.False(t, ok)
}

func TestCompareCrossVariantIncomparable(t *testing.T) {
	_, ok := Str("x").Compare(Int(1))
	assert.False(t, ok)

	_, ok = Bool(true).Compare(Str("true"))
	assert.False(t, ok)
}

func TestCompareSeqByLengthThenLex(t *testing.T) {
	short := Seq([]Expr{Int(9), Int(9)})
	long := Seq([]Expr{Int(1), Int(1), Int(1)})
	ord, ok := short.Compare(long)
	assert.True(t, ok)
	assert.Equal(t, Less, ord, "a shorter sequence orders before a longer one regardless of contents")

	a := Seq([]Expr{Int(1), Int(2)})
	b := Seq([]Expr{Int(1), Int(3)})
	ord, ok = a.Compare(b)
	assert.True(t, ok)
	assert.Equal(t, Less, ord)
}

// TestCompareTransitive checks a < b < c implies a < c, the minimal transitivity sanity
// check for a hand-rolled partial order.
func TestCompareTransitive(t *testing.T) {
	a, b, c := Int(1), Int(5), Int(9)
	ab, ok := a.Compare(b)
	assert.True(t, ok)
	assert.Equal(t, Less, ab)
	bc, ok := b.Compare(c)
	assert.True(t, ok)
	assert.Equal(t, Less, bc)
	ac, ok := a.Compare(c)
	assert.True(t, ok)
	assert.Equal(t, Less, ac)
}

func TestCompareAntisymmetric(t *testing.T) {
	a, b := Int(3), Int(7)
	ab, ok := a.Compare(b)
	assert.True(t, ok)
	ba, ok := b.Compare(a)
	assert.True(t, ok)
	assert.Equal(t, Less, ab)
	assert.Equal(t, Greater, ba)
}

// ============================================================================
// STRING() — canonical printer, including deep-nesting stack safety
// ============================================================================

func TestStringAtoms(t *testing.T) {
	assert.Equal(t, `"hi"`, Str("hi").String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "subject.role", Ident("subject.role").String())
	assert.Equal(t, "nan", Float(math.NaN()).String())
	assert.Equal(t, "+inf", Float(math.Inf(1)).String())
	assert.Equal(t, "-inf", Float(math.Inf(-1)).String())
}

func TestStringListAndSeq(t *testing.T) {
	l := List([]Expr{Ident("and"), Bool(true), Bool(false)})
	assert.Equal(t, "(and true false)", l.String())

	s := Seq([]Expr{Int(1), Int(2), Int(3)})
	assert.Equal(t, "[1 2 3]", s.String())
}

// TestStringDeeplyNestedDoesNotPanic builds an adversarially deep nested
// list — the kind of input a policy-evaluating node might receive from an
// untrusted peer — and checks the iterative printer handles it without
// blowing the call stack.
func TestStringDeeplyNestedDoesNotPanic(t *testing.T) {
	const depth = 50000
	e := Ident("leaf")
	for i := 0; i < depth; i++ {
		e = List([]Expr{e})
	}
	assert.NotPanics(t, func() {
		out := e.String()
		assert.True(t, len(out) > depth)
	})
}
