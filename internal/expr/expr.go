// Package expr implements the tagged-union value model used by the ABAC
// policy surface: a small Lisp-like expression tree that doubles as the
// result of evaluation.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates the variants of Expr.
type Kind uint8

const (
	KindStr Kind = iota
	KindInt
	KindFloat
	KindBool
	KindIdent
	KindSeq
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindStr:
		return "str"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindIdent:
		return "ident"
	case KindSeq:
		return "seq"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Expr is a node of the ABAC expression AST. It is also the type of value
// that evaluation produces, so the policy engine never needs a separate
// "Val" representation.
type Expr struct {
	kind Kind
	str  string  // Str, Ident
	i    int64   // Int
	f    float64 // Float
	b    bool    // Bool
	list []Expr  // Seq, List
}

// Str constructs a string literal expression.
func Str(s string) Expr { return Expr{kind: KindStr, str: s} }

// Int constructs an integer literal expression.
func Int(i int64) Expr { return Expr{kind: KindInt, i: i} }

// Float constructs a floating-point literal expression.
func Float(f float64) Expr { return Expr{kind: KindFloat, f: f} }

// Bool constructs a boolean literal expression.
func Bool(b bool) Expr { return Expr{kind: KindBool, b: b} }

// Ident constructs an identifier expression.
func Ident(name string) Expr { return Expr{kind: KindIdent, str: name} }

// Seq constructs a data-sequence expression from its elements.
func Seq(xs []Expr) Expr { return Expr{kind: KindSeq, list: xs} }

// List constructs a syntactic-form (application) expression from its
// elements.
func List(xs []Expr) Expr { return Expr{kind: KindList, list: xs} }

// Unit is the canonical empty list, `()`.
func Unit() Expr { return List(nil) }

// Kind reports the variant of e.
func (e Expr) Kind() Kind { return e.kind }

// IsTrue reports whether e is the boolean literal true.
func (e Expr) IsTrue() bool { return e.kind == KindBool && e.b }

// IsFalse reports whether e is the boolean literal false.
func (e Expr) IsFalse() bool { return e.kind == KindBool && !e.b }

// IsUnit reports whether e is `()`.
func (e Expr) IsUnit() bool { return e.kind == KindList && len(e.list) == 0 }

// IsIdent reports whether e is an identifier.
func (e Expr) IsIdent() bool { return e.kind == KindIdent }

// AsBool returns the boolean carried by e and whether e was in fact a Bool.
func (e Expr) AsBool() (bool, bool) {
	if e.kind == KindBool {
		return e.b, true
	}
	return false, false
}

// AsIdent returns the identifier name carried by e and whether e was in
// fact an Ident.
func (e Expr) AsIdent() (string, bool) {
	if e.kind == KindIdent {
		return e.str, true
	}
	return "", false
}

// AsStr returns the string carried by e and whether e was in fact a Str.
func (e Expr) AsStr() (string, bool) {
	if e.kind == KindStr {
		return e.str, true
	}
	return "", false
}

// AsList returns the elements of a List or Seq, and whether e was one of
// those kinds.
func (e Expr) AsList() ([]Expr, bool) {
	if e.kind == KindList || e.kind == KindSeq {
		return e.list, true
	}
	return nil, false
}

// asFloat lifts Int/Float to a float64, reporting whether the lift applied.
func (e Expr) asFloat() (float64, bool) {
	switch e.kind {
	case KindFloat:
		return e.f, true
	case KindInt:
		return float64(e.i), true
	default:
		return 0, false
	}
}

// Equal reports structural equality per variant, with Int and Float
// compared across each other by lifting Int to float64.
func (e Expr) Equal(other Expr) bool {
	switch {
	case e.kind == KindStr && other.kind == KindStr:
		return e.str == other.str
	case e.kind == KindBool && other.kind == KindBool:
		return e.b == other.b
	case e.kind == KindIdent && other.kind == KindIdent:
		return e.str == other.str
	case e.kind == KindSeq && other.kind == KindSeq:
		return equalList(e.list, other.list)
	case e.kind == KindList && other.kind == KindList:
		return equalList(e.list, other.list)
	case e.kind == KindInt && other.kind == KindInt:
		return e.i == other.i
	case e.kind == KindFloat && other.kind == KindFloat:
		return e.f == other.f
	case e.kind == KindInt && other.kind == KindFloat:
		return float64(e.i) == other.f
	case e.kind == KindFloat && other.kind == KindInt:
		return e.f == float64(other.i)
	default:
		return false
	}
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Ordering is the result of a partial comparison.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Compare implements the partial order described in the spec: same-variant
// comparison for all variants, Int/Float lifted against each other, Seq
// ordered first by length then lexicographically, and any other
// cross-variant pair reported as incomparable via ok=false.
func (e Expr) Compare(other Expr) (ord Ordering, ok bool) {
	switch {
	case e.kind == KindStr && other.kind == KindStr:
		return cmpString(e.str, other.str), true
	case e.kind == KindBool && other.kind == KindBool:
		return cmpBool(e.b, other.b), true
	case e.kind == KindIdent && other.kind == KindIdent:
		return cmpString(e.str, other.str), true
	case e.kind == KindSeq && other.kind == KindSeq:
		return cmpSeq(e.list, other.list)
	case e.kind == KindList && other.kind == KindList:
		return cmpSeq(e.list, other.list)
	case e.kind == KindInt && other.kind == KindInt:
		return cmpInt(e.i, other.i), true
	case e.kind == KindFloat && other.kind == KindFloat:
		return cmpFloat(e.f, other.f)
	case e.kind == KindInt && other.kind == KindFloat:
		return cmpFloat(float64(e.i), other.f)
	case e.kind == KindFloat && other.kind == KindInt:
		return cmpFloat(e.f, float64(other.i))
	default:
		return Equal, false
	}
}

func cmpString(a, b string) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func cmpBool(a, b bool) Ordering {
	if a == b {
		return Equal
	}
	if !a && b {
		return Less
	}
	return Greater
}

func cmpInt(a, b int64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func cmpFloat(a, b float64) (Ordering, bool) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return Equal, false
	}
	switch {
	case a < b:
		return Less, true
	case a > b:
		return Greater, true
	default:
		return Equal, true
	}
}

func cmpSeq(a, b []Expr) (Ordering, bool) {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return Less, true
		}
		return Greater, true
	}
	for i := range a {
		ord, ok := a[i].Compare(b[i])
		if !ok {
			return Equal, false
		}
		if ord != Equal {
			return ord, true
		}
	}
	return Equal, true
}

// printFrame is a stack frame used by the iterative printer. It mirrors
// the teacher's goroutine-free, heap-stack style used for anything that
// walks attacker-controlled nesting depth.
type printFrame struct {
	expr    *Expr
	literal string // ")" "]" or " "
}

// String renders the canonical Lisp-like text form. It walks the
// expression tree iteratively with an explicit stack so that input nested
// thousands deep (see the parser's "evil input" stress test) cannot blow
// the Go call stack.
func (e Expr) String() string {
	var b strings.Builder
	stack := []printFrame{{expr: &e}}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if fr.expr == nil {
			b.WriteString(fr.literal)
			continue
		}

		x := fr.expr
		switch x.kind {
		case KindStr:
			b.WriteString(strconv.Quote(x.str))
		case KindInt:
			b.WriteString(strconv.FormatInt(x.i, 10))
		case KindFloat:
			b.WriteString(formatFloat(x.f))
		case KindBool:
			if x.b {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
		case KindIdent:
			b.WriteString(x.str)
		case KindList:
			stack = append(stack, printFrame{literal: ")"})
			pushElements(&stack, x.list, "(")
		case KindSeq:
			stack = append(stack, printFrame{literal: "]"})
			pushElements(&stack, x.list, "[")
		default:
			b.WriteString(fmt.Sprintf("<invalid expr kind %d>", x.kind))
		}
	}

	return b.String()
}

// pushElements writes the opening delimiter and pushes each element (with
// a space separator) onto the stack in reverse so they pop in source
// order.
func pushElements(stack *[]printFrame, xs []Expr, open string) {
	n := len(xs)
	for i := n - 1; i >= 0; i-- {
		e := xs[i]
		*stack = append(*stack, printFrame{expr: &e})
		if i > 0 {
			*stack = append(*stack, printFrame{literal: " "})
		}
	}
	*stack = append(*stack, printFrame{literal: open})
}

func formatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "+inf"
	case math.IsInf(x, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
}
