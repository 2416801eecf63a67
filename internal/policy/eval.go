package policy

import "github.com/ocx/relay/internal/expr"

// opKind enumerates the control-stack operations of the iterative
// evaluator. As with the parser, recursion is forbidden here because a
// policy expression's nesting depth is attacker-controlled; Eval uses an
// explicit operation stack and argument stack instead of a recursive tree
// walk.
type opKind uint8

const (
	opEval opKind = iota
	opAnd
	opOr
	opNot
	opIf
	opEq
	opGt
	opLt
	opMember
	opSeq
)

type op struct {
	kind opKind
	expr expr.Expr // opEval
	n    int       // opAnd, opOr, opEq, opGt, opLt, opSeq: argument count
}

// Eval evaluates expr under env, returning the resulting value or a typed
// EvalError. It asserts (as a Go panic on a broken invariant, never a user-
// facing condition) that exactly one value remains on the argument stack
// when control falls off the end, matching the reference evaluator's
// debug_assert.
func Eval(e expr.Expr, env *Environment) (expr.Expr, error) {
	var ctrl []op
	var args []expr.Expr
	ctrl = append(ctrl, op{kind: opEval, expr: e})

	for len(ctrl) > 0 {
		x := ctrl[len(ctrl)-1]
		ctrl = ctrl[:len(ctrl)-1]

		switch x.kind {
		case opEval:
			result, err := evalStep(x.expr, env, &ctrl, &args)
			if err != nil {
				return expr.Expr{}, err
			}
			_ = result

		case opAnd:
			b := true
			operands := args[len(args)-x.n:]
			for _, o := range operands {
				v, ok := o.AsBool()
				if !ok {
					return expr.Expr{}, errInvalidType(o, "'and' expected bool")
				}
				if !v {
					b = false
					break
				}
			}
			args = args[:len(args)-x.n]
			args = append(args, expr.Bool(b))

		case opOr:
			b := false
			operands := args[len(args)-x.n:]
			for _, o := range operands {
				v, ok := o.AsBool()
				if !ok {
					return expr.Expr{}, errInvalidType(o, "'or' expected bool")
				}
				if v {
					b = true
					break
				}
			}
			args = args[:len(args)-x.n]
			args = append(args, expr.Bool(b))

		case opNot:
			if len(args) == 0 {
				return expr.Expr{}, errMalformed("'not' requires exactly one argument")
			}
			v := args[len(args)-1]
			args = args[:len(args)-1]
			b, ok := v.AsBool()
			if !ok {
				return expr.Expr{}, errInvalidType(v, "'not' expected bool")
			}
			args = append(args, expr.Bool(!b))

		case opIf:
			if len(args) < 3 {
				return expr.Expr{}, errMalformed("'if' requires three arguments")
			}
			f := args[len(args)-1]
			t := args[len(args)-2]
			c := args[len(args)-3]
			args = args[:len(args)-3]
			b, ok := c.AsBool()
			if !ok {
				return expr.Expr{}, errInvalidType(c, "'if' expected bool")
			}
			if b {
				args = append(args, t)
			} else {
				args = append(args, f)
			}

		case opEq:
			if len(args) < 2 {
				return expr.Expr{}, errMalformed("'=' requires at least two arguments")
			}
			operands := args[len(args)-x.n:]
			b := true
			first := operands[0]
			for _, o := range operands[1:] {
				if !first.Equal(o) {
					b = false
					break
				}
			}
			args = args[:len(args)-x.n]
			args = append(args, expr.Bool(b))

		case opLt:
			b, err := evalChain(args, x.n, expr.Less)
			if err != nil {
				return expr.Expr{}, err
			}
			args = args[:len(args)-x.n]
			args = append(args, expr.Bool(b))

		case opGt:
			b, err := evalChain(args, x.n, expr.Greater)
			if err != nil {
				return expr.Expr{}, err
			}
			args = args[:len(args)-x.n]
			args = append(args, expr.Bool(b))

		case opMember:
			if len(args) < 2 {
				return expr.Expr{}, errMalformed("'member?' requires two arguments")
			}
			s := args[len(args)-1]
			v := args[len(args)-2]
			args = args[:len(args)-2]
			elems, ok := s.AsList()
			if !ok || s.Kind() != expr.KindSeq {
				return expr.Expr{}, errInvalidType(s, "'member?' expects sequence as second argument")
			}
			found := false
			for _, e2 := range elems {
				if v.Equal(e2) {
					found = true
					break
				}
			}
			args = append(args, expr.Bool(found))

		case opSeq:
			s := append([]expr.Expr(nil), args[len(args)-x.n:]...)
			args = args[:len(args)-x.n]
			args = append(args, expr.Seq(s))
		}
	}

	if len(args) != 1 {
		panic("policy.Eval: evaluator invariant violated — expected exactly one value on the argument stack")
	}
	return args[0], nil
}

// evalChain checks whether operands are strictly ordered per want (Less
// for `<`, Greater for `>`). An incomparable pair makes the chain false
// rather than an error, just as cross-type equality is false.
func evalChain(args []expr.Expr, n int, want expr.Ordering) (bool, error) {
	if len(args) < 2 {
		op := "'<'"
		if want == expr.Greater {
			op = "'>'"
		}
		return false, errMalformed(op + " requires at least two arguments")
	}
	operands := args[len(args)-n:]
	for i := 1; i < len(operands); i++ {
		ord, ok := operands[i-1].Compare(operands[i])
		if !ok || ord != want {
			return false, nil
		}
	}
	return true, nil
}

// evalStep handles a single Op::Eval, matching the reference evaluator's
// dispatch: identifiers resolve and are re-pushed for evaluation, Seq
// evaluates all elements, atoms self-evaluate, and List forms dispatch on
// their head identifier.
func evalStep(e expr.Expr, env *Environment, ctrl *[]op, args *[]expr.Expr) (struct{}, error) {
	switch e.Kind() {
	case expr.KindIdent:
		name, _ := e.AsIdent()
		bound, err := env.Get(name)
		if err != nil {
			return struct{}{}, err
		}
		*ctrl = append(*ctrl, op{kind: opEval, expr: bound})
		return struct{}{}, nil

	case expr.KindSeq:
		elems, _ := e.AsList()
		*ctrl = append(*ctrl, op{kind: opSeq, n: len(elems)})
		for i := len(elems) - 1; i >= 0; i-- {
			*ctrl = append(*ctrl, op{kind: opEval, expr: elems[i]})
		}
		return struct{}{}, nil

	case expr.KindList:
		elems, _ := e.AsList()
		if len(elems) == 0 {
			*args = append(*args, expr.Unit())
			return struct{}{}, nil
		}
		head := elems[0]
		name, isIdent := head.AsIdent()
		if !isIdent {
			return struct{}{}, errInvalidType(head, "expected (op ...)")
		}
		rest := elems[1:]

		if name == "exists?" {
			ok := true
			for _, e2 := range rest {
				id, isIdent := e2.AsIdent()
				if !isIdent {
					return struct{}{}, errInvalidType(e2, "'exists?' expects identifiers")
				}
				if !env.Contains(id) {
					ok = false
					break
				}
			}
			*args = append(*args, expr.Bool(ok))
			return struct{}{}, nil
		}

		arity := map[string]int{"not": 1, "member?": 2, "if": 3}
		if want, fixed := arity[name]; fixed && len(rest) != want {
			return struct{}{}, errMalformed("'" + name + "' has the wrong number of arguments")
		}
		if (name == "=" || name == "!=" || name == "<" || name == ">") && len(rest) < 2 {
			return struct{}{}, errMalformed("'" + name + "' requires at least two arguments")
		}

		switch name {
		case "and":
			*ctrl = append(*ctrl, op{kind: opAnd, n: len(rest)})
		case "or":
			*ctrl = append(*ctrl, op{kind: opOr, n: len(rest)})
		case "not":
			*ctrl = append(*ctrl, op{kind: opNot})
		case "if":
			*ctrl = append(*ctrl, op{kind: opIf})
		case "<":
			*ctrl = append(*ctrl, op{kind: opLt, n: len(rest)})
		case ">":
			*ctrl = append(*ctrl, op{kind: opGt, n: len(rest)})
		case "=":
			*ctrl = append(*ctrl, op{kind: opEq, n: len(rest)})
		case "!=":
			*ctrl = append(*ctrl, op{kind: opNot})
			*ctrl = append(*ctrl, op{kind: opEq, n: len(rest)})
		case "member?":
			*ctrl = append(*ctrl, op{kind: opMember})
		default:
			return struct{}{}, errUnknown(name)
		}

		for i := len(rest) - 1; i >= 0; i-- {
			*ctrl = append(*ctrl, op{kind: opEval, expr: rest[i]})
		}
		return struct{}{}, nil

	default:
		*args = append(*args, e)
		return struct{}{}, nil
	}
}
