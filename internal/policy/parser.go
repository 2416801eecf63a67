package policy

import "github.com/ocx/relay/internal/expr"

// itemKind enumerates the explicit control-stack elements the parser
// pushes and pops. This mirrors the spec's {Ex, Nx, La, Le, Sa, Se}
// machine exactly: Ex carries a completed expression, Nx means "parse one
// more token", La/Le bracket a list form, Sa/Se bracket a sequence form.
// Using an explicit heap-allocated stack (a Go slice) instead of recursive
// descent is what lets Parse survive adversarially deep nesting.
type itemKind uint8

const (
	itemEx itemKind = iota
	itemNx
	itemLa
	itemLe
	itemSa
	itemSe
)

type stackItem struct {
	kind itemKind
	expr expr.Expr
}

// Parse reads a single policy program from s. Multiple top-level
// expressions are wrapped into one outer List; empty input is an error.
func Parse(s string) (*expr.Expr, error) {
	lx := newLexer(s)

	var xs []expr.Expr // completed top-level expressions
	st := []stackItem{{kind: itemNx}}

	for len(st) > 0 {
		it := st[len(st)-1]
		st = st[:len(st)-1]

		switch it.kind {
		case itemNx:
			tok, err := lx.next()
			if err != nil {
				return nil, err
			}
			switch tok.kind {
			case tokEOF:
				// Nothing more to parse; simply don't requeue Nx.
			case tokWhitespace, tokLineComment, tokBlockComment:
				st = append(st, stackItem{kind: itemNx})
			case tokInt:
				st = append(st, stackItem{kind: itemEx, expr: expr.Int(tok.i)})
				st = append(st, stackItem{kind: itemNx})
			case tokFloat:
				st = append(st, stackItem{kind: itemEx, expr: expr.Float(tok.f)})
				st = append(st, stackItem{kind: itemNx})
			case tokString:
				st = append(st, stackItem{kind: itemEx, expr: expr.Str(tok.str)})
				st = append(st, stackItem{kind: itemNx})
			case tokLParen:
				st = append(st, stackItem{kind: itemLa})
				st = append(st, stackItem{kind: itemNx})
			case tokRParen:
				st = append(st, stackItem{kind: itemLe})
			case tokLBracket:
				st = append(st, stackItem{kind: itemSa})
				st = append(st, stackItem{kind: itemNx})
			case tokRBracket:
				st = append(st, stackItem{kind: itemSe})
			case tokTrue:
				st = append(st, stackItem{kind: itemEx, expr: expr.Bool(true)})
				st = append(st, stackItem{kind: itemNx})
			case tokFalse:
				st = append(st, stackItem{kind: itemEx, expr: expr.Bool(false)})
				st = append(st, stackItem{kind: itemNx})
			case tokIdent:
				st = append(st, stackItem{kind: itemEx, expr: expr.Ident(tok.text)})
				st = append(st, stackItem{kind: itemNx})
			}

		case itemEx:
			xs = append(xs, it.expr)

		case itemLe:
			v, err := collectList(&st)
			if err != nil {
				return nil, err
			}
			st = append(st, stackItem{kind: itemEx, expr: expr.List(v)})
			st = append(st, stackItem{kind: itemNx})

		case itemSe:
			v, err := collectSeq(&st)
			if err != nil {
				return nil, err
			}
			st = append(st, stackItem{kind: itemEx, expr: expr.Seq(v)})
			st = append(st, stackItem{kind: itemNx})

		case itemLa:
			return nil, parseErrorf("unclosed '('")
		case itemSa:
			return nil, parseErrorf("unclosed '['")
		}
	}

	switch len(xs) {
	case 0:
		return nil, parseErrorf("no expression")
	case 1:
		return &xs[0], nil
	default:
		reverseExprs(xs)
		out := expr.List(xs)
		return &out, nil
	}
}

// collectList pops items off st until it finds the '(' that opened the
// list being closed, accumulating Ex items in between (in reverse, since
// the stack is LIFO — reversed back before returning). Encountering any
// other bracket marker first means mismatched delimiters.
func collectList(st *[]stackItem) ([]expr.Expr, error) {
	var v []expr.Expr
	for {
		if len(*st) == 0 {
			return nil, parseErrorf("')' without matching '('")
		}
		top := (*st)[len(*st)-1]
		*st = (*st)[:len(*st)-1]

		switch top.kind {
		case itemLa:
			reverseExprs(v)
			return v, nil
		case itemEx:
			v = append(v, top.expr)
		case itemLe:
			return nil, parseErrorf("')' without matching '('")
		case itemSa:
			return nil, parseErrorf("'[' without matching ']'")
		case itemSe:
			return nil, parseErrorf("']' without matching '['")
		}
	}
}

// collectSeq is collectList's mirror image for `[...]` forms.
func collectSeq(st *[]stackItem) ([]expr.Expr, error) {
	var v []expr.Expr
	for {
		if len(*st) == 0 {
			return nil, parseErrorf("']' without matching '['")
		}
		top := (*st)[len(*st)-1]
		*st = (*st)[:len(*st)-1]

		switch top.kind {
		case itemSa:
			reverseExprs(v)
			return v, nil
		case itemEx:
			v = append(v, top.expr)
		case itemLe:
			return nil, parseErrorf("')' without matching '('")
		case itemLa:
			return nil, parseErrorf("'(' without matching ')'")
		case itemSe:
			return nil, parseErrorf("']' without matching '['")
		}
	}
}

func reverseExprs(xs []expr.Expr) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
