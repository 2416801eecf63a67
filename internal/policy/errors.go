package policy

import (
	"fmt"

	"github.com/ocx/relay/internal/expr"
)

// ParseError is returned by Parse for any syntactic problem: unbalanced
// delimiters, an invalid token, or a malformed numeric literal.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// EvalErrorKind discriminates the evaluator's typed failure sum.
type EvalErrorKind uint8

const (
	// Unknown means the operator position held an identifier that is not
	// one of the builtin forms.
	Unknown EvalErrorKind = iota
	// InvalidType means an operand did not match its operator's type
	// contract.
	InvalidType
	// Malformed means an arity or structural violation (e.g. `(not)`).
	Malformed
	// BindingNotFound means an environment lookup missed.
	BindingNotFound
)

// EvalError is the evaluator's single error type, carrying enough context
// to reconstruct an operator-facing message.
type EvalError struct {
	Kind  EvalErrorKind
	Name  string    // Unknown, BindingNotFound
	Value expr.Expr // InvalidType
	Msg   string    // InvalidType, Malformed
}

func (e *EvalError) Error() string {
	switch e.Kind {
	case Unknown:
		return fmt.Sprintf("unknown operator %q", e.Name)
	case InvalidType:
		return fmt.Sprintf("%s: %s", e.Msg, e.Value)
	case Malformed:
		return e.Msg
	case BindingNotFound:
		return fmt.Sprintf("binding not found: %q", e.Name)
	default:
		return "evaluation error"
	}
}

func errUnknown(name string) error {
	return &EvalError{Kind: Unknown, Name: name}
}

func errInvalidType(v expr.Expr, msg string) error {
	return &EvalError{Kind: InvalidType, Value: v, Msg: msg}
}

func errMalformed(msg string) error {
	return &EvalError{Kind: Malformed, Msg: msg}
}

func errBindingNotFound(name string) error {
	return &EvalError{Kind: BindingNotFound, Name: name}
}
