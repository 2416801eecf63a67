package policy

import "github.com/ocx/relay/internal/expr"

// Environment binds identifiers to expressions for evaluation. A missing
// binding is an evaluation error, not a zero value, so Get returns
// (Expr, error) rather than panicking or returning a sentinel Expr.
type Environment struct {
	bindings map[string]expr.Expr
}

// NewEnvironment returns an empty Environment ready for Put.
func NewEnvironment() *Environment {
	return &Environment{bindings: make(map[string]expr.Expr)}
}

// Put binds name to value, overwriting any previous binding.
func (e *Environment) Put(name string, value expr.Expr) {
	e.bindings[name] = value
}

// Get looks up name, returning an error wrapping BindingNotFound on miss.
func (e *Environment) Get(name string) (expr.Expr, error) {
	v, ok := e.bindings[name]
	if !ok {
		return expr.Expr{}, errBindingNotFound(name)
	}
	return v, nil
}

// Contains reports whether name is bound, without triggering a lookup
// error. This is what `exists?` uses — it is a structural check, never a
// resolution.
func (e *Environment) Contains(name string) bool {
	_, ok := e.bindings[name]
	return ok
}
