package semantic

import (
	"fmt"

	"github.com/orneryd/kvasir/pkg/ast"
)

// ErrorKind classifies semantic errors raised during scope resolution.
type ErrorKind int

const (
	// ErrUnboundVariable is a reference to a name with no active binding.
	ErrUnboundVariable ErrorKind = iota
	// ErrRedeclaredVariable is a declaration that is not allowed to reuse
	// an existing binding, e.g. an edge variable inside CREATE.
	ErrRedeclaredVariable
	// ErrTypeMismatch is a reuse of a bound variable where an incompatible
	// type is expected.
	ErrTypeMismatch
	// ErrNestedAggregation is an aggregation inside another aggregation.
	ErrNestedAggregation
	// ErrInvalidAggregation is an aggregation in a context that cannot
	// aggregate, e.g. inside a pattern.
	ErrInvalidAggregation
)

// Error is a fatal semantic error. Resolution stops at the first one; the
// partially built symbol table is discarded by the caller.
type Error struct {
	Kind ErrorKind
	Name string
	Have ast.SymbolType
	Want ast.SymbolType
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrUnboundVariable:
		return fmt.Sprintf("variable `%s` is not defined in this scope", e.Name)
	case ErrRedeclaredVariable:
		return fmt.Sprintf("redeclaring variable `%s`", e.Name)
	case ErrTypeMismatch:
		return fmt.Sprintf("variable `%s` already declared as %s, cannot be used as %s", e.Name, e.Have, e.Want)
	case ErrNestedAggregation:
		return "aggregation functions cannot be nested"
	case ErrInvalidAggregation:
		return "aggregation functions are not allowed in this context"
	default:
		return "semantic error"
	}
}
