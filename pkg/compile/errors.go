package compile

import (
	"errors"

	"github.com/orneryd/kvasir/pkg/parser"
	"github.com/orneryd/kvasir/pkg/plan"
	"github.com/orneryd/kvasir/pkg/semantic"
)

// Error-classification helpers for callers that route on failure kind.
// All three classes are local to one compilation attempt: nothing is
// cached, nothing is retried, the process keeps serving other queries.

// IsSyntaxError reports whether err came from the parser.
func IsSyntaxError(err error) bool {
	var target *parser.SyntaxError
	return errors.As(err, &target)
}

// IsSemanticError reports whether err came from scope resolution.
func IsSemanticError(err error) bool {
	var target *semantic.Error
	return errors.As(err, &target)
}

// IsPlanningError reports whether err came from plan generation.
func IsPlanningError(err error) bool {
	var target *plan.PlanningError
	return errors.As(err, &target)
}
