package plan

import (
	"fmt"

	"github.com/orneryd/kvasir/pkg/ast"
)

// LogicalPlan is a generated plan ready for execution. Implementations are
// immutable after construction: the root operator tree, the symbol table it
// was built against and the syntax tree arena it references never change.
// Holding a LogicalPlan keeps its Storage alive, so operator references
// into the arena stay valid for every consumer of the plan.
type LogicalPlan interface {
	Root() LogicalOperator
	Cost() float64
	SymbolTable() *ast.SymbolTable
	Storage() *ast.Storage
}

type builtPlan struct {
	root    LogicalOperator
	cost    float64
	table   *ast.SymbolTable
	storage *ast.Storage
}

func (p *builtPlan) Root() LogicalOperator         { return p.root }
func (p *builtPlan) Cost() float64                 { return p.cost }
func (p *builtPlan) SymbolTable() *ast.SymbolTable { return p.table }
func (p *builtPlan) Storage() *ast.Storage         { return p.storage }

// PlanningError is a fatal plan-generation failure. It is never cached and
// never retried; the caller may fix the query and compile again.
type PlanningError struct {
	Msg string
}

func (e *PlanningError) Error() string {
	return "planning error: " + e.Msg
}

func planningErrorf(format string, args ...any) error {
	return &PlanningError{Msg: fmt.Sprintf(format, args...)}
}
