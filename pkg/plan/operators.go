// Package plan builds cost-annotated logical plans from resolved queries.
//
// A logical plan is an immutable tree of operators. Operators hold
// references into the query's syntax tree arena, so a plan retains that
// arena for as long as the plan itself is alive. Two generator strategies
// exist: a deterministic rule-based construction and a cost-based search
// over pattern expansion orders, selected by configuration.
package plan

import (
	"fmt"
	"strings"

	"github.com/orneryd/kvasir/pkg/ast"
)

// LogicalOperator is one node of the operator tree. The operator set is
// closed; the execution engine switches exhaustively over concrete types.
type LogicalOperator interface {
	// Input returns the operator this one pulls rows from, nil for sources.
	Input() LogicalOperator
}

type singleInput struct {
	in LogicalOperator
}

func (s *singleInput) Input() LogicalOperator { return s.in }

// Once produces exactly one empty row. Every plan bottoms out here.
type Once struct{}

func (*Once) Input() LogicalOperator { return nil }

// ScanAll produces every vertex, bound to Symbol.
type ScanAll struct {
	singleInput
	Symbol ast.Symbol
}

// ScanAllByLabel produces every vertex with Label, bound to Symbol.
type ScanAllByLabel struct {
	singleInput
	Symbol ast.Symbol
	Label  string
}

// Expand traverses edges from the already-bound From vertex, binding the
// edge and the vertex on the other side. ExistingNode means To is already
// bound and the expansion only checks connectivity.
type Expand struct {
	singleInput
	From         ast.Symbol
	Edge         ast.Symbol
	To           ast.Symbol
	Direction    ast.EdgeDirection
	Types        []string
	ExistingNode bool
}

// PropertyFilter is an equality test derived from a pattern property map.
// It references the value expression in the query's arena but allocates no
// new syntax nodes, so plan generation never mutates shared storage.
type PropertyFilter struct {
	Symbol   ast.Symbol
	Property string
	Value    ast.Expression
}

// LabelFilter requires the vertex bound to Symbol to carry Label.
type LabelFilter struct {
	Symbol ast.Symbol
	Label  string
}

// Filter drops rows that fail the condition. Exactly one of Condition
// (a WHERE expression), Properties or Labels is set.
type Filter struct {
	singleInput
	Condition  ast.Expression
	Properties []PropertyFilter
	Labels     []LabelFilter
}

// ConstructNamedPath materializes a path value from the symbols of one
// matched pattern, bound to Path.
type ConstructNamedPath struct {
	singleInput
	Path    ast.Symbol
	Symbols []ast.Symbol
}

// Optional runs Branch for every input row; when the branch yields nothing
// the branch's symbols are bound to null instead of dropping the row.
type Optional struct {
	singleInput
	Branch LogicalOperator
}

// Merge attempts MatchBranch for each input row and runs CreateBranch when
// the match comes up empty.
type Merge struct {
	singleInput
	MatchBranch  LogicalOperator
	CreateBranch LogicalOperator
}

// Unwind binds Symbol to each element of the list Expression evaluates to.
type Unwind struct {
	singleInput
	Expression ast.Expression
	Symbol     ast.Symbol
}

// AggregateElement is one aggregation computed by an Aggregate operator.
type AggregateElement struct {
	Aggregation *ast.Aggregation
}

// Aggregate groups input rows by the GroupBy expressions and computes the
// aggregations per group.
type Aggregate struct {
	singleInput
	Elements []AggregateElement
	GroupBy  []ast.Expression
}

// Produce projects the named expressions; it is the root of every
// result-returning plan.
type Produce struct {
	singleInput
	Items []*ast.NamedExpression
}

// Distinct removes duplicate rows.
type Distinct struct {
	singleInput
}

// OrderBy sorts rows by the given sort items.
type OrderBy struct {
	singleInput
	Items []ast.SortItem
}

// Skip drops the first Expression rows.
type Skip struct {
	singleInput
	Expression ast.Expression
}

// Limit stops after Expression rows.
type Limit struct {
	singleInput
	Expression ast.Expression
}

// CreateNode creates one vertex described by Atom.
type CreateNode struct {
	singleInput
	Atom *ast.NodeAtom
}

// CreateExpand creates the Edge between From and To, creating either
// endpoint that is not already bound.
type CreateExpand struct {
	singleInput
	From         *ast.NodeAtom
	Edge         *ast.EdgeAtom
	To           *ast.NodeAtom
	ExistingFrom bool
	ExistingTo   bool
}

// Delete removes the vertices and edges the expressions evaluate to.
type Delete struct {
	singleInput
	Expressions []ast.Expression
	Detach      bool
}

// SetProperty assigns Value to one property.
type SetProperty struct {
	singleInput
	Property *ast.PropertyLookup
	Value    ast.Expression
}

// RemoveProperty clears one property.
type RemoveProperty struct {
	singleInput
	Property *ast.PropertyLookup
}

// Walk invokes fn for op and every operator below it, descending into
// Optional and Merge branch sub-plans.
func Walk(op LogicalOperator, fn func(LogicalOperator)) {
	for op != nil {
		fn(op)
		switch o := op.(type) {
		case *Optional:
			Walk(o.Branch, fn)
		case *Merge:
			Walk(o.MatchBranch, fn)
			Walk(o.CreateBranch, fn)
		}
		op = op.Input()
	}
}

// Format renders an operator tree for EXPLAIN output, root first.
func Format(op LogicalOperator) string {
	var b strings.Builder
	formatInto(&b, op, 0)
	return b.String()
}

func formatInto(b *strings.Builder, op LogicalOperator, depth int) {
	for op != nil {
		indent(b, depth)
		b.WriteString(describe(op))
		b.WriteByte('\n')
		switch o := op.(type) {
		case *Optional:
			indent(b, depth+1)
			b.WriteString("branch:\n")
			formatInto(b, o.Branch, depth+2)
		case *Merge:
			indent(b, depth+1)
			b.WriteString("on match:\n")
			formatInto(b, o.MatchBranch, depth+2)
			indent(b, depth+1)
			b.WriteString("on create:\n")
			formatInto(b, o.CreateBranch, depth+2)
		}
		op = op.Input()
	}
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
	b.WriteString("* ")
}

func describe(op LogicalOperator) string {
	switch o := op.(type) {
	case *Once:
		return "Once"
	case *ScanAll:
		return fmt.Sprintf("ScanAll (%s)", symbolName(o.Symbol))
	case *ScanAllByLabel:
		return fmt.Sprintf("ScanAllByLabel (%s :%s)", symbolName(o.Symbol), o.Label)
	case *Expand:
		arrow := "-[" + symbolName(o.Edge)
		if len(o.Types) > 0 {
			arrow += ":" + strings.Join(o.Types, "|")
		}
		arrow += "]-"
		switch o.Direction {
		case ast.EdgeOut:
			arrow = "-" + arrow[1:] + ">"
		case ast.EdgeIn:
			arrow = "<" + arrow
		}
		return fmt.Sprintf("Expand (%s)%s(%s)", symbolName(o.From), arrow, symbolName(o.To))
	case *Filter:
		if len(o.Properties) > 0 {
			parts := make([]string, len(o.Properties))
			for i, f := range o.Properties {
				parts[i] = symbolName(f.Symbol) + "." + f.Property
			}
			return fmt.Sprintf("Filter {%s}", strings.Join(parts, ", "))
		}
		if len(o.Labels) > 0 {
			parts := make([]string, len(o.Labels))
			for i, f := range o.Labels {
				parts[i] = symbolName(f.Symbol) + ":" + f.Label
			}
			return fmt.Sprintf("Filter (%s)", strings.Join(parts, ", "))
		}
		return "Filter"
	case *ConstructNamedPath:
		return fmt.Sprintf("ConstructNamedPath (%s)", symbolName(o.Path))
	case *Optional:
		return "Optional"
	case *Merge:
		return "Merge"
	case *Unwind:
		return fmt.Sprintf("Unwind (%s)", symbolName(o.Symbol))
	case *Aggregate:
		return fmt.Sprintf("Aggregate (%d aggregations)", len(o.Elements))
	case *Produce:
		names := make([]string, len(o.Items))
		for i, item := range o.Items {
			names[i] = item.Name
		}
		return fmt.Sprintf("Produce {%s}", strings.Join(names, ", "))
	case *Distinct:
		return "Distinct"
	case *OrderBy:
		return "OrderBy"
	case *Skip:
		return "Skip"
	case *Limit:
		return "Limit"
	case *CreateNode:
		return fmt.Sprintf("CreateNode (%s)", identName(o.Atom.Variable))
	case *CreateExpand:
		return fmt.Sprintf("CreateExpand (%s)-[%s]->(%s)",
			identName(o.From.Variable), identName(o.Edge.Variable), identName(o.To.Variable))
	case *Delete:
		if o.Detach {
			return "DetachDelete"
		}
		return "Delete"
	case *SetProperty:
		return fmt.Sprintf("SetProperty (.%s)", o.Property.Property)
	case *RemoveProperty:
		return fmt.Sprintf("RemoveProperty (.%s)", o.Property.Property)
	default:
		return fmt.Sprintf("%T", op)
	}
}

func symbolName(s ast.Symbol) string {
	return strings.TrimSpace(s.Name)
}

func identName(i *ast.Identifier) string {
	if i == nil {
		return ""
	}
	return strings.TrimSpace(i.Name)
}
