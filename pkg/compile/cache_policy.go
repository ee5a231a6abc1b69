package compile

import "github.com/orneryd/kvasir/pkg/ast"

// nonDeterministicFunctions lists builtins whose value can change between
// two executions of the same query without any writes. A query calling one
// of these must be recompiled every time, so it is never cached.
// Intentionally small and conservative; extend as builtins are added.
var nonDeterministicFunctions = map[string]bool{
	"rand":          true,
	"randomuuid":    true,
	"timestamp":     true,
	"date":          true,
	"time":          true,
	"datetime":      true,
	"localtime":     true,
	"localdatetime": true,
}

// isCacheableQuery reports whether the resolved form of a query is safe to
// reuse across invocations with different literal parameter values.
func isCacheableQuery(query *ast.Query) bool {
	cacheable := true
	forEachExpression(query, func(expr ast.Expression) {
		if fn, ok := expr.(*ast.Function); ok && nonDeterministicFunctions[fn.Name] {
			cacheable = false
		}
	})
	return cacheable
}

// forEachExpression invokes fn for every expression node in the query,
// including nested sub-expressions.
func forEachExpression(query *ast.Query, fn func(ast.Expression)) {
	var walkExpr func(e ast.Expression)
	walkExpr = func(e ast.Expression) {
		if e == nil {
			return
		}
		fn(e)
		switch v := e.(type) {
		case *ast.PropertyLookup:
			walkExpr(v.Expression)
		case *ast.LabelsTest:
			walkExpr(v.Expression)
		case *ast.Function:
			for _, arg := range v.Arguments {
				walkExpr(arg)
			}
		case *ast.Aggregation:
			walkExpr(v.Expression)
		case *ast.Binary:
			walkExpr(v.Left)
			walkExpr(v.Right)
		case *ast.Unary:
			walkExpr(v.Expression)
		case *ast.ListLiteral:
			for _, el := range v.Elements {
				walkExpr(el)
			}
		case *ast.MapLiteral:
			for _, pair := range v.Pairs {
				walkExpr(pair.Value)
			}
		}
	}
	walkPairs := func(pairs []ast.PropertyPair) {
		for _, pair := range pairs {
			walkExpr(pair.Value)
		}
	}
	walkPattern := func(p *ast.Pattern) {
		for _, atom := range p.Atoms {
			switch a := atom.(type) {
			case *ast.NodeAtom:
				walkPairs(a.Properties)
			case *ast.EdgeAtom:
				walkPairs(a.Properties)
			}
		}
	}
	walkProjection := func(items []*ast.NamedExpression, orderBy []ast.SortItem, skip, limit ast.Expression) {
		for _, item := range items {
			walkExpr(item.Expression)
		}
		for _, s := range orderBy {
			walkExpr(s.Expression)
		}
		walkExpr(skip)
		walkExpr(limit)
	}
	for _, clause := range query.Clauses {
		switch c := clause.(type) {
		case *ast.Match:
			for _, p := range c.Patterns {
				walkPattern(p)
			}
			if c.Where != nil {
				walkExpr(c.Where.Expression)
			}
		case *ast.Create:
			for _, p := range c.Patterns {
				walkPattern(p)
			}
		case *ast.Merge:
			walkPattern(c.Pattern)
		case *ast.Delete:
			for _, e := range c.Expressions {
				walkExpr(e)
			}
		case *ast.Set:
			for _, item := range c.Items {
				walkExpr(item.Property)
				walkExpr(item.Value)
			}
		case *ast.Remove:
			for _, p := range c.Properties {
				walkExpr(p)
			}
		case *ast.Unwind:
			walkExpr(c.Expression)
		case *ast.With:
			walkProjection(c.Items, c.OrderBy, c.Skip, c.Limit)
			if c.Where != nil {
				walkExpr(c.Where.Expression)
			}
		case *ast.Return:
			walkProjection(c.Items, c.OrderBy, c.Skip, c.Limit)
		}
	}
}
