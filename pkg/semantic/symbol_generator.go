// Package semantic resolves variable scopes over a parsed query.
//
// Resolution is a single depth-first traversal that assigns a Symbol to
// every variable occurrence and performs simple semantic checks along the
// way: redeclaring a variable where that is not allowed, reusing a variable
// with a conflicting type expectation, nesting aggregations. The traversal
// fails fast; on error the symbol table must be considered garbage.
package semantic

import "github.com/orneryd/kvasir/pkg/ast"

// scope tracks where in the tree the traversal currently is and which names
// are bound. It exists only for the duration of one resolution pass.
type scope struct {
	inPattern bool
	inCreate  bool
	// inCreateNode is true when creating *only* a node, i.e. the CREATE
	// pattern consists of exactly one atom. Not equivalent to
	// inCreate && inNodeAtom.
	inCreateNode bool
	// inCreateEdge is a shortcut for inCreate && inEdgeAtom.
	inCreateEdge  bool
	inNodeAtom    bool
	inEdgeAtom    bool
	inPropertyMap bool
	inAggregation bool
	// with is the WITH clause currently being resolved, nil otherwise.
	with    *ast.With
	symbols map[string]ast.Symbol
}

// SymbolGenerator walks the syntax tree and fills the symbol table.
type SymbolGenerator struct {
	table *ast.SymbolTable
	scope scope
}

// Resolve assigns symbols for every variable in query, recording them in
// table. Predefined identifiers (from an enclosing procedure or trigger
// context) are bound in the outermost scope before the walk starts.
func Resolve(query *ast.Query, table *ast.SymbolTable, predefined []*ast.Identifier) error {
	g := &SymbolGenerator{table: table}
	g.scope.symbols = make(map[string]ast.Symbol)
	for _, ident := range predefined {
		sym := g.createSymbol(ident.Name, ast.SymbolAny)
		table.Associate(ident, sym)
	}
	for _, clause := range query.Clauses {
		if err := g.visitClause(clause); err != nil {
			return err
		}
	}
	return nil
}

func (g *SymbolGenerator) hasSymbol(name string) bool {
	_, ok := g.scope.symbols[name]
	return ok
}

// createSymbol allocates a fresh symbol and rebinds name to it, replacing
// any previous binding.
func (g *SymbolGenerator) createSymbol(name string, typ ast.SymbolType) ast.Symbol {
	sym := g.table.CreateSymbol(name, typ)
	g.scope.symbols[name] = sym
	return sym
}

// getOrCreateSymbol reuses the existing binding for name after checking its
// declared type against typ, or creates a fresh one if the name is unbound.
func (g *SymbolGenerator) getOrCreateSymbol(name string, typ ast.SymbolType) (ast.Symbol, error) {
	if sym, ok := g.scope.symbols[name]; ok {
		if !sym.Type.CompatibleWith(typ) {
			return ast.Symbol{}, &Error{Kind: ErrTypeMismatch, Name: name, Have: sym.Type, Want: typ}
		}
		return sym, nil
	}
	return g.createSymbol(name, typ), nil
}

func (g *SymbolGenerator) visitClause(clause ast.Clause) error {
	switch c := clause.(type) {
	case *ast.Match:
		for _, p := range c.Patterns {
			if err := g.visitPattern(p); err != nil {
				return err
			}
		}
		if c.Where != nil {
			return g.visitExpression(c.Where.Expression)
		}
		return nil
	case *ast.Create:
		g.scope.inCreate = true
		for _, p := range c.Patterns {
			if err := g.visitPattern(p); err != nil {
				g.scope.inCreate = false
				return err
			}
		}
		g.scope.inCreate = false
		return nil
	case *ast.Merge:
		// MERGE follows CREATE's declaration rules: node variables may be
		// reused (match side), edge variables must be fresh.
		g.scope.inCreate = true
		err := g.visitPattern(c.Pattern)
		g.scope.inCreate = false
		return err
	case *ast.Delete:
		for _, e := range c.Expressions {
			if err := g.visitExpression(e); err != nil {
				return err
			}
		}
		return nil
	case *ast.Set:
		for _, item := range c.Items {
			if err := g.visitExpression(item.Property); err != nil {
				return err
			}
			if err := g.visitExpression(item.Value); err != nil {
				return err
			}
		}
		return nil
	case *ast.Remove:
		for _, p := range c.Properties {
			if err := g.visitExpression(p); err != nil {
				return err
			}
		}
		return nil
	case *ast.Unwind:
		if err := g.visitExpression(c.Expression); err != nil {
			return err
		}
		sym := g.createSymbol(c.As.Name, ast.SymbolAny)
		g.table.Associate(c.As, sym)
		return nil
	case *ast.With:
		return g.visitWith(c)
	case *ast.Return:
		return g.visitReturn(c)
	default:
		return nil
	}
}

func (g *SymbolGenerator) visitPattern(p *ast.Pattern) error {
	g.scope.inPattern = true
	g.scope.inCreateNode = g.scope.inCreate && len(p.Atoms) == 1
	defer func() {
		g.scope.inPattern = false
		g.scope.inCreateNode = false
	}()
	for _, atom := range p.Atoms {
		var err error
		switch a := atom.(type) {
		case *ast.NodeAtom:
			err = g.visitNodeAtom(a)
		case *ast.EdgeAtom:
			err = g.visitEdgeAtom(a)
		}
		if err != nil {
			return err
		}
	}
	if p.Variable != nil {
		sym, err := g.getOrCreateSymbol(p.Variable.Name, ast.SymbolPath)
		if err != nil {
			return err
		}
		g.table.Associate(p.Variable, sym)
	}
	return nil
}

func (g *SymbolGenerator) visitNodeAtom(a *ast.NodeAtom) error {
	g.scope.inNodeAtom = true
	defer func() { g.scope.inNodeAtom = false }()
	if a.Variable != nil {
		name := a.Variable.Name
		if g.scope.inCreateNode && g.hasSymbol(name) {
			return &Error{Kind: ErrRedeclaredVariable, Name: name}
		}
		sym, err := g.getOrCreateSymbol(name, ast.SymbolVertex)
		if err != nil {
			return err
		}
		g.table.Associate(a.Variable, sym)
	}
	return g.visitProperties(a.Properties)
}

func (g *SymbolGenerator) visitEdgeAtom(a *ast.EdgeAtom) error {
	g.scope.inEdgeAtom = true
	g.scope.inCreateEdge = g.scope.inCreate
	defer func() {
		g.scope.inEdgeAtom = false
		g.scope.inCreateEdge = false
	}()
	if a.Variable != nil {
		name := a.Variable.Name
		// An edge being created must introduce a fresh variable; two edges
		// cannot share an identity.
		if g.scope.inCreateEdge && g.hasSymbol(name) {
			return &Error{Kind: ErrRedeclaredVariable, Name: name}
		}
		sym, err := g.getOrCreateSymbol(name, ast.SymbolEdge)
		if err != nil {
			return err
		}
		g.table.Associate(a.Variable, sym)
	}
	return g.visitProperties(a.Properties)
}

// visitProperties resolves the value expressions of a property map. Names
// inside a property map are references, not declarations, even when the map
// sits inside a pattern.
func (g *SymbolGenerator) visitProperties(pairs []ast.PropertyPair) error {
	g.scope.inPropertyMap = true
	defer func() { g.scope.inPropertyMap = false }()
	for _, pair := range pairs {
		if err := g.visitExpression(pair.Value); err != nil {
			return err
		}
	}
	return nil
}

func (g *SymbolGenerator) visitWith(w *ast.With) error {
	g.scope.with = w
	// Projected expressions are evaluated against the bindings established
	// by earlier clauses.
	for _, item := range w.Items {
		if err := g.visitExpression(item.Expression); err != nil {
			g.scope.with = nil
			return err
		}
	}
	g.setWithSymbols(w)
	g.scope.with = nil
	// ORDER BY and WHERE run after the projection and see only the new
	// bindings.
	for _, s := range w.OrderBy {
		if err := g.visitExpression(s.Expression); err != nil {
			return err
		}
	}
	if w.Where != nil {
		return g.visitExpression(w.Where.Expression)
	}
	return nil
}

// setWithSymbols discards all current bindings and establishes fresh ones
// for the names projected by the WITH clause. This is the only construct
// that narrows the visible scope.
func (g *SymbolGenerator) setWithSymbols(w *ast.With) {
	fresh := make(map[string]ast.Symbol, len(w.Items))
	for _, item := range w.Items {
		sym := g.table.CreateSymbol(item.Name, ast.SymbolAny)
		g.table.Associate(item, sym)
		fresh[item.Name] = sym
	}
	g.scope.symbols = fresh
}

func (g *SymbolGenerator) visitReturn(r *ast.Return) error {
	for _, item := range r.Items {
		if err := g.visitExpression(item.Expression); err != nil {
			return err
		}
	}
	// Finalize the output bindings. Unlike WITH this adds the projected
	// names without discarding earlier ones, so ORDER BY can refer to both.
	for _, item := range r.Items {
		sym := g.table.CreateSymbol(item.Name, ast.SymbolAny)
		g.table.Associate(item, sym)
		g.scope.symbols[item.Name] = sym
	}
	for _, s := range r.OrderBy {
		if err := g.visitExpression(s.Expression); err != nil {
			return err
		}
	}
	if r.Skip != nil {
		if err := g.visitExpression(r.Skip); err != nil {
			return err
		}
	}
	if r.Limit != nil {
		if err := g.visitExpression(r.Limit); err != nil {
			return err
		}
	}
	return nil
}

func (g *SymbolGenerator) visitExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Identifier:
		sym, ok := g.scope.symbols[e.Name]
		if !ok {
			return &Error{Kind: ErrUnboundVariable, Name: e.Name}
		}
		g.table.Associate(e, sym)
		return nil
	case *ast.Literal, *ast.Parameter:
		return nil
	case *ast.PropertyLookup:
		return g.visitExpression(e.Expression)
	case *ast.LabelsTest:
		return g.visitExpression(e.Expression)
	case *ast.Function:
		for _, arg := range e.Arguments {
			if err := g.visitExpression(arg); err != nil {
				return err
			}
		}
		return nil
	case *ast.Aggregation:
		if g.scope.inAggregation {
			return &Error{Kind: ErrNestedAggregation}
		}
		if g.scope.inPattern {
			// Aggregation results cannot participate in patterns.
			return &Error{Kind: ErrInvalidAggregation}
		}
		g.scope.inAggregation = true
		defer func() { g.scope.inAggregation = false }()
		if e.Expression != nil {
			return g.visitExpression(e.Expression)
		}
		return nil
	case *ast.Binary:
		if err := g.visitExpression(e.Left); err != nil {
			return err
		}
		return g.visitExpression(e.Right)
	case *ast.Unary:
		return g.visitExpression(e.Expression)
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			if err := g.visitExpression(el); err != nil {
				return err
			}
		}
		return nil
	case *ast.MapLiteral:
		for _, pair := range e.Pairs {
			if err := g.visitExpression(pair.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
