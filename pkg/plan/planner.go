package plan

import "github.com/orneryd/kvasir/pkg/ast"

// Generator produces a logical plan from a resolved query. The query, its
// arena and its symbol table are read-only inputs; generators allocate
// nothing into the arena, so one resolved query can be planned by several
// goroutines at once.
//
// Predefined identifiers name values bound by an enclosing context (for
// example a procedure argument). They arrive already resolved; handing the
// generator an identifier the resolver never saw is a PlanningError.
type Generator interface {
	Generate(query *ast.Query, storage *ast.Storage, table *ast.SymbolTable,
		predefined []*ast.Identifier) (LogicalPlan, error)
}

// NewGenerator selects the planning strategy: cost-based search when
// costBased is set, deterministic rule-based construction otherwise.
func NewGenerator(costBased bool, stats StatsProvider) Generator {
	if costBased {
		return &CostBased{Stats: stats}
	}
	return &RuleBased{Stats: stats}
}

// RuleBased builds a single plan by expanding every pattern left to right
// (starting from an already-bound element when one exists). Cheap to run
// and fully predictable; the reported cost is the estimate of that one
// plan.
type RuleBased struct {
	Stats StatsProvider
}

func (g *RuleBased) Generate(query *ast.Query, storage *ast.Storage, table *ast.SymbolTable,
	predefined []*ast.Identifier) (LogicalPlan, error) {
	return buildQuery(query, storage, table, predefined, g.Stats, chooseFirstBound)
}

// CostBased tries every node atom of each pattern as the expansion start,
// estimates the cost of each candidate and commits the cheapest. The
// search is greedy per pattern, which keeps it linear in pattern count
// while still picking up the large wins (scanning the selective side of a
// pattern first).
type CostBased struct {
	Stats StatsProvider
}

func (g *CostBased) Generate(query *ast.Query, storage *ast.Storage, table *ast.SymbolTable,
	predefined []*ast.Identifier) (LogicalPlan, error) {
	return buildQuery(query, storage, table, predefined, g.Stats, chooseCheapest)
}

// startChooser picks which node atom of a pattern the builder expands from.
type startChooser func(b *builder, p *ast.Pattern) (int, error)

func chooseFirstBound(b *builder, p *ast.Pattern) (int, error) {
	nodes := p.Nodes()
	for i, atom := range nodes {
		sym, err := b.symbolFor(atom.Variable)
		if err != nil {
			return 0, err
		}
		if b.bound[sym.ID] {
			return i, nil
		}
	}
	return 0, nil
}

func chooseCheapest(b *builder, p *ast.Pattern) (int, error) {
	nodes := p.Nodes()
	best, bestCost := 0, 0.0
	for i := range nodes {
		trial := b.clone()
		if err := trial.planPattern(p, i); err != nil {
			return 0, err
		}
		delta := trial.cost - b.cost
		if i == 0 || delta < bestCost {
			best, bestCost = i, delta
		}
	}
	return best, nil
}

func buildQuery(query *ast.Query, storage *ast.Storage, table *ast.SymbolTable,
	predefined []*ast.Identifier, stats StatsProvider, choose startChooser) (LogicalPlan, error) {
	b := newBuilder(table, stats, choose)
	for _, ident := range predefined {
		sym, ok := table.At(ident)
		if !ok {
			return nil, planningErrorf("unresolved predefined identifier `%s`", ident.Name)
		}
		b.bound[sym.ID] = true
	}
	for _, clause := range query.Clauses {
		if err := b.planClause(clause); err != nil {
			return nil, err
		}
	}
	return &builtPlan{root: b.root, cost: b.cost, table: table, storage: storage}, nil
}

// builder accumulates the operator chain together with a running
// cardinality and cost estimate. bound tracks which symbols already carry
// a value when the next operator runs.
type builder struct {
	table  *ast.SymbolTable
	stats  StatsProvider
	choose startChooser
	root   LogicalOperator
	bound  map[int]bool
	card   float64
	cost   float64
}

func newBuilder(table *ast.SymbolTable, stats StatsProvider, choose startChooser) *builder {
	return &builder{
		table:  table,
		stats:  stats,
		choose: choose,
		root:   &Once{},
		bound:  make(map[int]bool),
		card:   1,
	}
}

func (b *builder) clone() *builder {
	nb := *b
	nb.bound = make(map[int]bool, len(b.bound))
	for id := range b.bound {
		nb.bound[id] = true
	}
	return &nb
}

// branch returns a builder for a sub-plan that runs once per input row,
// sharing the current bindings but starting from its own Once.
func (b *builder) branch() *builder {
	nb := b.clone()
	nb.root = &Once{}
	nb.card = 1
	nb.cost = 0
	return nb
}

func (b *builder) in() singleInput {
	return singleInput{in: b.root}
}

// emit installs op as the new root and charges coeff per row at the
// post-operator cardinality b.card * cardFactor.
func (b *builder) emit(op LogicalOperator, coeff, cardFactor float64) {
	b.root = op
	b.card *= cardFactor
	if b.card < 1 {
		b.card = 1
	}
	b.cost += coeff * b.card
}

func (b *builder) symbolFor(ident *ast.Identifier) (ast.Symbol, error) {
	sym, ok := b.table.At(ident)
	if !ok {
		return ast.Symbol{}, planningErrorf("identifier `%s` has no symbol", ident.Name)
	}
	return sym, nil
}

func (b *builder) planClause(clause ast.Clause) error {
	switch c := clause.(type) {
	case *ast.Match:
		return b.planMatch(c)
	case *ast.Create:
		for _, p := range c.Patterns {
			if err := b.planCreatePattern(p); err != nil {
				return err
			}
		}
		return nil
	case *ast.Merge:
		return b.planMerge(c)
	case *ast.Delete:
		b.emit(&Delete{singleInput: b.in(), Expressions: c.Expressions, Detach: c.Detach}, costWrite, 1)
		return nil
	case *ast.Set:
		for _, item := range c.Items {
			b.emit(&SetProperty{singleInput: b.in(), Property: item.Property, Value: item.Value}, costWrite, 1)
		}
		return nil
	case *ast.Remove:
		for _, prop := range c.Properties {
			b.emit(&RemoveProperty{singleInput: b.in(), Property: prop}, costWrite, 1)
		}
		return nil
	case *ast.Unwind:
		sym, err := b.symbolFor(c.As)
		if err != nil {
			return err
		}
		b.emit(&Unwind{singleInput: b.in(), Expression: c.Expression, Symbol: sym}, costUnwind, cardUnwindElements)
		b.bound[sym.ID] = true
		return nil
	case *ast.With:
		return b.planProjection(c.Items, c.Distinct, c.OrderBy, c.Skip, c.Limit, c.Where, true)
	case *ast.Return:
		return b.planProjection(c.Items, c.Distinct, c.OrderBy, c.Skip, c.Limit, nil, false)
	default:
		return planningErrorf("unsupported clause %T", clause)
	}
}

func (b *builder) planMatch(m *ast.Match) error {
	if m.Optional {
		branch := b.branch()
		for _, p := range m.Patterns {
			start, err := branch.choose(branch, p)
			if err != nil {
				return err
			}
			if err := branch.planPattern(p, start); err != nil {
				return err
			}
		}
		if m.Where != nil {
			branch.emit(&Filter{singleInput: branch.in(), Condition: m.Where.Expression}, costFilter, cardFilterSelectivity)
		}
		b.root = &Optional{singleInput: b.in(), Branch: branch.root}
		b.cost += branch.cost * b.card
		b.card *= branch.card
		b.bound = branch.bound
		return nil
	}
	for _, p := range m.Patterns {
		start, err := b.choose(b, p)
		if err != nil {
			return err
		}
		if err := b.planPattern(p, start); err != nil {
			return err
		}
	}
	if m.Where != nil {
		b.emit(&Filter{singleInput: b.in(), Condition: m.Where.Expression}, costFilter, cardFilterSelectivity)
	}
	return nil
}

// planPattern plans one linear pattern reading from the node atom at index
// start, expanding right to the end and then left to the beginning.
func (b *builder) planPattern(p *ast.Pattern, start int) error {
	nodes := p.Nodes()
	if len(nodes) == 0 {
		return planningErrorf("pattern without node atoms")
	}
	if err := b.planReadNode(nodes[start]); err != nil {
		return err
	}
	for i := start; i+1 < len(nodes); i++ {
		edge := p.Atoms[2*i+1].(*ast.EdgeAtom)
		if err := b.planExpand(nodes[i], edge, nodes[i+1], false); err != nil {
			return err
		}
	}
	for i := start; i > 0; i-- {
		edge := p.Atoms[2*i-1].(*ast.EdgeAtom)
		if err := b.planExpand(nodes[i], edge, nodes[i-1], true); err != nil {
			return err
		}
	}
	return b.constructNamedPath(p)
}

// constructNamedPath materializes the path value for `p = (...)` patterns
// once all of the pattern's symbols are bound.
func (b *builder) constructNamedPath(p *ast.Pattern) error {
	if p.Variable == nil {
		return nil
	}
	pathSym, err := b.symbolFor(p.Variable)
	if err != nil {
		return err
	}
	syms := make([]ast.Symbol, 0, len(p.Atoms))
	for _, atom := range p.Atoms {
		var v *ast.Identifier
		switch a := atom.(type) {
		case *ast.NodeAtom:
			v = a.Variable
		case *ast.EdgeAtom:
			v = a.Variable
		}
		sym, err := b.symbolFor(v)
		if err != nil {
			return err
		}
		syms = append(syms, sym)
	}
	b.emit(&ConstructNamedPath{singleInput: b.in(), Path: pathSym, Symbols: syms}, costDefault, 1)
	b.bound[pathSym.ID] = true
	return nil
}

func (b *builder) planReadNode(atom *ast.NodeAtom) error {
	sym, err := b.symbolFor(atom.Variable)
	if err != nil {
		return err
	}
	if !b.bound[sym.ID] {
		if len(atom.Labels) > 0 {
			label := atom.Labels[0]
			b.emit(&ScanAllByLabel{singleInput: b.in(), Symbol: sym, Label: label},
				costScanAllByLabel, float64(b.stats.VertexCountWithLabel(label)))
			b.filterExtraLabels(sym, atom.Labels[1:])
		} else {
			b.emit(&ScanAll{singleInput: b.in(), Symbol: sym}, costScanAll, float64(b.stats.VertexCount()))
		}
		b.bound[sym.ID] = true
	} else if len(atom.Labels) > 0 {
		b.filterExtraLabels(sym, atom.Labels)
	}
	return b.filterProperties(sym, atom.Properties)
}

func (b *builder) planExpand(from *ast.NodeAtom, edge *ast.EdgeAtom, to *ast.NodeAtom, reverse bool) error {
	fromSym, err := b.symbolFor(from.Variable)
	if err != nil {
		return err
	}
	edgeSym, err := b.symbolFor(edge.Variable)
	if err != nil {
		return err
	}
	toSym, err := b.symbolFor(to.Variable)
	if err != nil {
		return err
	}
	dir := edge.Direction
	if reverse {
		switch dir {
		case ast.EdgeOut:
			dir = ast.EdgeIn
		case ast.EdgeIn:
			dir = ast.EdgeOut
		}
	}
	existing := b.bound[toSym.ID]
	factor := cardExpandDegree
	if existing {
		factor = cardFilterSelectivity
	}
	b.emit(&Expand{
		singleInput:  b.in(),
		From:         fromSym,
		Edge:         edgeSym,
		To:           toSym,
		Direction:    dir,
		Types:        edge.Types,
		ExistingNode: existing,
	}, costExpand, factor)
	b.bound[edgeSym.ID] = true
	b.bound[toSym.ID] = true
	if !existing {
		b.filterExtraLabels(toSym, to.Labels)
	}
	if err := b.filterProperties(edgeSym, edge.Properties); err != nil {
		return err
	}
	if !existing {
		return b.filterProperties(toSym, to.Properties)
	}
	return nil
}

func (b *builder) filterExtraLabels(sym ast.Symbol, labels []string) {
	if len(labels) == 0 {
		return
	}
	filters := make([]LabelFilter, len(labels))
	for i, label := range labels {
		filters[i] = LabelFilter{Symbol: sym, Label: label}
	}
	b.emit(&Filter{singleInput: b.in(), Labels: filters}, costFilter, cardFilterSelectivity)
}

func (b *builder) filterProperties(sym ast.Symbol, pairs []ast.PropertyPair) error {
	if len(pairs) == 0 {
		return nil
	}
	filters := make([]PropertyFilter, len(pairs))
	for i, pair := range pairs {
		filters[i] = PropertyFilter{Symbol: sym, Property: pair.Key, Value: pair.Value}
	}
	b.emit(&Filter{singleInput: b.in(), Properties: filters}, costFilter, cardFilterSelectivity)
	return nil
}

func (b *builder) planCreatePattern(p *ast.Pattern) error {
	nodes := p.Nodes()
	if len(p.Atoms) == 1 {
		sym, err := b.symbolFor(nodes[0].Variable)
		if err != nil {
			return err
		}
		b.emit(&CreateNode{singleInput: b.in(), Atom: nodes[0]}, costWrite, 1)
		b.bound[sym.ID] = true
		return b.constructNamedPath(p)
	}
	for i := 0; i+1 < len(nodes); i++ {
		edge := p.Atoms[2*i+1].(*ast.EdgeAtom)
		fromSym, err := b.symbolFor(nodes[i].Variable)
		if err != nil {
			return err
		}
		toSym, err := b.symbolFor(nodes[i+1].Variable)
		if err != nil {
			return err
		}
		edgeSym, err := b.symbolFor(edge.Variable)
		if err != nil {
			return err
		}
		b.emit(&CreateExpand{
			singleInput:  b.in(),
			From:         nodes[i],
			Edge:         edge,
			To:           nodes[i+1],
			ExistingFrom: b.bound[fromSym.ID],
			ExistingTo:   b.bound[toSym.ID],
		}, costWrite, 1)
		b.bound[fromSym.ID] = true
		b.bound[toSym.ID] = true
		b.bound[edgeSym.ID] = true
	}
	return b.constructNamedPath(p)
}

func (b *builder) planMerge(m *ast.Merge) error {
	match := b.branch()
	start, err := match.choose(match, m.Pattern)
	if err != nil {
		return err
	}
	if err := match.planPattern(m.Pattern, start); err != nil {
		return err
	}
	create := b.branch()
	if err := create.planCreatePattern(m.Pattern); err != nil {
		return err
	}
	b.root = &Merge{singleInput: b.in(), MatchBranch: match.root, CreateBranch: create.root}
	b.cost += (match.cost + create.cost) * b.card
	b.bound = match.bound
	return nil
}

func (b *builder) planProjection(items []*ast.NamedExpression, distinct bool,
	orderBy []ast.SortItem, skip, limit ast.Expression, where *ast.Where, narrowScope bool) error {
	elements, groupBy := collectAggregations(items)
	if len(elements) > 0 {
		b.emit(&Aggregate{singleInput: b.in(), Elements: elements, GroupBy: groupBy},
			costAggregate, cardFilterSelectivity)
	}
	b.emit(&Produce{singleInput: b.in(), Items: items}, costDefault, 1)
	if distinct {
		b.emit(&Distinct{singleInput: b.in()}, costDefault, cardFilterSelectivity)
	}
	if len(orderBy) > 0 {
		b.emit(&OrderBy{singleInput: b.in(), Items: orderBy}, costOrderBy, 1)
	}
	if skip != nil {
		b.emit(&Skip{singleInput: b.in(), Expression: skip}, costDefault, 1)
	}
	if limit != nil {
		b.emit(&Limit{singleInput: b.in(), Expression: limit}, costDefault, 1)
	}
	if where != nil {
		b.emit(&Filter{singleInput: b.in(), Condition: where.Expression}, costFilter, cardFilterSelectivity)
	}
	if narrowScope {
		// After WITH only the projected symbols remain bound.
		fresh := make(map[int]bool, len(items))
		for _, item := range items {
			if sym, ok := b.table.At(item); ok {
				fresh[sym.ID] = true
			}
		}
		b.bound = fresh
	}
	return nil
}

// collectAggregations walks the projection expressions and splits them into
// the aggregations to compute and the group-by expressions.
func collectAggregations(items []*ast.NamedExpression) ([]AggregateElement, []ast.Expression) {
	var elements []AggregateElement
	var groupBy []ast.Expression
	for _, item := range items {
		found := findAggregations(item.Expression)
		if len(found) == 0 {
			groupBy = append(groupBy, item.Expression)
			continue
		}
		for _, agg := range found {
			elements = append(elements, AggregateElement{Aggregation: agg})
		}
	}
	if len(elements) == 0 {
		return nil, nil
	}
	return elements, groupBy
}

func findAggregations(expr ast.Expression) []*ast.Aggregation {
	var out []*ast.Aggregation
	var walk func(e ast.Expression)
	walk = func(e ast.Expression) {
		switch v := e.(type) {
		case *ast.Aggregation:
			out = append(out, v)
			if v.Expression != nil {
				walk(v.Expression)
			}
		case *ast.Binary:
			walk(v.Left)
			walk(v.Right)
		case *ast.Unary:
			walk(v.Expression)
		case *ast.PropertyLookup:
			walk(v.Expression)
		case *ast.LabelsTest:
			walk(v.Expression)
		case *ast.Function:
			for _, arg := range v.Arguments {
				walk(arg)
			}
		case *ast.ListLiteral:
			for _, el := range v.Elements {
				walk(el)
			}
		case *ast.MapLiteral:
			for _, pair := range v.Pairs {
				walk(pair.Value)
			}
		}
	}
	walk(expr)
	return out
}
