// Package ast defines the syntax tree for Kvasir's Cypher dialect.
//
// All nodes of one parsed query live in a single Storage arena. The arena
// groups node lifetime: a cached query or a logical plan holds the Storage,
// and every operator reference into the tree stays valid for as long as any
// holder keeps the Storage reachable. Nodes are never shared between arenas.
package ast

// Node is implemented by every syntax tree node. The set of node kinds is
// closed; traversals switch exhaustively over the concrete types.
type Node interface {
	node()
}

// Expression is a node that evaluates to a value at execution time.
type Expression interface {
	Node
	expr()
}

// Clause is a top-level query clause (MATCH, CREATE, WITH, RETURN, ...).
type Clause interface {
	Node
	clause()
}

// PatternAtom is one element of a pattern: a node atom or an edge atom.
type PatternAtom interface {
	Node
	atom()
}

// Storage owns every node of one parsed query. Constructors allocate nodes
// and record them so the arena can report its size and so ownership of a
// whole tree is expressed by holding the one Storage value.
type Storage struct {
	nodes []Node
}

// NewStorage returns an empty arena.
func NewStorage() *Storage {
	return &Storage{}
}

// Size returns the number of nodes allocated in the arena.
func (s *Storage) Size() int {
	return len(s.nodes)
}

func (s *Storage) add(n Node) {
	s.nodes = append(s.nodes, n)
}

// Query is the root of a parsed query: an ordered list of clauses.
type Query struct {
	Clauses []Clause
}

func (s *Storage) NewQuery() *Query {
	q := &Query{}
	s.add(q)
	return q
}

// EdgeDirection is the orientation of an edge atom inside a pattern.
type EdgeDirection int

const (
	// EdgeBoth matches -[..]- patterns (either direction).
	EdgeBoth EdgeDirection = iota
	// EdgeOut matches -[..]-> patterns.
	EdgeOut
	// EdgeIn matches <-[..]- patterns.
	EdgeIn
)

func (d EdgeDirection) String() string {
	switch d {
	case EdgeOut:
		return "out"
	case EdgeIn:
		return "in"
	default:
		return "both"
	}
}

// PropertyPair is one key/value entry of a property map. Pairs are kept as
// a slice, not a Go map, so traversal and planning order is deterministic.
type PropertyPair struct {
	Key   string
	Value Expression
}

// Pattern is a linear path pattern: node, edge, node, edge, node...
// Atoms always alternate and both ends are node atoms. Variable is the
// path name for `p = (a)-[r]->(b)` patterns, nil otherwise.
type Pattern struct {
	Variable *Identifier
	Atoms    []PatternAtom
}

func (s *Storage) NewPattern(atoms ...PatternAtom) *Pattern {
	p := &Pattern{Atoms: atoms}
	s.add(p)
	return p
}

// Nodes returns the node atoms of the pattern in order.
func (p *Pattern) Nodes() []*NodeAtom {
	out := make([]*NodeAtom, 0, len(p.Atoms)/2+1)
	for _, a := range p.Atoms {
		if n, ok := a.(*NodeAtom); ok {
			out = append(out, n)
		}
	}
	return out
}

// NodeAtom is a node element of a pattern: (v:Label {key: value}).
// Variable is nil for anonymous atoms.
type NodeAtom struct {
	Variable   *Identifier
	Labels     []string
	Properties []PropertyPair
}

func (s *Storage) NewNodeAtom(variable *Identifier) *NodeAtom {
	n := &NodeAtom{Variable: variable}
	s.add(n)
	return n
}

// EdgeAtom is an edge element of a pattern: -[v:TYPE {key: value}]->.
type EdgeAtom struct {
	Variable   *Identifier
	Direction  EdgeDirection
	Types      []string
	Properties []PropertyPair
}

func (s *Storage) NewEdgeAtom(variable *Identifier, dir EdgeDirection) *EdgeAtom {
	e := &EdgeAtom{Variable: variable, Direction: dir}
	s.add(e)
	return e
}

// Match is a MATCH or OPTIONAL MATCH clause.
type Match struct {
	Optional bool
	Patterns []*Pattern
	Where    *Where
}

func (s *Storage) NewMatch(optional bool) *Match {
	m := &Match{Optional: optional}
	s.add(m)
	return m
}

// Create is a CREATE clause.
type Create struct {
	Patterns []*Pattern
}

func (s *Storage) NewCreate() *Create {
	c := &Create{}
	s.add(c)
	return c
}

// Merge is a MERGE clause over a single pattern.
type Merge struct {
	Pattern *Pattern
}

func (s *Storage) NewMerge(pattern *Pattern) *Merge {
	m := &Merge{Pattern: pattern}
	s.add(m)
	return m
}

// Delete is a DELETE or DETACH DELETE clause.
type Delete struct {
	Detach      bool
	Expressions []Expression
}

func (s *Storage) NewDelete(detach bool) *Delete {
	d := &Delete{Detach: detach}
	s.add(d)
	return d
}

// SetItem assigns Value to one property: n.key = value.
type SetItem struct {
	Property *PropertyLookup
	Value    Expression
}

// Set is a SET clause.
type Set struct {
	Items []SetItem
}

func (s *Storage) NewSet() *Set {
	c := &Set{}
	s.add(c)
	return c
}

// Remove is a REMOVE clause over property lookups.
type Remove struct {
	Properties []*PropertyLookup
}

func (s *Storage) NewRemove() *Remove {
	r := &Remove{}
	s.add(r)
	return r
}

// Unwind is an UNWIND <list> AS <name> clause.
type Unwind struct {
	Expression Expression
	As         *Identifier
}

func (s *Storage) NewUnwind(expr Expression, as *Identifier) *Unwind {
	u := &Unwind{Expression: expr, As: as}
	s.add(u)
	return u
}

// Where is the filter attached to MATCH or WITH.
type Where struct {
	Expression Expression
}

func (s *Storage) NewWhere(expr Expression) *Where {
	w := &Where{Expression: expr}
	s.add(w)
	return w
}

// SortItem is one ORDER BY entry.
type SortItem struct {
	Expression Expression
	Descending bool
}

// With is a WITH clause. It is the only construct that narrows scope:
// after WITH, only the projected names remain visible.
type With struct {
	Distinct bool
	Items    []*NamedExpression
	OrderBy  []SortItem
	Skip     Expression
	Limit    Expression
	Where    *Where
}

func (s *Storage) NewWith(distinct bool) *With {
	w := &With{Distinct: distinct}
	s.add(w)
	return w
}

// Return is the final projection clause.
type Return struct {
	Distinct bool
	Items    []*NamedExpression
	OrderBy  []SortItem
	Skip     Expression
	Limit    Expression
}

func (s *Storage) NewReturn(distinct bool) *Return {
	r := &Return{Distinct: distinct}
	s.add(r)
	return r
}

// NamedExpression is a projection item: expression plus its output name.
// The name is either an explicit alias or the expression's source text.
type NamedExpression struct {
	Name       string
	Expression Expression
}

func (s *Storage) NewNamedExpression(name string, expr Expression) *NamedExpression {
	n := &NamedExpression{Name: name, Expression: expr}
	s.add(n)
	return n
}

// Identifier is a variable reference. Every occurrence is a distinct node;
// the symbol table associates occurrences with their resolved Symbol.
type Identifier struct {
	Name string
}

func (s *Storage) NewIdentifier(name string) *Identifier {
	i := &Identifier{Name: name}
	s.add(i)
	return i
}

// Literal is a constant value: int64, float64, string, bool or nil.
type Literal struct {
	Value any
}

func (s *Storage) NewLiteral(value any) *Literal {
	l := &Literal{Value: value}
	s.add(l)
	return l
}

// Parameter is a $name placeholder bound at execution time.
type Parameter struct {
	Name string
}

func (s *Storage) NewParameter(name string) *Parameter {
	p := &Parameter{Name: name}
	s.add(p)
	return p
}

// PropertyLookup is expr.property.
type PropertyLookup struct {
	Expression Expression
	Property   string
}

func (s *Storage) NewPropertyLookup(expr Expression, property string) *PropertyLookup {
	p := &PropertyLookup{Expression: expr, Property: property}
	s.add(p)
	return p
}

// LabelsTest is expr:Label, a label predicate inside WHERE.
type LabelsTest struct {
	Expression Expression
	Labels     []string
}

func (s *Storage) NewLabelsTest(expr Expression, labels []string) *LabelsTest {
	l := &LabelsTest{Expression: expr, Labels: labels}
	s.add(l)
	return l
}

// Function is a non-aggregating function call.
type Function struct {
	Name      string
	Arguments []Expression
}

func (s *Storage) NewFunction(name string, args []Expression) *Function {
	f := &Function{Name: name, Arguments: args}
	s.add(f)
	return f
}

// AggregationOp enumerates the aggregation functions.
type AggregationOp int

const (
	AggregationCount AggregationOp = iota
	AggregationSum
	AggregationAvg
	AggregationMin
	AggregationMax
	AggregationCollect
)

func (op AggregationOp) String() string {
	switch op {
	case AggregationCount:
		return "count"
	case AggregationSum:
		return "sum"
	case AggregationAvg:
		return "avg"
	case AggregationMin:
		return "min"
	case AggregationMax:
		return "max"
	case AggregationCollect:
		return "collect"
	default:
		return "unknown"
	}
}

// Aggregation is an aggregating function call. Expression is nil for
// count(*).
type Aggregation struct {
	Op         AggregationOp
	Expression Expression
	Distinct   bool
}

func (s *Storage) NewAggregation(op AggregationOp, expr Expression, distinct bool) *Aggregation {
	a := &Aggregation{Op: op, Expression: expr, Distinct: distinct}
	s.add(a)
	return a
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpIn
	OpStartsWith
	OpEndsWith
	OpContains
)

func (op BinaryOp) String() string {
	switch op {
	case OpOr:
		return "OR"
	case OpAnd:
		return "AND"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulo:
		return "%"
	case OpIn:
		return "IN"
	case OpStartsWith:
		return "STARTS WITH"
	case OpEndsWith:
		return "ENDS WITH"
	case OpContains:
		return "CONTAINS"
	default:
		return "?"
	}
}

// Binary is a binary operator expression.
type Binary struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (s *Storage) NewBinary(op BinaryOp, left, right Expression) *Binary {
	b := &Binary{Op: op, Left: left, Right: right}
	s.add(b)
	return b
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpIsNull
	OpIsNotNull
)

// Unary is a unary operator expression.
type Unary struct {
	Op         UnaryOp
	Expression Expression
}

func (s *Storage) NewUnary(op UnaryOp, expr Expression) *Unary {
	u := &Unary{Op: op, Expression: expr}
	s.add(u)
	return u
}

// ListLiteral is [e1, e2, ...].
type ListLiteral struct {
	Elements []Expression
}

func (s *Storage) NewListLiteral(elements []Expression) *ListLiteral {
	l := &ListLiteral{Elements: elements}
	s.add(l)
	return l
}

// MapLiteral is {k1: e1, k2: e2, ...}. Pairs preserve source order.
type MapLiteral struct {
	Pairs []PropertyPair
}

func (s *Storage) NewMapLiteral(pairs []PropertyPair) *MapLiteral {
	m := &MapLiteral{Pairs: pairs}
	s.add(m)
	return m
}

func (*Query) node()           {}
func (*Pattern) node()         {}
func (*NodeAtom) node()        {}
func (*EdgeAtom) node()        {}
func (*Match) node()           {}
func (*Create) node()          {}
func (*Merge) node()           {}
func (*Delete) node()          {}
func (*Set) node()             {}
func (*Remove) node()          {}
func (*Unwind) node()          {}
func (*Where) node()           {}
func (*With) node()            {}
func (*Return) node()          {}
func (*NamedExpression) node() {}
func (*Identifier) node()      {}
func (*Literal) node()         {}
func (*Parameter) node()       {}
func (*PropertyLookup) node()  {}
func (*LabelsTest) node()      {}
func (*Function) node()        {}
func (*Aggregation) node()     {}
func (*Binary) node()          {}
func (*Unary) node()           {}
func (*ListLiteral) node()     {}
func (*MapLiteral) node()      {}

func (*Match) clause()  {}
func (*Create) clause() {}
func (*Merge) clause()  {}
func (*Delete) clause() {}
func (*Set) clause()    {}
func (*Remove) clause() {}
func (*Unwind) clause() {}
func (*With) clause()   {}
func (*Return) clause() {}

func (*NodeAtom) atom() {}
func (*EdgeAtom) atom() {}

func (*Identifier) expr()     {}
func (*Literal) expr()        {}
func (*Parameter) expr()      {}
func (*PropertyLookup) expr() {}
func (*LabelsTest) expr()     {}
func (*Function) expr()       {}
func (*Aggregation) expr()    {}
func (*Binary) expr()         {}
func (*Unary) expr()          {}
func (*ListLiteral) expr()    {}
func (*MapLiteral) expr()     {}
