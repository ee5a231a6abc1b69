package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/kvasir/pkg/ast"
	"github.com/orneryd/kvasir/pkg/parser"
)

// resolve parses text and runs symbol resolution over it.
func resolve(t *testing.T, text string) (*parser.Result, *ast.SymbolTable, error) {
	t.Helper()
	result, err := parser.NewParser().Parse(text)
	require.NoError(t, err)
	table := ast.NewSymbolTable()
	return result, table, Resolve(result.Query, table, nil)
}

func symbolOf(t *testing.T, table *ast.SymbolTable, node ast.Node) ast.Symbol {
	t.Helper()
	sym, ok := table.At(node)
	require.True(t, ok, "node has no symbol")
	return sym
}

func TestResolveCreatePath(t *testing.T) {
	result, table, err := resolve(t, "CREATE (a)-[b:KNOWS]->(c)")
	require.NoError(t, err)

	pattern := result.Query.Clauses[0].(*ast.Create).Patterns[0]
	aSym := symbolOf(t, table, pattern.Atoms[0].(*ast.NodeAtom).Variable)
	bSym := symbolOf(t, table, pattern.Atoms[1].(*ast.EdgeAtom).Variable)
	cSym := symbolOf(t, table, pattern.Atoms[2].(*ast.NodeAtom).Variable)

	assert.Equal(t, ast.SymbolVertex, aSym.Type)
	assert.Equal(t, ast.SymbolEdge, bSym.Type)
	assert.Equal(t, ast.SymbolVertex, cSym.Type)

	// Symbol ids are allocated in visit order and are distinct.
	assert.Equal(t, 0, aSym.ID)
	assert.Equal(t, 1, bSym.ID)
	assert.Equal(t, 2, cSym.ID)
	assert.Equal(t, 3, table.Len())
}

func TestResolveSharedVariableAcrossClauses(t *testing.T) {
	result, table, err := resolve(t, "MATCH (n) MATCH (n)-[:KNOWS]->(m) RETURN n, m")
	require.NoError(t, err)

	first := result.Query.Clauses[0].(*ast.Match).Patterns[0].Nodes()[0]
	second := result.Query.Clauses[1].(*ast.Match).Patterns[0].Nodes()[0]
	assert.Equal(t, symbolOf(t, table, first.Variable).ID, symbolOf(t, table, second.Variable).ID)
}

func TestResolveTypeConflict(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n)-[n]->(m) RETURN n")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrTypeMismatch, serr.Kind)
	assert.Equal(t, "n", serr.Name)
	assert.Contains(t, err.Error(), "already declared as Vertex")
}

func TestResolveCreateNodeRedeclaration(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n) CREATE (n)")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrRedeclaredVariable, serr.Kind)
	assert.Equal(t, "n", serr.Name)
}

func TestResolveCreatePathReusesBoundNodes(t *testing.T) {
	// Inside a multi-atom CREATE pattern the endpoints may be bound
	// already; only a single-node CREATE forbids reuse.
	_, _, err := resolve(t, "MATCH (a), (b) CREATE (a)-[:KNOWS]->(b)")
	require.NoError(t, err)
}

func TestResolveCreateEdgeRedeclaration(t *testing.T) {
	_, _, err := resolve(t, "MATCH (a)-[r]->(b) CREATE (a)-[r:KNOWS]->(b)")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrRedeclaredVariable, serr.Kind)
	assert.Equal(t, "r", serr.Name)
}

func TestResolveMergeEdgeMustBeFresh(t *testing.T) {
	_, _, err := resolve(t, "MATCH (a)-[r]->(b) MERGE (a)-[r:KNOWS]->(b)")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrRedeclaredVariable, serr.Kind)
}

func TestResolveUnboundVariable(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n) WHERE m.age > 1 RETURN n")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrUnboundVariable, serr.Kind)
	assert.Equal(t, "m", serr.Name)
}

func TestResolveWithNarrowsScope(t *testing.T) {
	// After WITH only the projected names survive.
	_, _, err := resolve(t, "MATCH (n) WITH n.age AS a RETURN n")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrUnboundVariable, serr.Kind)
	assert.Equal(t, "n", serr.Name)
}

func TestResolveWithAlias(t *testing.T) {
	result, table, err := resolve(t, "MATCH (n) WITH n AS m RETURN m")
	require.NoError(t, err)

	with := result.Query.Clauses[1].(*ast.With)
	aliasSym := symbolOf(t, table, with.Items[0])

	ret := result.Query.Clauses[2].(*ast.Return)
	useSym := symbolOf(t, table, ret.Items[0].Expression.(*ast.Identifier))
	assert.Equal(t, aliasSym.ID, useSym.ID)
}

func TestResolveWithWhereSeesNewScope(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n) WITH n.age AS a WHERE a > 1 RETURN a")
	require.NoError(t, err)

	_, _, err = resolve(t, "MATCH (n) WITH n.age AS a WHERE n.age > 1 RETURN a")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrUnboundVariable, serr.Kind)
}

func TestResolveReturnOrderBySeesBothScopes(t *testing.T) {
	// ORDER BY after RETURN may use the alias or the original variable.
	_, _, err := resolve(t, "MATCH (n) RETURN n.age AS a ORDER BY a")
	require.NoError(t, err)
	_, _, err = resolve(t, "MATCH (n) RETURN n.age AS a ORDER BY n.name")
	require.NoError(t, err)
}

func TestResolveNamedPath(t *testing.T) {
	result, table, err := resolve(t, "MATCH pth = (a)-[r]->(b) RETURN pth")
	require.NoError(t, err)

	pattern := result.Query.Clauses[0].(*ast.Match).Patterns[0]
	require.NotNil(t, pattern.Variable)
	sym := symbolOf(t, table, pattern.Variable)
	assert.Equal(t, ast.SymbolPath, sym.Type)

	// The path name may not shadow a pattern element.
	_, _, err = resolve(t, "MATCH a = (a)-[r]->(b) RETURN a")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrTypeMismatch, serr.Kind)
}

func TestResolveUnwindBindsVariable(t *testing.T) {
	result, table, err := resolve(t, "UNWIND [1, 2] AS x RETURN x")
	require.NoError(t, err)

	unwind := result.Query.Clauses[0].(*ast.Unwind)
	sym := symbolOf(t, table, unwind.As)
	assert.Equal(t, ast.SymbolAny, sym.Type)
}

func TestResolveNestedAggregation(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n) RETURN sum(avg(n.age))")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrNestedAggregation, serr.Kind)
}

func TestResolveAggregationInPattern(t *testing.T) {
	_, _, err := resolve(t, "MATCH (n {age: count(*)}) RETURN n")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrInvalidAggregation, serr.Kind)
}

func TestResolvePredefinedIdentifiers(t *testing.T) {
	result, err := parser.NewParser().Parse("MATCH (n) WHERE n.owner = actor RETURN n")
	require.NoError(t, err)

	// Without the predefined binding the name is unbound.
	table := ast.NewSymbolTable()
	rerr := Resolve(result.Query, table, nil)
	var serr *Error
	require.ErrorAs(t, rerr, &serr)
	assert.Equal(t, ErrUnboundVariable, serr.Kind)
	assert.Equal(t, "actor", serr.Name)

	// Re-parse: a failed resolution leaves the table unusable.
	result, err = parser.NewParser().Parse("MATCH (n) WHERE n.owner = actor RETURN n")
	require.NoError(t, err)
	actor := result.Storage.NewIdentifier("actor")
	table = ast.NewSymbolTable()
	require.NoError(t, Resolve(result.Query, table, []*ast.Identifier{actor}))

	sym := symbolOf(t, table, actor)
	assert.Equal(t, ast.SymbolAny, sym.Type)
	assert.Equal(t, 0, sym.ID, "predefined identifiers are bound first")
}

func TestResolvePropertyMapIsReferenceContext(t *testing.T) {
	// A name inside a property map refers to an existing binding and never
	// declares one.
	_, _, err := resolve(t, "MATCH (a) MATCH (b {friend: a}) RETURN b")
	require.NoError(t, err)

	_, _, err = resolve(t, "MATCH (b {friend: ghost}) RETURN b")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrUnboundVariable, serr.Kind)
	assert.Equal(t, "ghost", serr.Name)
}
