package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/kvasir/pkg/ast"
)

func parse(t *testing.T, text string) *Result {
	t.Helper()
	result, err := NewParser().Parse(text)
	require.NoError(t, err)
	return result
}

func TestParseMatchReturn(t *testing.T) {
	result := parse(t, `MATCH (n:Person) WHERE n.age > 21 RETURN n.name AS name`)
	require.Len(t, result.Query.Clauses, 2)

	match, ok := result.Query.Clauses[0].(*ast.Match)
	require.True(t, ok)
	assert.False(t, match.Optional)
	require.Len(t, match.Patterns, 1)

	nodes := match.Patterns[0].Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "n", nodes[0].Variable.Name)
	assert.Equal(t, []string{"Person"}, nodes[0].Labels)

	require.NotNil(t, match.Where)
	cmp, ok := match.Where.Expression.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpGreater, cmp.Op)

	ret, ok := result.Query.Clauses[1].(*ast.Return)
	require.True(t, ok)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, "name", ret.Items[0].Name)
	_, ok = ret.Items[0].Expression.(*ast.PropertyLookup)
	assert.True(t, ok)
}

func TestParseUnaliasedProjectionNamedBySourceText(t *testing.T) {
	result := parse(t, "MATCH (n) RETURN n.name")
	ret := result.Query.Clauses[1].(*ast.Return)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, "n.name", ret.Items[0].Name)
}

func TestParseOptionalMatch(t *testing.T) {
	result := parse(t, "OPTIONAL MATCH (n) RETURN n")
	match := result.Query.Clauses[0].(*ast.Match)
	assert.True(t, match.Optional)
}

func TestParsePatternChain(t *testing.T) {
	tests := []struct {
		name string
		text string
		dir  ast.EdgeDirection
	}{
		{"outgoing", "MATCH (a)-[r:KNOWS]->(b) RETURN a", ast.EdgeOut},
		{"incoming", "MATCH (a)<-[r:KNOWS]-(b) RETURN a", ast.EdgeIn},
		{"undirected", "MATCH (a)-[r:KNOWS]-(b) RETURN a", ast.EdgeBoth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parse(t, tt.text)
			pattern := result.Query.Clauses[0].(*ast.Match).Patterns[0]
			require.Len(t, pattern.Atoms, 3)

			edge, ok := pattern.Atoms[1].(*ast.EdgeAtom)
			require.True(t, ok)
			assert.Equal(t, tt.dir, edge.Direction)
			assert.Equal(t, []string{"KNOWS"}, edge.Types)
			assert.Equal(t, "r", edge.Variable.Name)
		})
	}
}

func TestParseNamedPath(t *testing.T) {
	result := parse(t, "MATCH pth = (a)-[r:KNOWS]->(b) RETURN pth")
	pattern := result.Query.Clauses[0].(*ast.Match).Patterns[0]
	require.NotNil(t, pattern.Variable)
	assert.Equal(t, "pth", pattern.Variable.Name)
	require.Len(t, pattern.Atoms, 3)
}

func TestParseEdgeTypeAlternatives(t *testing.T) {
	result := parse(t, "MATCH (a)-[:KNOWS|LIKES]->(b) RETURN a")
	edge := result.Query.Clauses[0].(*ast.Match).Patterns[0].Atoms[1].(*ast.EdgeAtom)
	assert.Equal(t, []string{"KNOWS", "LIKES"}, edge.Types)
}

func TestParseAnonymousAtomsGetHiddenVariables(t *testing.T) {
	result := parse(t, "MATCH ()-[]->() RETURN 1")
	pattern := result.Query.Clauses[0].(*ast.Match).Patterns[0]

	seen := map[string]bool{}
	for _, atom := range pattern.Atoms {
		var v *ast.Identifier
		switch a := atom.(type) {
		case *ast.NodeAtom:
			v = a.Variable
		case *ast.EdgeAtom:
			v = a.Variable
		}
		require.NotNil(t, v)
		// Hidden names start with a space so they cannot collide with
		// anything a user can write.
		assert.True(t, strings.HasPrefix(v.Name, " "), "got %q", v.Name)
		assert.False(t, seen[v.Name], "duplicate hidden name %q", v.Name)
		seen[v.Name] = true
	}
}

func TestParseCreateWithProperties(t *testing.T) {
	result := parse(t, `CREATE (n:Person {name: "Bragi", age: 30})`)
	create, ok := result.Query.Clauses[0].(*ast.Create)
	require.True(t, ok)

	node := create.Patterns[0].Nodes()[0]
	require.Len(t, node.Properties, 2)
	assert.Equal(t, "name", node.Properties[0].Key)
	assert.Equal(t, "age", node.Properties[1].Key)
	lit, ok := node.Properties[0].Value.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, "Bragi", lit.Value)
}

func TestParseMerge(t *testing.T) {
	result := parse(t, "MERGE (n:Person {name: $name}) RETURN n")
	merge, ok := result.Query.Clauses[0].(*ast.Merge)
	require.True(t, ok)
	require.Len(t, merge.Pattern.Nodes(), 1)
}

func TestParseDelete(t *testing.T) {
	result := parse(t, "MATCH (n) DETACH DELETE n")
	del, ok := result.Query.Clauses[1].(*ast.Delete)
	require.True(t, ok)
	assert.True(t, del.Detach)
	require.Len(t, del.Expressions, 1)
}

func TestParseSetAndRemove(t *testing.T) {
	result := parse(t, "MATCH (n) SET n.age = 31 REMOVE n.old RETURN n")
	set, ok := result.Query.Clauses[1].(*ast.Set)
	require.True(t, ok)
	require.Len(t, set.Items, 1)

	rem, ok := result.Query.Clauses[2].(*ast.Remove)
	require.True(t, ok)
	require.Len(t, rem.Properties, 1)
}

func TestParseUnwind(t *testing.T) {
	result := parse(t, "UNWIND [1, 2, 3] AS x RETURN x")
	unwind, ok := result.Query.Clauses[0].(*ast.Unwind)
	require.True(t, ok)
	assert.Equal(t, "x", unwind.As.Name)
	list, ok := unwind.Expression.(*ast.ListLiteral)
	require.True(t, ok)
	assert.Len(t, list.Elements, 3)
}

func TestParseWithOrderSkipLimit(t *testing.T) {
	result := parse(t, "MATCH (n) WITH n ORDER BY n.name DESC SKIP 2 LIMIT 5 WHERE n.age > 1 RETURN n")
	with, ok := result.Query.Clauses[1].(*ast.With)
	require.True(t, ok)
	require.Len(t, with.OrderBy, 1)
	assert.True(t, with.OrderBy[0].Descending)
	assert.NotNil(t, with.Skip)
	assert.NotNil(t, with.Limit)
	assert.NotNil(t, with.Where)
}

func TestParseAggregations(t *testing.T) {
	result := parse(t, "MATCH (n) RETURN count(*), collect(DISTINCT n.name), avg(n.age)")
	ret := result.Query.Clauses[1].(*ast.Return)
	require.Len(t, ret.Items, 3)

	star, ok := ret.Items[0].Expression.(*ast.Aggregation)
	require.True(t, ok)
	assert.Equal(t, ast.AggregationCount, star.Op)
	assert.Nil(t, star.Expression)

	coll := ret.Items[1].Expression.(*ast.Aggregation)
	assert.Equal(t, ast.AggregationCollect, coll.Op)
	assert.True(t, coll.Distinct)

	avg := ret.Items[2].Expression.(*ast.Aggregation)
	assert.Equal(t, ast.AggregationAvg, avg.Op)
}

func TestParsePrecedence(t *testing.T) {
	result := parse(t, "MATCH (n) WHERE n.a OR n.b AND NOT n.c RETURN n")
	where := result.Query.Clauses[0].(*ast.Match).Where

	or, ok := where.Expression.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpOr, or.Op)

	and, ok := or.Right.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, ast.OpAnd, and.Op)

	not, ok := and.Right.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, ast.OpNot, not.Op)
}

func TestParseStringOperators(t *testing.T) {
	tests := []struct {
		text string
		op   ast.BinaryOp
	}{
		{`MATCH (n) WHERE n.name STARTS WITH "K" RETURN n`, ast.OpStartsWith},
		{`MATCH (n) WHERE n.name ENDS WITH "r" RETURN n`, ast.OpEndsWith},
		{`MATCH (n) WHERE n.name CONTAINS "vas" RETURN n`, ast.OpContains},
		{`MATCH (n) WHERE n.name IN ["a", "b"] RETURN n`, ast.OpIn},
	}
	for _, tt := range tests {
		result := parse(t, tt.text)
		where := result.Query.Clauses[0].(*ast.Match).Where
		bin, ok := where.Expression.(*ast.Binary)
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.op, bin.Op, tt.text)
	}
}

func TestParseIsNull(t *testing.T) {
	result := parse(t, "MATCH (n) WHERE n.deleted IS NOT NULL RETURN n")
	where := result.Query.Clauses[0].(*ast.Match).Where
	un, ok := where.Expression.(*ast.Unary)
	require.True(t, ok)
	assert.Equal(t, ast.OpIsNotNull, un.Op)
}

func TestParseLabelsTest(t *testing.T) {
	result := parse(t, "MATCH (n) WHERE n:Person:Admin RETURN n")
	where := result.Query.Clauses[0].(*ast.Match).Where
	lt, ok := where.Expression.(*ast.LabelsTest)
	require.True(t, ok)
	assert.Equal(t, []string{"Person", "Admin"}, lt.Labels)
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"lone match", "MATCH (n)"},
		{"unclosed paren", "MATCH (n RETURN n"},
		{"bad clause", "FROBNICATE (n) RETURN n"},
		{"double direction", "MATCH (a)<-[r]->(b) RETURN a"},
		{"trailing garbage", "MATCH (n) RETURN n n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(tt.text)
			var serr *SyntaxError
			require.ErrorAs(t, err, &serr)
			assert.Positive(t, serr.Line)
			assert.Positive(t, serr.Column)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := NewParser().Parse("MATCH (n)\nRETURN n WHENCE")
	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.Line)
}

func TestParserReuseAcrossQueries(t *testing.T) {
	p := NewParser()
	first, err := p.Parse("MATCH (n) RETURN n")
	require.NoError(t, err)
	second, err := p.Parse("CREATE (m:Thing)")
	require.NoError(t, err)

	// Each parse owns a fresh arena; earlier results stay intact.
	assert.NotSame(t, first.Storage, second.Storage)
	match := first.Query.Clauses[0].(*ast.Match)
	assert.Equal(t, "n", match.Patterns[0].Nodes()[0].Variable.Name)
}

func TestParseParameters(t *testing.T) {
	result := parse(t, "MATCH (n) WHERE n.name = $name RETURN n")
	where := result.Query.Clauses[0].(*ast.Match).Where
	bin := where.Expression.(*ast.Binary)
	param, ok := bin.Right.(*ast.Parameter)
	require.True(t, ok)
	assert.Equal(t, "name", param.Name)
}
