package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripReplacesLiterals(t *testing.T) {
	stripped, err := Strip(`MATCH (n:Person) WHERE n.age > 21 AND n.name = "Mimir" RETURN n`)
	require.NoError(t, err)

	assert.Equal(t, "MATCH ( n : Person ) WHERE n . age > $_lit0 AND n . name = $_lit1 RETURN n", stripped.Query)
	assert.Equal(t, map[string]any{
		"_lit0": int64(21),
		"_lit1": "Mimir",
	}, stripped.Literals)
}

func TestStripFingerprintIgnoresLiteralValues(t *testing.T) {
	a, err := Strip(`MATCH (n) WHERE n.age > 21 RETURN n`)
	require.NoError(t, err)
	b, err := Strip(`MATCH (n) WHERE n.age > 99 RETURN n`)
	require.NoError(t, err)

	assert.Equal(t, a.Query, b.Query)
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Literals, b.Literals)
}

func TestStripFingerprintIgnoresLayout(t *testing.T) {
	a, err := Strip("MATCH (n) RETURN n")
	require.NoError(t, err)
	b, err := Strip("MATCH   (n)\n\t// trailing comment\nRETURN n")
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
}

func TestStripPreservesKeywordCasing(t *testing.T) {
	stripped, err := Strip("match (n) return n")
	require.NoError(t, err)

	assert.Equal(t, "match ( n ) return n", stripped.Query)

	// The stripped text still parses: keyword matching is case-insensitive.
	result, err := NewParser().Parse(stripped.Query)
	require.NoError(t, err)
	require.Len(t, result.Query.Clauses, 2)
}

func TestStripLeavesKeywordLikeNamesAlone(t *testing.T) {
	stripped, err := Strip("MATCH (n) RETURN n.name AS order")
	require.NoError(t, err)
	assert.Equal(t, "MATCH ( n ) RETURN n . name AS order", stripped.Query)

	// Case-distinct variables that uppercase to a reserved word must not
	// collapse into one name.
	stripped, err = Strip("MATCH (order)-[Order]->(x) RETURN order")
	require.NoError(t, err)
	assert.Contains(t, stripped.Query, "( order )")
	assert.Contains(t, stripped.Query, "[ Order ]")
}

func TestStripIdentifierCaseIsSignificant(t *testing.T) {
	a, err := Strip("MATCH (n) RETURN n")
	require.NoError(t, err)
	b, err := Strip("MATCH (N) RETURN N")
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestStripKeepsSkipAndLimitInline(t *testing.T) {
	stripped, err := Strip("MATCH (n) RETURN n ORDER BY n.name SKIP 5 LIMIT 10")
	require.NoError(t, err)

	assert.Contains(t, stripped.Query, "SKIP 5")
	assert.Contains(t, stripped.Query, "LIMIT 10")
	assert.Empty(t, stripped.Literals)

	// Differing LIMIT values must produce different fingerprints.
	other, err := Strip("MATCH (n) RETURN n ORDER BY n.name SKIP 5 LIMIT 20")
	require.NoError(t, err)
	assert.NotEqual(t, stripped.Hash, other.Hash)
}

func TestStripLimitExpressionStillStripped(t *testing.T) {
	// Only the literal directly after LIMIT stays inline.
	stripped, err := Strip("MATCH (n) WHERE n.age = 3 RETURN n LIMIT 10")
	require.NoError(t, err)

	assert.Contains(t, stripped.Query, "LIMIT 10")
	assert.Equal(t, map[string]any{"_lit0": int64(3)}, stripped.Literals)
}

func TestStripPreservesUserParameters(t *testing.T) {
	stripped, err := Strip("MATCH (n) WHERE n.name = $name RETURN n")
	require.NoError(t, err)

	assert.Contains(t, stripped.Query, "$name")
	assert.Empty(t, stripped.Literals)
}

func TestStripFloats(t *testing.T) {
	stripped, err := Strip("RETURN 3.25")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_lit0": 3.25}, stripped.Literals)
}

func TestStripSyntaxError(t *testing.T) {
	_, err := Strip(`RETURN "unterminated`)
	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Line)
}

func TestStripStrippedTextReparses(t *testing.T) {
	stripped, err := Strip(`CREATE (n:Person {name: "Kvasir", age: 30}) RETURN n`)
	require.NoError(t, err)

	result, err := NewParser().Parse(stripped.Query)
	require.NoError(t, err)
	require.Len(t, result.Query.Clauses, 2)
}
