package plan

// StatsProvider supplies the graph statistics the cost model works from.
// The execution engine implements this against live storage; FixedStats
// serves tests and offline EXPLAIN.
type StatsProvider interface {
	// VertexCount returns the total number of vertices.
	VertexCount() int64
	// VertexCountWithLabel returns the number of vertices with the label.
	VertexCountWithLabel(label string) int64
}

// FixedStats is a StatsProvider with constant answers.
type FixedStats struct {
	Vertices int64
	Labels   map[string]int64
}

func (s FixedStats) VertexCount() int64 {
	return s.Vertices
}

func (s FixedStats) VertexCountWithLabel(label string) int64 {
	if n, ok := s.Labels[label]; ok {
		return n
	}
	// Unknown labels fall back to a tenth of the graph rather than zero,
	// so plans do not degenerate on stale statistics.
	return s.Vertices / 10
}

// Per-operator cost coefficients. Cost of an operator is its coefficient
// times the cardinality flowing through it.
const (
	costScanAll        = 1.0
	costScanAllByLabel = 1.1
	costExpand         = 2.0
	costFilter         = 1.5
	costUnwind         = 1.3
	costAggregate      = 1.8
	costOrderBy        = 2.2
	costWrite          = 2.5
	costDefault        = 1.0
)

// Cardinality adjustment factors.
const (
	cardExpandDegree      = 3.0
	cardFilterSelectivity = 0.25
	cardUnwindElements    = 10.0
)
