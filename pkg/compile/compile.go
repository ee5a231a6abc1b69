// Package compile is the query-compilation core: it turns raw query text
// into a reusable, cost-annotated logical plan.
//
// Compilation is a linear pipeline. The fingerprint of the normalized text
// keys two caches: the query cache (parsed and resolved queries) and the
// plan cache (TTL-bounded generated plans). A fully cached query compiles
// without touching the parser or the planner at all.
//
//	text ─ fingerprint ─ query cache ─┬─ hit ──────────────┐
//	                                  └─ parse + resolve ──┤
//	                                      plan cache ──┬─ hit ── plan
//	                                                   └─ generate ── plan
//
// Errors are classified (syntax, semantic, planning), never cached and
// never retried here; callers may re-invoke Compile after fixing the
// query.
package compile

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/kvasir/pkg/plan"
	"github.com/orneryd/kvasir/pkg/semantic"
)

// Options configures a Compiler.
type Options struct {
	// CostPlanner selects cost-based plan generation instead of the
	// rule-based default.
	CostPlanner bool
	// Stats feeds the cost model. Defaults to a small fixed graph, which
	// keeps EXPLAIN usable without live storage.
	Stats plan.StatsProvider
	// Logger receives debug-level compile events. Defaults to the
	// standard logger.
	Logger logrus.FieldLogger
}

// Compiler composes the caches, the shared parser and the plan generator.
// The caches are injected handles: one set per database instance, a fresh
// set per test.
type Compiler struct {
	queries   *QueryCache
	plans     *PlanCache
	parser    *SharedParser
	generator plan.Generator
	log       logrus.FieldLogger
}

// NewCompiler wires a compiler from its shared collaborators. Nil caches
// or parser get private defaults, which is convenient for one-shot use
// like EXPLAIN from the CLI.
func NewCompiler(queries *QueryCache, plans *PlanCache, shared *SharedParser, opts Options) *Compiler {
	if queries == nil {
		queries = NewQueryCache(DefaultQueryCacheSize)
	}
	if plans == nil {
		plans = NewPlanCache(DefaultPlanCacheSize, DefaultPlanTTL)
	}
	if shared == nil {
		shared = NewSharedParser()
	}
	stats := opts.Stats
	if stats == nil {
		stats = plan.FixedStats{Vertices: 1000, Labels: map[string]int64{}}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Compiler{
		queries:   queries,
		plans:     plans,
		parser:    shared,
		generator: plan.NewGenerator(opts.CostPlanner, stats),
		log:       log,
	}
}

// CompiledQuery is the result of one successful compilation.
type CompiledQuery struct {
	// Plan is ready for the execution engine to walk.
	Plan *CachedPlan
	// Fingerprint keyed both cache lookups for this query.
	Fingerprint uint64
	// Parameters are the caller's bindings merged with stripped literals;
	// the executor evaluates Parameter nodes against them.
	Parameters map[string]any
	// RequiredPrivileges must be checked by the authorization layer
	// before the plan runs.
	RequiredPrivileges []semantic.Privilege
}

// Compile turns text into an executable plan, consulting the caches
// before falling back to parse, resolve and plan. Predefined names bind
// identifiers supplied by an enclosing context (procedure arguments,
// trigger rows); queries using them are compiled fresh every time.
func (c *Compiler) Compile(text string, params map[string]any, predefined []string) (*CompiledQuery, error) {
	start := time.Now()
	parsed, err := ParseQuery(text, params, c.queries, c.parser, predefined)
	if err != nil {
		return nil, err
	}

	generate := func() (plan.LogicalPlan, error) {
		return c.generator.Generate(parsed.Query, parsed.Storage, parsed.SymbolTable, parsed.Predefined)
	}

	var cached *CachedPlan
	if parsed.IsCacheable {
		cached, err = c.plans.GetOrGenerate(parsed.Fingerprint, generate)
	} else {
		var generated plan.LogicalPlan
		generated, err = generate()
		if err == nil {
			cached = c.plans.Wrap(generated)
		}
	}
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"fingerprint": parsed.Fingerprint,
		"plan":        cached.ID(),
		"cost":        cached.Cost(),
		"cacheable":   parsed.IsCacheable,
		"duration":    time.Since(start),
	}).Debug("compiled query")

	return &CompiledQuery{
		Plan:               cached,
		Fingerprint:        parsed.Fingerprint,
		Parameters:         parsed.Parameters,
		RequiredPrivileges: parsed.RequiredPrivileges,
	}, nil
}
