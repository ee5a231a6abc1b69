package compile

import (
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/kvasir/pkg/ast"
	"github.com/orneryd/kvasir/pkg/plan"
)

// CachedPlan wraps a logical plan with its creation time. Expiry is
// advisory: the plan cache never evicts on its own, callers check
// IsExpired on access and regenerate lazily. The wrapped plan (and through
// it the syntax tree arena) stays alive for as long as any holder keeps
// the CachedPlan.
type CachedPlan struct {
	id        uuid.UUID
	plan      plan.LogicalPlan
	createdAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func newCachedPlan(p plan.LogicalPlan, ttl time.Duration, now func() time.Time) *CachedPlan {
	if now == nil {
		now = time.Now
	}
	return &CachedPlan{
		id:        uuid.New(),
		plan:      p,
		createdAt: now(),
		ttl:       ttl,
		now:       now,
	}
}

// ID identifies this cache entry in logs and EXPLAIN output.
func (c *CachedPlan) ID() uuid.UUID { return c.id }

// Plan returns the wrapped logical plan.
func (c *CachedPlan) Plan() plan.LogicalPlan { return c.plan }

// Root returns the root operator of the wrapped plan.
func (c *CachedPlan) Root() plan.LogicalOperator { return c.plan.Root() }

// Cost returns the estimated execution cost of the wrapped plan.
func (c *CachedPlan) Cost() float64 { return c.plan.Cost() }

// SymbolTable returns the symbol table the plan was built against.
func (c *CachedPlan) SymbolTable() *ast.SymbolTable { return c.plan.SymbolTable() }

// Storage returns the syntax tree arena the plan references.
func (c *CachedPlan) Storage() *ast.Storage { return c.plan.Storage() }

// Age returns the wall-clock time since the plan was generated.
func (c *CachedPlan) Age() time.Duration {
	return c.now().Sub(c.createdAt)
}

// IsExpired reports whether the plan outlived its TTL.
func (c *CachedPlan) IsExpired() bool {
	return c.Age() > c.ttl
}
