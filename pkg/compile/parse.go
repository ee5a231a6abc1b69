package compile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/orneryd/kvasir/pkg/ast"
	"github.com/orneryd/kvasir/pkg/parser"
	"github.com/orneryd/kvasir/pkg/semantic"
)

// SharedParser serializes access to one parser instance. The parser reuses
// internal token buffers between calls, so concurrent parses would corrupt
// each other; the lock is held for the whole parse-and-resolve step of a
// cache miss.
type SharedParser struct {
	mu     sync.Mutex
	parser *parser.Parser
}

// NewSharedParser returns a parser handle shared by all compiling
// goroutines of one database instance.
func NewSharedParser() *SharedParser {
	return &SharedParser{parser: parser.NewParser()}
}

// ParsedQuery is everything known about a query after the front half of
// compilation: normalized text, syntax tree, symbols and privileges.
type ParsedQuery struct {
	// QueryString is the original text as received.
	QueryString string
	// Fingerprint is the hash of the normalized text, the key into both
	// caches. Lookups and insertions always use this same derivation.
	Fingerprint uint64
	// Stripped is the normalized form that was actually parsed.
	Stripped *parser.StrippedQuery
	// UserParameters are the caller's bindings, unmerged.
	UserParameters map[string]any
	// Parameters are the user bindings merged with stripped-out literals.
	Parameters map[string]any
	Storage    *ast.Storage
	Query      *ast.Query
	// SymbolTable is read-only from here on.
	SymbolTable        *ast.SymbolTable
	RequiredPrivileges []semantic.Privilege
	// Predefined are the context-supplied identifiers bound before
	// resolution, in caller order.
	Predefined []*ast.Identifier
	// IsCacheable is false for queries whose resolved form depends on
	// runtime-only context: non-deterministic builtins or predefined
	// identifiers.
	IsCacheable bool
}

// ParseQuery turns text into a resolved query, consulting cache first.
//
// On a miss the parser lock serializes parse+resolve; two goroutines
// racing past the same miss both compile, and the later insert overwrites
// the earlier. That is wasted work, not a correctness problem: resolved
// queries for one fingerprint are immutable and interchangeable.
func ParseQuery(text string, params map[string]any, cache *QueryCache,
	shared *SharedParser, predefined []string) (*ParsedQuery, error) {
	for name := range params {
		if strings.HasPrefix(name, parser.StrippedPrefix) {
			return nil, fmt.Errorf("parameter name %q uses the reserved prefix %q", name, parser.StrippedPrefix)
		}
	}
	stripped, err := parser.Strip(text)
	if err != nil {
		return nil, err
	}
	merged := mergeParameters(params, stripped.Literals)

	if len(predefined) == 0 && cache != nil {
		if cached, ok := cache.Lookup(stripped.Hash); ok {
			return &ParsedQuery{
				QueryString:        text,
				Fingerprint:        stripped.Hash,
				Stripped:           stripped,
				UserParameters:     params,
				Parameters:         merged,
				Storage:            cached.Storage,
				Query:              cached.Query,
				SymbolTable:        cached.SymbolTable,
				RequiredPrivileges: cached.RequiredPrivileges,
				IsCacheable:        true,
			}, nil
		}
	}

	shared.mu.Lock()
	defer shared.mu.Unlock()

	result, err := shared.parser.Parse(stripped.Query)
	if err != nil {
		return nil, err
	}
	preIdents := make([]*ast.Identifier, len(predefined))
	for i, name := range predefined {
		preIdents[i] = result.Storage.NewIdentifier(name)
	}
	table := ast.NewSymbolTable()
	if err := semantic.Resolve(result.Query, table, preIdents); err != nil {
		// The partially built table is dropped with this stack frame.
		return nil, err
	}
	privileges := semantic.RequiredPrivileges(result.Query)
	cacheable := len(preIdents) == 0 && isCacheableQuery(result.Query)

	parsed := &ParsedQuery{
		QueryString:        text,
		Fingerprint:        stripped.Hash,
		Stripped:           stripped,
		UserParameters:     params,
		Parameters:         merged,
		Storage:            result.Storage,
		Query:              result.Query,
		SymbolTable:        table,
		RequiredPrivileges: privileges,
		Predefined:         preIdents,
		IsCacheable:        cacheable,
	}
	if cacheable && cache != nil {
		cache.insert(stripped.Hash, &CachedQuery{
			Storage:            result.Storage,
			Query:              result.Query,
			SymbolTable:        table,
			RequiredPrivileges: privileges,
		})
	}
	return parsed, nil
}

func mergeParameters(user map[string]any, literals map[string]any) map[string]any {
	merged := make(map[string]any, len(user)+len(literals))
	for k, v := range user {
		merged[k] = v
	}
	for k, v := range literals {
		merged[k] = v
	}
	return merged
}
