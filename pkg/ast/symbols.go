package ast

import "fmt"

// SymbolType is the declared type tag of a query variable. Only enough
// typing exists to reject obviously invalid variable reuse; there is no
// full type inference.
type SymbolType int

const (
	SymbolAny SymbolType = iota
	SymbolVertex
	SymbolEdge
	SymbolPath
	SymbolValue
)

func (t SymbolType) String() string {
	switch t {
	case SymbolVertex:
		return "Vertex"
	case SymbolEdge:
		return "Edge"
	case SymbolPath:
		return "Path"
	case SymbolValue:
		return "Value"
	default:
		return "Any"
	}
}

// CompatibleWith reports whether a variable declared as t may be reused
// where other is expected. Any is compatible with everything.
func (t SymbolType) CompatibleWith(other SymbolType) bool {
	return t == SymbolAny || other == SymbolAny || t == other
}

// Symbol identifies one declared query variable. Symbols are plain values,
// copied freely; equality is by ID.
type Symbol struct {
	ID   int
	Name string
	Type SymbolType
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s#%d:%s", s.Name, s.ID, s.Type)
}

// SymbolTable maps symbol ids to symbols and identifier occurrences to the
// symbol they resolve to. It is populated during scope resolution and
// read-only afterwards; plans built against a table never mutate it.
type SymbolTable struct {
	symbols      []Symbol
	associations map[Node]int
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{associations: make(map[Node]int)}
}

// CreateSymbol allocates a fresh symbol. Ids increase monotonically within
// one resolution pass.
func (t *SymbolTable) CreateSymbol(name string, typ SymbolType) Symbol {
	sym := Symbol{ID: len(t.symbols), Name: name, Type: typ}
	t.symbols = append(t.symbols, sym)
	return sym
}

// Associate records that node resolves to sym. A later association for the
// same node replaces the earlier one.
func (t *SymbolTable) Associate(node Node, sym Symbol) {
	t.associations[node] = sym.ID
}

// At returns the symbol a node resolved to.
func (t *SymbolTable) At(node Node) (Symbol, bool) {
	id, ok := t.associations[node]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[id], true
}

// Symbol returns the symbol with the given id.
func (t *SymbolTable) Symbol(id int) (Symbol, bool) {
	if id < 0 || id >= len(t.symbols) {
		return Symbol{}, false
	}
	return t.symbols[id], true
}

// Len returns the number of symbols in the table.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// Symbols returns all symbols in id order.
func (t *SymbolTable) Symbols() []Symbol {
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}
