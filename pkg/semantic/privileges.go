package semantic

import "github.com/orneryd/kvasir/pkg/ast"

// Privilege is one entry of the required-privilege list computed for a
// query. The core only computes the list; enforcement happens in the
// authorization layer before execution.
type Privilege int

const (
	PrivilegeMatch Privilege = iota
	PrivilegeCreate
	PrivilegeMerge
	PrivilegeDelete
	PrivilegeSet
	PrivilegeRemove
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeMatch:
		return "MATCH"
	case PrivilegeCreate:
		return "CREATE"
	case PrivilegeMerge:
		return "MERGE"
	case PrivilegeDelete:
		return "DELETE"
	case PrivilegeSet:
		return "SET"
	case PrivilegeRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// RequiredPrivileges returns the privileges a caller needs before the query
// may execute, deduplicated, in first-occurrence order.
func RequiredPrivileges(query *ast.Query) []Privilege {
	var out []Privilege
	seen := make(map[Privilege]bool)
	add := func(p Privilege) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, clause := range query.Clauses {
		switch clause.(type) {
		case *ast.Match:
			add(PrivilegeMatch)
		case *ast.Create:
			add(PrivilegeCreate)
		case *ast.Merge:
			add(PrivilegeMerge)
		case *ast.Delete:
			add(PrivilegeDelete)
		case *ast.Set:
			add(PrivilegeSet)
		case *ast.Remove:
			add(PrivilegeRemove)
		}
	}
	return out
}
