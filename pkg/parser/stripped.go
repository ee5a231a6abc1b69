package parser

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StrippedPrefix prefixes the synthetic parameter names that replace
// stripped literals. User-supplied parameters must not use it.
const StrippedPrefix = "_lit"

// StrippedQuery is the literal-independent form of a query: literals are
// replaced by synthetic parameters and whitespace is collapsed. Identifier
// tokens pass through verbatim, keyword-shaped or not, because a token the
// lexer cannot classify may be a user variable whose name and casing are
// significant. Two queries differing only in literal values or layout strip
// to the same text and therefore the same fingerprint.
type StrippedQuery struct {
	// Original is the query text as received.
	Original string
	// Query is the normalized text that actually gets parsed.
	Query string
	// Literals maps synthetic parameter names to the stripped-out values,
	// merged with user parameters before execution.
	Literals map[string]any
	// Hash is the 64-bit fingerprint of the normalized text.
	Hash uint64
}

// Strip normalizes text for fingerprinting. It allocates its own scratch
// and is safe for concurrent use, unlike Parser.
func Strip(text string) (*StrippedQuery, error) {
	toks, err := scanTokens(nil, text)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.Grow(len(text))
	literals := make(map[string]any)
	// Literals after SKIP or LIMIT stay inline: the plan's shape depends
	// on them, so queries differing there must not share a fingerprint.
	keepNext := false
	for i, t := range toks {
		if t.kind == tokenEOF {
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		switch t.kind {
		case tokenIdent:
			b.WriteString(t.text)
			keepNext = t.upper == "SKIP" || t.upper == "LIMIT"
			continue
		case tokenInt:
			if keepNext {
				b.WriteString(t.text)
				keepNext = false
				continue
			}
			v, perr := strconv.ParseInt(t.text, 10, 64)
			if perr != nil {
				return nil, &SyntaxError{Line: t.line, Column: t.col, Msg: "invalid integer literal"}
			}
			b.WriteString(stripLiteral(literals, v))
		case tokenFloat:
			v, perr := strconv.ParseFloat(t.text, 64)
			if perr != nil {
				return nil, &SyntaxError{Line: t.line, Column: t.col, Msg: "invalid float literal"}
			}
			b.WriteString(stripLiteral(literals, v))
		case tokenString:
			b.WriteString(stripLiteral(literals, unquote(t.text)))
		default:
			b.WriteString(t.text)
		}
		keepNext = false
	}
	query := b.String()
	return &StrippedQuery{
		Original: text,
		Query:    query,
		Literals: literals,
		Hash:     xxhash.Sum64String(query),
	}, nil
}

func stripLiteral(literals map[string]any, value any) string {
	name := StrippedPrefix + strconv.Itoa(len(literals))
	literals[name] = value
	return "$" + name
}
