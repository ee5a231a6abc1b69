package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/kvasir/pkg/ast"
)

// aggregations maps lowercase function names to their aggregation op.
var aggregations = map[string]ast.AggregationOp{
	"count":   ast.AggregationCount,
	"sum":     ast.AggregationSum,
	"avg":     ast.AggregationAvg,
	"min":     ast.AggregationMin,
	"max":     ast.AggregationMax,
	"collect": ast.AggregationCollect,
}

// Result is a successfully parsed query together with the arena that owns
// its nodes.
type Result struct {
	Storage *ast.Storage
	Query   *ast.Query
}

// Parser parses Cypher text into a syntax tree. Token buffers are reused
// between calls, so one instance must not be used from multiple goroutines.
type Parser struct {
	toks    []token
	pos     int
	src     string
	storage *ast.Storage
	anon    int
}

// NewParser returns a parser ready for use by a single goroutine.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses text and returns the syntax tree in a fresh arena.
func (p *Parser) Parse(text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SyntaxError{Line: 1, Column: 1, Msg: "empty query"}
	}
	toks, err := scanTokens(p.toks[:0], text)
	p.toks = toks
	if err != nil {
		return nil, err
	}
	p.pos = 0
	p.src = text
	p.storage = ast.NewStorage()
	p.anon = 0

	query := p.storage.NewQuery()
	for !p.at(tokenEOF) {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		query.Clauses = append(query.Clauses, clause)
	}
	if len(query.Clauses) == 0 {
		return nil, p.errorf("expected a query clause")
	}
	// A query must end with RETURN or an updating clause.
	switch query.Clauses[len(query.Clauses)-1].(type) {
	case *ast.Match, *ast.With, *ast.Unwind:
		return nil, p.errorf("query must end with RETURN or an update clause")
	}
	return &Result{Storage: p.storage, Query: query}, nil
}

func (p *Parser) cur() token {
	return p.toks[p.pos]
}

func (p *Parser) at(kind tokenKind) bool {
	return p.cur().kind == kind
}

func (p *Parser) accept(kind tokenKind) bool {
	if p.at(kind) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(kind tokenKind, what string) (token, error) {
	t := p.cur()
	if t.kind != kind {
		return token{}, p.errorf("expected %s", what)
	}
	p.pos++
	return t, nil
}

func (p *Parser) atKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokenIdent && t.upper == kw
}

func (p *Parser) acceptKeyword(kw string) bool {
	if p.atKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.errorf("expected %s", kw)
	}
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	t := p.cur()
	return &SyntaxError{Line: t.line, Column: t.col, Msg: fmt.Sprintf(format, args...)}
}

// newAnonIdentifier names an anonymous pattern element so that later
// passes can assign it a symbol. The leading space keeps generated names
// out of the user's namespace: the lexer can never produce one.
func (p *Parser) newAnonIdentifier() *ast.Identifier {
	p.anon++
	return p.storage.NewIdentifier(fmt.Sprintf(" anon%d", p.anon))
}

// textBetween returns the trimmed source text spanning tokens [from, to).
// Used to name projection items that carry no explicit alias.
func (p *Parser) textBetween(from, to int) string {
	if from >= to {
		return ""
	}
	return strings.TrimSpace(p.src[p.toks[from].off:p.toks[to-1].end])
}

func (p *Parser) parseClause() (ast.Clause, error) {
	switch {
	case p.acceptKeyword("OPTIONAL"):
		if err := p.expectKeyword("MATCH"); err != nil {
			return nil, err
		}
		return p.parseMatch(true)
	case p.acceptKeyword("MATCH"):
		return p.parseMatch(false)
	case p.acceptKeyword("CREATE"):
		return p.parseCreate()
	case p.acceptKeyword("MERGE"):
		return p.parseMerge()
	case p.acceptKeyword("DETACH"):
		if err := p.expectKeyword("DELETE"); err != nil {
			return nil, err
		}
		return p.parseDelete(true)
	case p.acceptKeyword("DELETE"):
		return p.parseDelete(false)
	case p.acceptKeyword("SET"):
		return p.parseSet()
	case p.acceptKeyword("REMOVE"):
		return p.parseRemove()
	case p.acceptKeyword("UNWIND"):
		return p.parseUnwind()
	case p.acceptKeyword("WITH"):
		return p.parseWith()
	case p.acceptKeyword("RETURN"):
		return p.parseReturn()
	default:
		return nil, p.errorf("unexpected token %q, expected a clause keyword", p.cur().text)
	}
}

func (p *Parser) parseMatch(optional bool) (ast.Clause, error) {
	m := p.storage.NewMatch(optional)
	for {
		pattern, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		m.Patterns = append(m.Patterns, pattern)
		if !p.accept(tokenComma) {
			break
		}
	}
	if p.acceptKeyword("WHERE") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		m.Where = p.storage.NewWhere(expr)
	}
	return m, nil
}

func (p *Parser) parseCreate() (ast.Clause, error) {
	c := p.storage.NewCreate()
	for {
		pattern, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		c.Patterns = append(c.Patterns, pattern)
		if !p.accept(tokenComma) {
			break
		}
	}
	return c, nil
}

func (p *Parser) parseMerge() (ast.Clause, error) {
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	return p.storage.NewMerge(pattern), nil
}

func (p *Parser) parseDelete(detach bool) (ast.Clause, error) {
	d := p.storage.NewDelete(detach)
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		d.Expressions = append(d.Expressions, expr)
		if !p.accept(tokenComma) {
			break
		}
	}
	return d, nil
}

func (p *Parser) parseSet() (ast.Clause, error) {
	s := p.storage.NewSet()
	for {
		target, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		lookup, ok := target.(*ast.PropertyLookup)
		if !ok {
			return nil, p.errorf("SET expects a property assignment")
		}
		if _, err := p.expect(tokenEq, "'='"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		s.Items = append(s.Items, ast.SetItem{Property: lookup, Value: value})
		if !p.accept(tokenComma) {
			break
		}
	}
	return s, nil
}

func (p *Parser) parseRemove() (ast.Clause, error) {
	r := p.storage.NewRemove()
	for {
		target, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		lookup, ok := target.(*ast.PropertyLookup)
		if !ok {
			return nil, p.errorf("REMOVE expects a property lookup")
		}
		r.Properties = append(r.Properties, lookup)
		if !p.accept(tokenComma) {
			break
		}
	}
	return r, nil
}

func (p *Parser) parseUnwind() (ast.Clause, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("AS"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokenIdent, "a variable name")
	if err != nil {
		return nil, err
	}
	return p.storage.NewUnwind(expr, p.storage.NewIdentifier(name.text)), nil
}

func (p *Parser) parseWith() (ast.Clause, error) {
	w := p.storage.NewWith(p.acceptKeyword("DISTINCT"))
	items, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	w.Items = items
	if w.OrderBy, w.Skip, w.Limit, err = p.parseOrderSkipLimit(); err != nil {
		return nil, err
	}
	if p.acceptKeyword("WHERE") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		w.Where = p.storage.NewWhere(expr)
	}
	return w, nil
}

func (p *Parser) parseReturn() (ast.Clause, error) {
	r := p.storage.NewReturn(p.acceptKeyword("DISTINCT"))
	items, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	r.Items = items
	if r.OrderBy, r.Skip, r.Limit, err = p.parseOrderSkipLimit(); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Parser) parseProjection() ([]*ast.NamedExpression, error) {
	var items []*ast.NamedExpression
	for {
		start := p.pos
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		name := p.textBetween(start, p.pos)
		if p.acceptKeyword("AS") {
			alias, err := p.expect(tokenIdent, "an alias name")
			if err != nil {
				return nil, err
			}
			name = alias.text
		}
		items = append(items, p.storage.NewNamedExpression(name, expr))
		if !p.accept(tokenComma) {
			break
		}
	}
	return items, nil
}

func (p *Parser) parseOrderSkipLimit() ([]ast.SortItem, ast.Expression, ast.Expression, error) {
	var orderBy []ast.SortItem
	var skip, limit ast.Expression
	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, nil, nil, err
		}
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, nil, nil, err
			}
			item := ast.SortItem{Expression: expr}
			if p.acceptKeyword("DESC") || p.acceptKeyword("DESCENDING") {
				item.Descending = true
			} else if p.acceptKeyword("ASC") || p.acceptKeyword("ASCENDING") {
				item.Descending = false
			}
			orderBy = append(orderBy, item)
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if p.acceptKeyword("SKIP") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, nil, nil, err
		}
		skip = expr
	}
	if p.acceptKeyword("LIMIT") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, nil, nil, err
		}
		limit = expr
	}
	return orderBy, skip, limit, nil
}

func (p *Parser) parsePattern() (*ast.Pattern, error) {
	var variable *ast.Identifier
	if p.at(tokenIdent) && p.toks[p.pos+1].kind == tokenEq {
		variable = p.storage.NewIdentifier(p.cur().text)
		p.pos += 2
	}
	node, err := p.parseNodeAtom()
	if err != nil {
		return nil, err
	}
	atoms := []ast.PatternAtom{node}
	for p.at(tokenDash) || p.at(tokenLt) {
		edge, err := p.parseEdgeAtom()
		if err != nil {
			return nil, err
		}
		next, err := p.parseNodeAtom()
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, edge, next)
	}
	pattern := p.storage.NewPattern(atoms...)
	pattern.Variable = variable
	return pattern, nil
}

func (p *Parser) parseNodeAtom() (*ast.NodeAtom, error) {
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	var variable *ast.Identifier
	if p.at(tokenIdent) {
		variable = p.storage.NewIdentifier(p.cur().text)
		p.pos++
	} else {
		variable = p.newAnonIdentifier()
	}
	atom := p.storage.NewNodeAtom(variable)
	for p.accept(tokenColon) {
		label, err := p.expect(tokenIdent, "a label name")
		if err != nil {
			return nil, err
		}
		atom.Labels = append(atom.Labels, label.text)
	}
	if p.at(tokenLBrace) {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		atom.Properties = props
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	return atom, nil
}

func (p *Parser) parseEdgeAtom() (*ast.EdgeAtom, error) {
	incoming := p.accept(tokenLt)
	if _, err := p.expect(tokenDash, "'-'"); err != nil {
		return nil, err
	}
	var variable *ast.Identifier
	var types []string
	var props []ast.PropertyPair
	if p.accept(tokenLBracket) {
		if p.at(tokenIdent) {
			variable = p.storage.NewIdentifier(p.cur().text)
			p.pos++
		}
		if p.accept(tokenColon) {
			for {
				typ, err := p.expect(tokenIdent, "a relationship type")
				if err != nil {
					return nil, err
				}
				types = append(types, typ.text)
				if !p.accept(tokenPipe) {
					break
				}
			}
		}
		if p.at(tokenLBrace) {
			var err error
			props, err = p.parsePropertyMap()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(tokenRBracket, "']'"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokenDash, "'-'"); err != nil {
		return nil, err
	}
	outgoing := p.accept(tokenGt)
	if incoming && outgoing {
		return nil, p.errorf("edge cannot point in both directions")
	}
	dir := ast.EdgeBoth
	if incoming {
		dir = ast.EdgeIn
	} else if outgoing {
		dir = ast.EdgeOut
	}
	if variable == nil {
		variable = p.newAnonIdentifier()
	}
	edge := p.storage.NewEdgeAtom(variable, dir)
	edge.Types = types
	edge.Properties = props
	return edge, nil
}

func (p *Parser) parsePropertyMap() ([]ast.PropertyPair, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	var pairs []ast.PropertyPair
	if !p.at(tokenRBrace) {
		for {
			key, err := p.expect(tokenIdent, "a property name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokenColon, "':'"); err != nil {
				return nil, err
			}
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, ast.PropertyPair{Key: key.text, Value: value})
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(tokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Expression parsing, one function per precedence level.

func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = p.storage.NewBinary(ast.OpOr, left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = p.storage.NewBinary(ast.OpAnd, left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expression, error) {
	if p.acceptKeyword("NOT") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return p.storage.NewUnary(ast.OpNot, inner), nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.accept(tokenEq):
			op = ast.OpEqual
		case p.accept(tokenNeq):
			op = ast.OpNotEqual
		case p.accept(tokenLe):
			op = ast.OpLessEqual
		case p.accept(tokenGe):
			op = ast.OpGreaterEqual
		case p.accept(tokenLt):
			op = ast.OpLess
		case p.accept(tokenGt):
			op = ast.OpGreater
		case p.acceptKeyword("IN"):
			op = ast.OpIn
		case p.acceptKeyword("CONTAINS"):
			op = ast.OpContains
		case p.atKeyword("STARTS"):
			p.pos++
			if err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			op = ast.OpStartsWith
		case p.atKeyword("ENDS"):
			p.pos++
			if err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			op = ast.OpEndsWith
		case p.atKeyword("IS"):
			p.pos++
			if p.acceptKeyword("NOT") {
				if err := p.expectKeyword("NULL"); err != nil {
					return nil, err
				}
				left = p.storage.NewUnary(ast.OpIsNotNull, left)
			} else {
				if err := p.expectKeyword("NULL"); err != nil {
					return nil, err
				}
				left = p.storage.NewUnary(ast.OpIsNull, left)
			}
			continue
		default:
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = p.storage.NewBinary(op, left, right)
	}
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.accept(tokenPlus):
			op = ast.OpAdd
		case p.accept(tokenDash):
			op = ast.OpSubtract
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = p.storage.NewBinary(op, left, right)
	}
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.BinaryOp
		switch {
		case p.accept(tokenStar):
			op = ast.OpMultiply
		case p.accept(tokenSlash):
			op = ast.OpDivide
		case p.accept(tokenPercent):
			op = ast.OpModulo
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = p.storage.NewBinary(op, left, right)
	}
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	if p.accept(tokenDash) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return p.storage.NewUnary(ast.OpNegate, inner), nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept(tokenDot):
			prop, err := p.expect(tokenIdent, "a property name")
			if err != nil {
				return nil, err
			}
			expr = p.storage.NewPropertyLookup(expr, prop.text)
		case p.at(tokenColon):
			// Label test: n:Person. Only reachable in expression context;
			// labels inside pattern atoms are consumed by the atom parser.
			var labels []string
			for p.accept(tokenColon) {
				label, err := p.expect(tokenIdent, "a label name")
				if err != nil {
					return nil, err
				}
				labels = append(labels, label.text)
			}
			expr = p.storage.NewLabelsTest(expr, labels)
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	t := p.cur()
	switch t.kind {
	case tokenInt:
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", t.text)
		}
		p.pos++
		return p.storage.NewLiteral(v), nil
	case tokenFloat:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("invalid float literal %q", t.text)
		}
		p.pos++
		return p.storage.NewLiteral(v), nil
	case tokenString:
		p.pos++
		return p.storage.NewLiteral(unquote(t.text)), nil
	case tokenParam:
		p.pos++
		return p.storage.NewParameter(t.text[1:]), nil
	case tokenLParen:
		p.pos++
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case tokenLBracket:
		p.pos++
		var elements []ast.Expression
		if !p.at(tokenRBracket) {
			for {
				el, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				elements = append(elements, el)
				if !p.accept(tokenComma) {
					break
				}
			}
		}
		if _, err := p.expect(tokenRBracket, "']'"); err != nil {
			return nil, err
		}
		return p.storage.NewListLiteral(elements), nil
	case tokenLBrace:
		pairs, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		return p.storage.NewMapLiteral(pairs), nil
	case tokenIdent:
		switch t.upper {
		case "TRUE":
			p.pos++
			return p.storage.NewLiteral(true), nil
		case "FALSE":
			p.pos++
			return p.storage.NewLiteral(false), nil
		case "NULL":
			p.pos++
			return p.storage.NewLiteral(nil), nil
		}
		if p.toks[p.pos+1].kind == tokenLParen {
			return p.parseCall(t)
		}
		p.pos++
		return p.storage.NewIdentifier(t.text), nil
	default:
		return nil, p.errorf("unexpected token %q in expression", t.text)
	}
}

func (p *Parser) parseCall(name token) (ast.Expression, error) {
	p.pos += 2 // function name and '('
	aggOp, isAgg := aggregations[strings.ToLower(name.text)]
	distinct := false
	if isAgg {
		distinct = p.acceptKeyword("DISTINCT")
	}
	if isAgg && aggOp == ast.AggregationCount && p.accept(tokenStar) {
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return p.storage.NewAggregation(aggOp, nil, distinct), nil
	}
	var args []ast.Expression
	if !p.at(tokenRParen) {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}
	if isAgg {
		if len(args) != 1 {
			return nil, p.errorf("%s takes exactly one argument", strings.ToLower(name.text))
		}
		return p.storage.NewAggregation(aggOp, args[0], distinct), nil
	}
	return p.storage.NewFunction(strings.ToLower(name.text), args), nil
}

// unquote strips the surrounding quotes of a string literal and resolves
// the escape sequences the lexer admitted.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}
