// Package parser turns Cypher text into a syntax tree.
//
// The lexer and parser are hand written, which keeps the frontend free of
// generated grammar code and makes error positions exact. A Parser instance
// reuses internal token buffers between calls and is therefore NOT safe for
// concurrent use; compilation serializes access with a shared parser lock.
package parser

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenInt
	tokenFloat
	tokenString
	tokenParam
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenLBrace
	tokenRBrace
	tokenColon
	tokenComma
	tokenDot
	tokenPipe
	tokenDash
	tokenLt
	tokenGt
	tokenLe
	tokenGe
	tokenEq
	tokenNeq
	tokenPlus
	tokenStar
	tokenSlash
	tokenPercent
)

type token struct {
	kind  tokenKind
	text  string
	upper string // uppercased text for keyword comparison, idents only
	line  int
	col   int
	off   int // byte offset of the token start in the source
	end   int // byte offset one past the token end
}

// SyntaxError reports a lexical or grammatical error with its position.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// scanTokens appends the tokens of src to buf and returns the filled slice.
// Passing a reused buffer avoids reallocating on every parse.
func scanTokens(buf []token, src string) ([]token, error) {
	line, col := 1, 1
	i := 0
	emit := func(kind tokenKind, start, end, startCol int) {
		text := src[start:end]
		t := token{kind: kind, text: text, line: line, col: startCol, off: start, end: end}
		if kind == tokenIdent {
			t.upper = strings.ToUpper(text)
		}
		buf = append(buf, t)
	}
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == '\n':
			line++
			col = 1
			i++
			continue
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
			col++
			continue
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			// Line comment.
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case isIdentStart(ch):
			start, startCol := i, col
			for i < len(src) && isIdentPart(src[i]) {
				i++
				col++
			}
			emit(tokenIdent, start, i, startCol)
			continue
		case isDigit(ch):
			start, startCol := i, col
			kind := tokenInt
			for i < len(src) && isDigit(src[i]) {
				i++
				col++
			}
			if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
				kind = tokenFloat
				i++
				col++
				for i < len(src) && isDigit(src[i]) {
					i++
					col++
				}
			}
			emit(kind, start, i, startCol)
			continue
		case ch == '\'' || ch == '"':
			quote := ch
			start, startCol := i, col
			i++
			col++
			closed := false
			for i < len(src) {
				if src[i] == '\\' && i+1 < len(src) {
					i += 2
					col += 2
					continue
				}
				if src[i] == quote {
					i++
					col++
					closed = true
					break
				}
				if src[i] == '\n' {
					line++
					col = 1
				} else {
					col++
				}
				i++
			}
			if !closed {
				return buf, &SyntaxError{Line: line, Column: startCol, Msg: "unterminated string literal"}
			}
			emit(tokenString, start, i, startCol)
			continue
		case ch == '$':
			start, startCol := i, col
			i++
			col++
			if i >= len(src) || !isIdentStart(src[i]) {
				return buf, &SyntaxError{Line: line, Column: startCol, Msg: "expected parameter name after '$'"}
			}
			for i < len(src) && isIdentPart(src[i]) {
				i++
				col++
			}
			emit(tokenParam, start, i, startCol)
			continue
		}

		start, startCol := i, col
		var kind tokenKind
		switch ch {
		case '(':
			kind = tokenLParen
		case ')':
			kind = tokenRParen
		case '[':
			kind = tokenLBracket
		case ']':
			kind = tokenRBracket
		case '{':
			kind = tokenLBrace
		case '}':
			kind = tokenRBrace
		case ':':
			kind = tokenColon
		case ',':
			kind = tokenComma
		case '.':
			kind = tokenDot
		case '|':
			kind = tokenPipe
		case '-':
			kind = tokenDash
		case '+':
			kind = tokenPlus
		case '*':
			kind = tokenStar
		case '/':
			kind = tokenSlash
		case '%':
			kind = tokenPercent
		case '=':
			kind = tokenEq
		case '<':
			if i+1 < len(src) && src[i+1] == '=' {
				i++
				col++
				kind = tokenLe
			} else if i+1 < len(src) && src[i+1] == '>' {
				i++
				col++
				kind = tokenNeq
			} else {
				kind = tokenLt
			}
		case '>':
			if i+1 < len(src) && src[i+1] == '=' {
				i++
				col++
				kind = tokenGe
			} else {
				kind = tokenGt
			}
		default:
			return buf, &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf("unexpected character %q", ch)}
		}
		i++
		col++
		emit(kind, start, i, startCol)
	}
	buf = append(buf, token{kind: tokenEOF, line: line, col: col, off: len(src), end: len(src)})
	return buf, nil
}
