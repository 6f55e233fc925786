package rules

import (
	"fmt"

	"github.com/specialistvlad/ciforge/internal/cierr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokVariable
	tokString
	tokRegex
	tokNull
	tokEq
	tokNe
	tokMatch
	tokNoMatch
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokVariable:
		return "variable"
	case tokString:
		return "string"
	case tokRegex:
		return "pattern"
	case tokNull:
		return "null"
	case tokEq:
		return "=="
	case tokNe:
		return "!="
	case tokMatch:
		return "=~"
	case tokNoMatch:
		return "!~"
	case tokAnd:
		return "&&"
	case tokOr:
		return "||"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	default:
		return "token"
	}
}

type token struct {
	kind  tokenKind
	text  string
	flags string
	pos   int
}

// lex splits an expression into tokens in a single pass.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == '$':
			start := i
			i++
			braced := i < len(src) && src[i] == '{'
			if braced {
				i++
			}
			nameStart := i
			for i < len(src) && isNameByte(src[i]) {
				i++
			}
			if i == nameStart {
				return nil, syntaxError(src, start)
			}
			name := src[nameStart:i]
			if braced {
				if i >= len(src) || src[i] != '}' {
					return nil, syntaxError(src, start)
				}
				i++
			}
			toks = append(toks, token{kind: tokVariable, text: name, pos: start})
		case c == '"' || c == '\'':
			end := i + 1
			for end < len(src) && src[end] != c {
				end++
			}
			if end >= len(src) {
				return nil, syntaxError(src, i)
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : end], pos: i})
			i = end + 1
		case c == '/':
			start := i
			i++
			var pattern []byte
			closed := false
			for i < len(src) {
				if src[i] == '\\' && i+1 < len(src) && src[i+1] == '/' {
					pattern = append(pattern, '/')
					i += 2
					continue
				}
				if src[i] == '/' {
					closed = true
					i++
					break
				}
				pattern = append(pattern, src[i])
				i++
			}
			if !closed {
				return nil, syntaxError(src, start)
			}
			flagStart := i
			for i < len(src) && (src[i] == 'i' || src[i] == 'm' || src[i] == 's') {
				i++
			}
			toks = append(toks, token{kind: tokRegex, text: string(pattern), flags: src[flagStart:i], pos: start})
		case hasPrefixAt(src, i, "=="):
			toks = append(toks, token{kind: tokEq, pos: i})
			i += 2
		case hasPrefixAt(src, i, "!="):
			toks = append(toks, token{kind: tokNe, pos: i})
			i += 2
		case hasPrefixAt(src, i, "=~"):
			toks = append(toks, token{kind: tokMatch, pos: i})
			i += 2
		case hasPrefixAt(src, i, "!~"):
			toks = append(toks, token{kind: tokNoMatch, pos: i})
			i += 2
		case hasPrefixAt(src, i, "&&"):
			toks = append(toks, token{kind: tokAnd, pos: i})
			i += 2
		case hasPrefixAt(src, i, "||"):
			toks = append(toks, token{kind: tokOr, pos: i})
			i += 2
		case hasPrefixAt(src, i, "null") && (i+4 == len(src) || !isNameByte(src[i+4])):
			toks = append(toks, token{kind: tokNull, pos: i})
			i += 4
		default:
			return nil, syntaxError(src, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func hasPrefixAt(s string, i int, prefix string) bool {
	return len(s)-i >= len(prefix) && s[i:i+len(prefix)] == prefix
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func syntaxError(src string, pos int) error {
	return cierr.New(cierr.KindRuleEvaluation, "invalid expression syntax at position %d: %s", pos, quote(src))
}

func quote(s string) string {
	return fmt.Sprintf("`%s`", s)
}
