package rules

import (
	"regexp"
	"strings"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// Expression is a parsed `if:` condition.
//
// Operands are variables, string literals, `null` and `/pattern/flags`
// literals. Comparisons are `==`, `!=`, `=~` and `!~`; `&&` binds tighter
// than `||` and both short-circuit left to right. Patterns use RE2, so
// matching is linear in the input.
type Expression struct {
	src  string
	root exprNode
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.src }

type exprNode interface {
	eval(lookup variables.Lookup) (value, error)
}

type valueKind int

const (
	valNull valueKind = iota
	valString
	valRegex
	valBool
)

type value struct {
	kind valueKind
	str  string
	re   *regexp.Regexp
	b    bool
}

func (v value) truthy() bool {
	switch v.kind {
	case valString:
		return v.str != ""
	case valBool:
		return v.b
	case valRegex:
		return true
	default:
		return false
	}
}

// Parse compiles an expression.
func Parse(src string) (*Expression, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, syntaxError(src, p.peek().pos)
	}
	return &Expression{src: src, root: root}, nil
}

// Evaluate reports whether the expression holds.
func (e *Expression) Evaluate(lookup variables.Lookup) (bool, error) {
	v, err := e.root.eval(lookup)
	if err != nil {
		return false, err
	}
	return v.truthy(), nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{or: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (exprNode, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (exprNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	switch op := p.peek().kind; op {
	case tokEq, tokNe, tokMatch, tokNoMatch:
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if _, isGroup := right.(*groupNode); isGroup {
			return nil, syntaxError(p.src, p.peek().pos)
		}
		return &comparisonNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, syntaxError(p.src, t.pos)
		}
		return &groupNode{inner: inner}, nil
	case tokVariable:
		return &variableNode{name: t.text}, nil
	case tokString:
		return &literalNode{v: value{kind: valString, str: t.text}}, nil
	case tokNull:
		return &literalNode{v: value{kind: valNull}}, nil
	case tokRegex:
		re, err := compilePattern(t.text, t.flags)
		if err != nil {
			return nil, err
		}
		return &literalNode{v: value{kind: valRegex, re: re}}, nil
	default:
		return nil, syntaxError(p.src, t.pos)
	}
}

func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, cierr.New(cierr.KindRuleEvaluation, "invalid regular expression %s: %s", quote(pattern), err)
	}
	return re, nil
}

// patternFromString reads a pattern held in a variable. Values written as
// `/pattern/flags` use the flags; any other value is a pattern as is.
func patternFromString(s string) (*regexp.Regexp, error) {
	if len(s) >= 2 && s[0] == '/' {
		if end := strings.LastIndexByte(s, '/'); end > 0 {
			flags := s[end+1:]
			if strings.Trim(flags, "ims") == "" {
				return compilePattern(s[1:end], flags)
			}
		}
	}
	return compilePattern(s, "")
}

type groupNode struct{ inner exprNode }

func (n *groupNode) eval(lookup variables.Lookup) (value, error) {
	return n.inner.eval(lookup)
}

type variableNode struct{ name string }

func (n *variableNode) eval(lookup variables.Lookup) (value, error) {
	if v, ok := lookup(n.name); ok {
		return value{kind: valString, str: v}, nil
	}
	return value{kind: valNull}, nil
}

type literalNode struct{ v value }

func (n *literalNode) eval(variables.Lookup) (value, error) { return n.v, nil }

type logicalNode struct {
	or          bool
	left, right exprNode
}

func (n *logicalNode) eval(lookup variables.Lookup) (value, error) {
	l, err := n.left.eval(lookup)
	if err != nil {
		return value{}, err
	}
	if n.or && l.truthy() {
		return value{kind: valBool, b: true}, nil
	}
	if !n.or && !l.truthy() {
		return value{kind: valBool, b: false}, nil
	}
	r, err := n.right.eval(lookup)
	if err != nil {
		return value{}, err
	}
	return value{kind: valBool, b: r.truthy()}, nil
}

type comparisonNode struct {
	op          tokenKind
	left, right exprNode
}

func (n *comparisonNode) eval(lookup variables.Lookup) (value, error) {
	l, err := n.left.eval(lookup)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(lookup)
	if err != nil {
		return value{}, err
	}

	switch n.op {
	case tokEq, tokNe:
		eq := l.kind == r.kind && l.str == r.str
		if l.kind == valRegex || r.kind == valRegex {
			return value{}, cierr.New(cierr.KindRuleEvaluation, "patterns can only be used with =~ and !~")
		}
		return value{kind: valBool, b: eq == (n.op == tokEq)}, nil
	default:
		re := r.re
		switch r.kind {
		case valRegex:
		case valString:
			re, err = patternFromString(r.str)
			if err != nil {
				return value{}, err
			}
		default:
			return value{kind: valBool, b: n.op == tokNoMatch}, nil
		}
		if l.kind != valString {
			return value{kind: valBool, b: n.op == tokNoMatch}, nil
		}
		matched := re.MatchString(l.str)
		return value{kind: valBool, b: matched == (n.op == tokMatch)}, nil
	}
}
