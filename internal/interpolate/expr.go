package interpolate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

const (
	openDelim  = "$[["
	closeDelim = "]]"
)

// MaxFunctions bounds the length of a block's function pipeline.
const MaxFunctions = 3

// block is one `$[[ ... ]]` occurrence in a string.
type block struct {
	start, end int // byte offsets of the whole block in the source string
	expr       string
}

// scan finds the blocks of s in order. An opening delimiter without a closing
// one is left as text.
func scan(s string) []block {
	var out []block
	offset := 0
	for {
		i := strings.Index(s[offset:], openDelim)
		if i < 0 {
			return out
		}
		start := offset + i
		j := strings.Index(s[start+len(openDelim):], closeDelim)
		if j < 0 {
			return out
		}
		end := start + len(openDelim) + j + len(closeDelim)
		out = append(out, block{start: start, end: end, expr: s[start+len(openDelim) : end-len(closeDelim)]})
		offset = end
	}
}

// Contains reports whether s holds at least one block.
func Contains(s string) bool {
	return len(scan(s)) > 0
}

// access is the `namespace.key` head of an expression.
type access struct {
	namespace string
	key       string
}

func (a access) String() string { return a.namespace + "." + a.key }

// call is one `| name(args)` stage.
type call struct {
	name string
	args []cty.Value
}

type expression struct {
	src   string
	head  access
	calls []call
}

// parseExpression parses the inside of a block.
func parseExpression(src string) (*expression, error) {
	parts := splitPipes(src)
	head := strings.TrimSpace(parts[0])
	ns, key, ok := strings.Cut(head, ".")
	if !ok || !isIdent(ns) || !isIdent(key) {
		return nil, fmt.Errorf("invalid interpolation syntax: `%s`", strings.TrimSpace(src))
	}

	e := &expression{src: strings.TrimSpace(src), head: access{namespace: ns, key: key}}
	if len(parts)-1 > MaxFunctions {
		return nil, fmt.Errorf("too many functions in interpolation block, the maximum is %d", MaxFunctions)
	}
	for _, p := range parts[1:] {
		c, err := parseCall(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		e.calls = append(e.calls, c)
	}
	return e, nil
}

// splitPipes splits on `|` outside quotes and parentheses.
func splitPipes(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '|' && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func parseCall(src string) (call, error) {
	name, rest, hasArgs := strings.Cut(src, "(")
	name = strings.TrimSpace(name)
	if !isIdent(name) {
		return call{}, fmt.Errorf("invalid function syntax: `%s`", src)
	}
	c := call{name: name}
	if !hasArgs {
		return c, nil
	}
	if !strings.HasSuffix(rest, ")") {
		return call{}, fmt.Errorf("invalid function syntax: `%s`", src)
	}
	rest = strings.TrimSpace(strings.TrimSuffix(rest, ")"))
	if rest == "" {
		return c, nil
	}
	for _, raw := range splitArgs(rest) {
		arg, err := parseArg(strings.TrimSpace(raw))
		if err != nil {
			return call{}, fmt.Errorf("invalid argument in `%s`: %w", src, err)
		}
		c.args = append(c.args, arg)
	}
	return c, nil
}

func splitArgs(s string) []string {
	var parts []string
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ',':
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func parseArg(s string) (cty.Value, error) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return cty.StringVal(s[1 : len(s)-1]), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return cty.NilVal, fmt.Errorf("expected a number or a quoted string, got `%s`", s)
	}
	return cty.NumberIntVal(n), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
