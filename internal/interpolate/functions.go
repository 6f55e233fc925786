package interpolate

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// PosixQuoteFunc wraps its argument in single quotes for use as one shell word.
var PosixQuoteFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "str", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(posixQuote(args[0].AsString())), nil
	},
})

// PosixEscapeFunc backslash-escapes every character a POSIX shell treats
// specially.
var PosixEscapeFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "str", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(posixEscape(args[0].AsString())), nil
	},
})

// TruncateFunc keeps length characters starting at offset.
var TruncateFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "str", Type: cty.String},
		{Name: "offset", Type: cty.Number},
		{Name: "length", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		for _, a := range args[1:] {
			if a.LessThan(cty.Zero).True() {
				return cty.NilVal, fmt.Errorf("offset and length must be non-negative")
			}
		}
		return stdlib.Substr(args[0], args[1], args[2])
	},
})

// expandVarsFunc expands `$VAR` references with lookup. Callers pass a
// lookup that hides masked variables.
func expandVarsFunc(lookup variables.Lookup) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "str", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if lookup == nil {
				return args[0], nil
			}
			return cty.StringVal(variables.Expand(args[0].AsString(), lookup)), nil
		},
	})
}

// functions returns the registry available to blocks under ctx.
func functions(ctx Context) map[string]function.Function {
	return map[string]function.Function{
		"posix_quote":  PosixQuoteFunc,
		"posix_escape": PosixEscapeFunc,
		"truncate":     TruncateFunc,
		"expand_vars":  expandVarsFunc(ctx.Variables),
	}
}

func posixQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func posixEscape(s string) string {
	if s == "" {
		return "''"
	}
	var b strings.Builder
	b.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\n':
			b.WriteString("'\n'")
		case isShellSafe(c):
			b.WriteByte(c)
		default:
			b.WriteByte('\\')
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isShellSafe(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		strings.IndexByte("_-.,:+/@", c) >= 0 || c >= 0x80
}
