package interpolate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/zclconf/go-cty/cty"
)

// Type is the declared type of an input.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// MaxOptions bounds the length of an input's `options` list.
const MaxOptions = 50

var specKeys = []string{"inputs", "component", "description"}

var inputKeys = []string{"default", "description", "options", "regex", "type"}

var componentFields = []string{"name", "sha", "version", "reference"}

// InputSpec is one entry of `spec:inputs`.
type InputSpec struct {
	Name        string
	Type        Type
	Description string
	Default     *document.Node
	Options     []*document.Node
	Regex       *regexp.Regexp
	Range       hcl.Range
}

// HasDefault reports whether the input declares a default.
func (s *InputSpec) HasDefault() bool { return s.Default != nil }

// Required reports whether a caller must supply the input.
func (s *InputSpec) Required() bool { return s.Default == nil }

// accepts reports whether t satisfies the declared type.
func (s *InputSpec) accepts(t cty.Type) bool {
	switch s.Type {
	case TypeNumber:
		return t.Equals(cty.Number)
	case TypeBoolean:
		return t.Equals(cty.Bool)
	case TypeArray:
		return t.IsTupleType() || t.IsListType()
	default:
		return t.Equals(cty.String)
	}
}

// Header is the parsed `spec:` mapping of a file.
type Header struct {
	Inputs []*InputSpec
	// ComponentFields lists the `spec:component` fields the file may use.
	ComponentFields []string
}

// Input returns the spec named name, or nil.
func (h *Header) Input(name string) *InputSpec {
	if h == nil {
		return nil
	}
	for _, s := range h.Inputs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ParseHeader reads a `spec:` mapping. A nil spec yields a nil Header.
func ParseHeader(spec *document.Node) (*Header, hcl.Diagnostics) {
	if spec.IsNull() {
		return nil, nil
	}
	if !spec.IsMapping() {
		return nil, hcl.Diagnostics{syntaxDiag(spec.Range, "header:spec config should be a hash")}
	}

	var diags hcl.Diagnostics
	if unknown := unknownKeys(spec, specKeys); len(unknown) > 0 {
		diags = append(diags, syntaxDiag(spec.Range, fmt.Sprintf("header:spec config contains unknown keys: %s", strings.Join(unknown, ", "))))
	}

	h := &Header{}
	inputs, d := ParseSpecs(spec.Get("inputs"))
	diags = append(diags, d...)
	h.Inputs = inputs

	if c := spec.Get("component"); !c.IsNull() {
		fields, ok := c.StringList()
		if !ok {
			diags = append(diags, syntaxDiag(c.Range, "header:spec:component config should be an array of strings"))
		}
		for _, f := range fields {
			if !contains(componentFields, f) {
				diags = append(diags, syntaxDiag(c.Range, fmt.Sprintf("header:spec:component unknown value: %s", f)))
			}
		}
		h.ComponentFields = fields
	}
	return h, diags
}

// ParseSpecs reads the `spec:inputs` mapping in declaration order.
func ParseSpecs(n *document.Node) ([]*InputSpec, hcl.Diagnostics) {
	if n.IsNull() {
		return nil, nil
	}
	if !n.IsMapping() {
		return nil, hcl.Diagnostics{syntaxDiag(n.Range, "header:spec:inputs config should be a hash")}
	}

	var specs []*InputSpec
	var diags hcl.Diagnostics
	for _, p := range n.Pairs {
		s, d := parseSpec(p)
		diags = append(diags, d...)
		if s != nil {
			specs = append(specs, s)
		}
	}
	return specs, diags
}

func parseSpec(p *document.Pair) (*InputSpec, hcl.Diagnostics) {
	path := "header:spec:inputs:" + p.Key
	s := &InputSpec{Name: p.Key, Type: TypeString, Range: p.KeyRange}
	def := p.Value
	if def.IsNull() {
		return s, nil
	}
	if !def.IsMapping() {
		return nil, hcl.Diagnostics{syntaxDiag(def.Range, path+" config should be a hash")}
	}
	if unknown := unknownKeys(def, inputKeys); len(unknown) > 0 {
		return nil, hcl.Diagnostics{syntaxDiag(def.Range, fmt.Sprintf("%s config contains unknown keys: %s", path, strings.Join(unknown, ", ")))}
	}

	var diags hcl.Diagnostics
	if t := def.Get("type"); !t.IsNull() {
		name, _ := t.AsString()
		switch Type(name) {
		case TypeString, TypeNumber, TypeBoolean, TypeArray:
			s.Type = Type(name)
		default:
			diags = append(diags, syntaxDiag(t.Range, fmt.Sprintf("%s input type unknown value: %s", path, t.String())))
		}
	}
	if d := def.Get("description"); !d.IsNull() {
		s.Description, _ = d.Scalar()
	}
	if def.Has("default") {
		s.Default = def.Get("default")
		if s.Default == nil {
			s.Default = document.NewNull()
		}
	}
	if o := def.Get("options"); !o.IsNull() {
		switch {
		case !o.IsSequence():
			diags = append(diags, syntaxDiag(o.Range, path+" options should be an array"))
		case len(o.Items) > MaxOptions:
			diags = append(diags, syntaxDiag(o.Range, fmt.Sprintf("%s options cannot exceed %d entries", path, MaxOptions)))
		default:
			s.Options = o.Items
		}
	}
	if r := def.Get("regex"); !r.IsNull() {
		src, _ := r.AsString()
		if s.Type != TypeString {
			diags = append(diags, syntaxDiag(r.Range, path+" regex can only be used with string inputs"))
		} else if re, err := compileRegex(src); err != nil {
			diags = append(diags, syntaxDiag(r.Range, fmt.Sprintf("%s invalid regular expression: %s", path, err)))
		} else {
			s.Regex = re
		}
	}
	return s, diags
}

// compileRegex accepts both `pattern` and `/pattern/`.
func compileRegex(src string) (*regexp.Regexp, error) {
	if len(src) >= 2 && strings.HasPrefix(src, "/") && strings.HasSuffix(src, "/") {
		src = src[1 : len(src)-1]
	}
	return regexp.Compile(src)
}

func unknownKeys(n *document.Node, allowed []string) []string {
	var out []string
	for _, k := range n.Keys() {
		if !contains(allowed, k) {
			out = append(out, k)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func syntaxDiag(rng hcl.Range, detail string) *hcl.Diagnostic {
	r := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid input specification",
		Detail:   detail,
		Subject:  &r,
	}
}
