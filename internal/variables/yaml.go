package variables

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
)

// FromNode reads a `variables:` mapping. Values are scalars or hashes with
// `value`, `description`, `expand` and `options`.
func FromNode(n *document.Node, source Source, path string) ([]Variable, hcl.Diagnostics) {
	if n.IsNull() {
		return nil, nil
	}
	if !n.IsMapping() {
		return nil, hcl.Diagnostics{invalid(n.Range, fmt.Sprintf("%s config should be a hash of key value pairs", path))}
	}

	var vars []Variable
	var diags hcl.Diagnostics
	for _, p := range n.Pairs {
		v := Variable{Key: p.Key, Source: source}
		switch {
		case p.Value.IsScalar():
			v.Value, _ = p.Value.Scalar()
		case p.Value.IsMapping():
			for _, k := range p.Value.Keys() {
				switch k {
				case "value", "description", "expand", "options":
				default:
					diags = append(diags, invalid(p.KeyRange, fmt.Sprintf("%s:%s config contains unknown keys: %s", path, p.Key, k)))
				}
			}
			value := p.Value.Get("value")
			if !value.IsNull() && !value.IsScalar() {
				diags = append(diags, invalid(p.KeyRange, fmt.Sprintf("%s:%s value must be a string", path, p.Key)))
				continue
			}
			v.Value, _ = value.Scalar()
			if expand := p.Value.Get("expand"); !expand.IsNull() {
				b, ok := expand.AsBool()
				if !ok {
					diags = append(diags, invalid(expand.Range, fmt.Sprintf("%s:%s expand should be a boolean value", path, p.Key)))
					continue
				}
				v.Raw = !b
			}
			if options := p.Value.Get("options"); !options.IsNull() {
				list, ok := options.StringList()
				if !ok {
					diags = append(diags, invalid(options.Range, fmt.Sprintf("%s:%s options should be an array of strings", path, p.Key)))
					continue
				}
				if !contains(list, v.Value) {
					diags = append(diags, invalid(options.Range, fmt.Sprintf("%s:%s value must be one of the options", path, p.Key)))
					continue
				}
			}
		default:
			diags = append(diags, invalid(p.KeyRange, fmt.Sprintf("%s:%s value must be a string or a hash", path, p.Key)))
			continue
		}
		vars = append(vars, v)
	}
	return vars, diags
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func invalid(rng hcl.Range, detail string) *hcl.Diagnostic {
	r := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid variables",
		Detail:   detail,
		Subject:  &r,
	}
}
