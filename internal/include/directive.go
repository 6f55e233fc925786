package include

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/source"
)

var directiveKeys = []string{"local", "project", "ref", "file", "remote", "template", "component", "rules", "inputs", "cache", "integrity"}

var locationKeys = []string{"local", "project", "remote", "template", "component"}

// Directive is one entry of an `include:` list. A `project:` entry naming
// several files yields one Directive per file.
type Directive struct {
	Kind source.Kind
	// Location is the local path, remote URL, template name, component
	// locator or, for project includes, the file path. It is expanded
	// before use.
	Location string
	Project  string
	Ref      string
	Rules    []*rules.Rule
	Inputs   *document.Node
	Range    hcl.Range
}

// ParseDirectives reads an `include:` value: a string, a mapping or a list
// of either.
func ParseDirectives(n *document.Node) ([]*Directive, hcl.Diagnostics) {
	if n.IsNull() {
		return nil, nil
	}
	items := []*document.Node{n}
	if n.IsSequence() {
		items = n.Items
	}

	var out []*Directive
	var diags hcl.Diagnostics
	for _, item := range items {
		ds, d := parseDirective(item)
		diags = append(diags, d...)
		out = append(out, ds...)
	}
	return out, diags
}

func parseDirective(n *document.Node) ([]*Directive, hcl.Diagnostics) {
	if s, ok := n.AsString(); ok {
		kind := source.KindLocal
		if isURL(s) {
			kind = source.KindRemote
		}
		return []*Directive{{Kind: kind, Location: s, Range: n.Range}}, nil
	}
	if !n.IsMapping() {
		return nil, hcl.Diagnostics{diag(n.Range, "include config should be a hash or a string")}
	}

	var unknown, locations []string
	for _, k := range n.Keys() {
		if !contains(directiveKeys, k) {
			unknown = append(unknown, k)
		}
		if contains(locationKeys, k) {
			locations = append(locations, k)
		}
	}
	if len(unknown) > 0 {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("include config contains unknown keys: %s", strings.Join(unknown, ", ")))}
	}
	if len(locations) != 1 {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("include config must specify exactly one of %s", strings.Join(locationKeys, ", ")))}
	}

	var diags hcl.Diagnostics
	ruleList, d := rules.ParseList(n.Get("rules"), rules.LevelInclude, "include:rules")
	diags = append(diags, d...)

	inputs := n.Get("inputs")
	if !inputs.IsNull() && !inputs.IsMapping() {
		diags = append(diags, diag(inputs.Range, "include:inputs config should be a hash"))
	}

	base := Directive{Rules: ruleList, Inputs: inputs, Range: n.Range}
	kind := source.Kind(locations[0])
	loc := n.Get(locations[0])

	if kind == source.KindProject {
		project, ok := loc.AsString()
		if !ok || project == "" {
			return nil, append(diags, diag(loc.Range, "include:project config should be a string"))
		}
		files, ok := n.Get("file").StringList()
		if !ok || len(files) == 0 {
			return nil, append(diags, diag(n.Range, "include:file config should be a string or an array of strings"))
		}
		ref, _ := n.Get("ref").Scalar()

		out := make([]*Directive, 0, len(files))
		for _, f := range files {
			d := base
			d.Kind, d.Project, d.Ref, d.Location = source.KindProject, project, ref, f
			out = append(out, &d)
		}
		return out, diags
	}

	if n.Has("file") || n.Has("ref") {
		diags = append(diags, diag(n.Range, "include:file and include:ref can only be used with include:project"))
	}
	s, ok := loc.AsString()
	if !ok || s == "" {
		return nil, append(diags, diag(loc.Range, fmt.Sprintf("include:%s config should be a string", kind)))
	}
	if kind == source.KindRemote && !isURL(s) {
		diags = append(diags, diag(loc.Range, fmt.Sprintf("Remote file `%s` is not a valid address!", s)))
	}
	base.Kind, base.Location = kind, s
	return []*Directive{&base}, diags
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func diag(rng hcl.Range, detail string) *hcl.Diagnostic {
	r := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid include",
		Detail:   detail,
		Subject:  &r,
	}
}
