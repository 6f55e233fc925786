// Package parallel multiplies a job definition into its concrete instances,
// either `parallel: N` or `parallel: matrix:`, and resolves the matrix
// selectors that needs use to point at specific instances.
package parallel

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
)

// MaxInstances bounds the number of instances one job may produce.
const MaxInstances = 200

// Axis is one matrix variable and the values it takes.
type Axis struct {
	Name   string
	Values []string
}

// Entry is one item of a `matrix:` list. Its axes are kept in declaration
// order.
type Entry []Axis

// size is the number of combinations of the entry, capped just above
// MaxInstances.
func (e Entry) size() int {
	n := 1
	for _, a := range e {
		n *= len(a.Values)
		if n > MaxInstances {
			return MaxInstances + 1
		}
	}
	return n
}

// Spec is a parsed `parallel:` value. Exactly one of Count and Matrix is set.
type Spec struct {
	Count  int
	Matrix []Entry
	Range  hcl.Range
}

// Total returns the number of instances the spec produces. Matrices larger
// than MaxInstances report MaxInstances+1.
func (s *Spec) Total() int {
	if s == nil {
		return 1
	}
	if s.Count > 0 {
		return s.Count
	}
	total := 0
	for _, e := range s.Matrix {
		total += e.size()
		if total > MaxInstances {
			return MaxInstances + 1
		}
	}
	return total
}

// ParseSpec reads a job's `parallel:` value. path prefixes messages, e.g.
// `jobs:rspec:parallel`.
func ParseSpec(n *document.Node, path string) (*Spec, hcl.Diagnostics) {
	if n.IsNull() {
		return nil, nil
	}
	if count, ok := n.AsInt(); ok {
		if count < 1 || count > MaxInstances {
			return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s config must be between 1 and %d", path, MaxInstances))}
		}
		return &Spec{Count: count, Range: n.Range}, nil
	}
	if !n.IsMapping() {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s should be an integer or a hash", path))}
	}
	for _, k := range n.Keys() {
		if k != "matrix" {
			return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s config contains unknown keys: %s", path, k))}
		}
	}

	entries, diags := ParseMatrix(n.Get("matrix"), path+":matrix")
	if diags.HasErrors() {
		return nil, diags
	}
	s := &Spec{Matrix: entries, Range: n.Range}
	if total := s.Total(); total > MaxInstances {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s config generates too many jobs (maximum is %d)", path+":matrix", MaxInstances))}
	}
	return s, nil
}

// ParseMatrix reads a `matrix:` list of axis hashes. Values may be scalars
// or lists of scalars.
func ParseMatrix(n *document.Node, path string) ([]Entry, hcl.Diagnostics) {
	if !n.IsSequence() || len(n.Items) == 0 {
		return nil, hcl.Diagnostics{diag(rangeOf(n), fmt.Sprintf("%s config should be an array of hashes", path))}
	}
	var out []Entry
	var diags hcl.Diagnostics
	for _, item := range n.Items {
		if !item.IsMapping() || len(item.Pairs) == 0 {
			diags = append(diags, diag(item.Range, fmt.Sprintf("%s config should be an array of hashes", path)))
			continue
		}
		var e Entry
		for _, p := range item.Pairs {
			if !isVariableName(p.Key) {
				diags = append(diags, diag(p.KeyRange, fmt.Sprintf("%s %s is not a valid variable name", path, p.Key)))
				continue
			}
			values, ok := axisValues(p.Value)
			if !ok {
				diags = append(diags, diag(p.Value.Range, fmt.Sprintf("%s:%s config should be a string or an array of strings", path, p.Key)))
				continue
			}
			e = append(e, Axis{Name: p.Key, Values: values})
		}
		out = append(out, e)
	}
	return out, diags
}

func axisValues(n *document.Node) ([]string, bool) {
	if n.IsScalar() && !n.IsNull() {
		return []string{n.Value}, true
	}
	list, ok := n.StringList()
	if !ok || len(list) == 0 {
		return nil, false
	}
	return list, true
}

func isVariableName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func rangeOf(n *document.Node) hcl.Range {
	if n == nil {
		return hcl.Range{}
	}
	return n.Range
}

func diag(rng hcl.Range, detail string) *hcl.Diagnostic {
	r := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid parallel configuration",
		Detail:   detail,
		Subject:  &r,
	}
}
