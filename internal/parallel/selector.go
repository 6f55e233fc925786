package parallel

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/ciforge/internal/interpolate"
)

// ResolveSelector picks the instances of a needed job that a
// `needs:parallel:matrix` selector names. Selector values may use
// `$[[ matrix.AXIS ]]`, bound to the needing instance's combination.
//
// Each selector combination must match exactly one instance. A combination
// that names every axis of a target matches by equality; one that names only
// some axes is accepted only when it is unambiguous.
func ResolveSelector(selector []Entry, bindings map[string]string, targets []Instance) ([]Instance, error) {
	if bindings == nil {
		bindings = map[string]string{}
	}
	ctx := interpolate.Context{Matrix: bindings}

	var out []Instance
	seen := map[string]bool{}
	for _, e := range selector {
		resolved := make(Entry, len(e))
		for i, axis := range e {
			values := make([]string, len(axis.Values))
			for j, v := range axis.Values {
				s, err := interpolate.Text(v, ctx)
				if err != nil {
					return nil, err
				}
				values[j] = s
			}
			resolved[i] = Axis{Name: axis.Name, Values: values}
		}

		for _, combo := range combinations(resolved) {
			var matches []Instance
			for _, t := range targets {
				if matchesCombination(t, combo) {
					matches = append(matches, t)
				}
			}
			switch {
			case len(matches) == 0:
				return nil, fmt.Errorf("matrix selector %s does not match any instance", formatCombination(combo))
			case len(matches) > 1 && len(combo) < axisCount(matches[0]):
				return nil, fmt.Errorf("matrix selector %s is ambiguous, it matches %d instances", formatCombination(combo), len(matches))
			}
			for _, m := range matches {
				key := m.Name.String()
				if !seen[key] {
					seen[key] = true
					out = append(out, m)
				}
			}
		}
	}
	return out, nil
}

func matchesCombination(t Instance, combo []Binding) bool {
	if t.Combination == nil {
		return false
	}
	values := t.Bindings()
	for _, b := range combo {
		v, ok := values[b.Key]
		if !ok || v != b.Value {
			return false
		}
	}
	return true
}

func axisCount(i Instance) int {
	return len(i.Combination)
}

func formatCombination(combo []Binding) string {
	parts := make([]string, len(combo))
	for i, b := range combo {
		parts[i] = b.Key + ": " + b.Value
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
