package interpolate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
)

// ResolveInputs matches the caller's inputs (a mapping, or nil) against the
// header. Every problem is reported; the map is only complete when no error is
// returned.
func ResolveInputs(h *Header, given *document.Node) (map[string]Value, []error) {
	var errs []error
	if !given.IsNull() && !given.IsMapping() {
		return nil, []error{cierr.At(cierr.KindInterpolation, given.Range, "inputs config should be a hash")}
	}

	if h == nil || len(h.Inputs) == 0 {
		if len(given.Keys()) > 0 {
			return nil, []error{cierr.At(cierr.KindInterpolation, given.Range,
				"Given inputs not defined in the `spec` section of the included configuration file")}
		}
		return map[string]Value{}, nil
	}

	var unknown []string
	for _, k := range given.Keys() {
		if h.Input(k) == nil {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		errs = append(errs, cierr.At(cierr.KindInterpolation, given.Range,
			"unknown input arguments: %s", strings.Join(unknown, ", ")))
	}

	out := make(map[string]Value, len(h.Inputs))
	for _, s := range h.Inputs {
		v, err := resolveInput(s, given.Get(s.Name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[s.Name] = v
	}
	return out, errs
}

func resolveInput(s *InputSpec, provided *document.Node) (Value, error) {
	source := "provided"
	n := provided
	rng := s.Range
	if n.IsNull() {
		if !s.HasDefault() {
			return Value{}, inputError(rng, s.Name, "required value has not been provided")
		}
		source, n = "default", s.Default
	} else {
		rng = n.Range
	}

	v := newValue(n)
	if !n.IsNull() && !s.accepts(v.Cty.Type()) {
		return Value{}, inputError(rng, s.Name, fmt.Sprintf("%s value is not a%s %s", source, article(string(s.Type)), s.Type))
	}

	if len(s.Options) > 0 && !inOptions(v, s.Options) {
		return Value{}, inputError(rng, s.Name, fmt.Sprintf("`%s` cannot be used because it is not in the list of allowed options", n.String()))
	}

	if s.Regex != nil && !n.IsNull() {
		str, _ := n.AsString()
		if !s.Regex.MatchString(str) {
			return Value{}, inputError(rng, s.Name, fmt.Sprintf("%s value does not match required RegEx pattern", source))
		}
	}
	return v, nil
}

func inOptions(v Value, options []*document.Node) bool {
	for _, o := range options {
		if toCty(o).RawEquals(v.Cty) {
			return true
		}
	}
	return false
}

func inputError(rng hcl.Range, name, msg string) error {
	return cierr.At(cierr.KindInterpolation, rng, "`%s` input: %s", name, msg)
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiou", rune(word[0])) {
		return "n"
	}
	return ""
}
