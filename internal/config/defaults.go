package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
)

// defaultKeys are the keys `default:` may set for every job.
var defaultKeys = []string{
	"after_script", "artifacts", "before_script", "cache", "hooks", "id_tokens",
	"image", "interruptible", "retry", "services", "tags", "timeout",
}

// legacyDefaultKeys may still be written at the top level.
var legacyDefaultKeys = []string{"image", "services", "cache", "before_script", "after_script"}

// readDefaults returns the `default:` mapping with top-level legacy keys
// merged underneath it.
func readDefaults(root *document.Node) (*document.Node, hcl.Diagnostics) {
	out := document.NewMapping()
	for _, k := range legacyDefaultKeys {
		if v := root.Get(k); root.Has(k) {
			out.Set(k, v.Clone())
		}
	}

	def := root.Get("default")
	if def.IsNull() {
		return out, nil
	}
	if !def.IsMapping() {
		return nil, hcl.Diagnostics{syntaxDiag(def.Range, "default config should be a hash")}
	}
	if unknown := unknownKeys(def, defaultKeys); len(unknown) > 0 {
		return nil, hcl.Diagnostics{syntaxDiag(def.Range, fmt.Sprintf("default config contains unknown keys: %s", strings.Join(unknown, ", ")))}
	}
	for _, p := range def.Pairs {
		out.Set(p.Key, p.Value.Clone())
	}
	return out, nil
}

// readInherit parses a job's `inherit:` hash.
func readInherit(n *document.Node, path string) (def, vars Inherit, diags hcl.Diagnostics) {
	def, vars = Inherit{All: true}, Inherit{All: true}
	if n.IsNull() {
		return def, vars, nil
	}
	if !n.IsMapping() {
		return def, vars, hcl.Diagnostics{syntaxDiag(n.Range, path+" config should be a hash")}
	}
	if unknown := unknownKeys(n, []string{"default", "variables"}); len(unknown) > 0 {
		return def, vars, hcl.Diagnostics{syntaxDiag(n.Range, fmt.Sprintf("%s config contains unknown keys: %s", path, strings.Join(unknown, ", ")))}
	}

	var ok bool
	if def, ok = parseInherit(n.Get("default")); !ok {
		diags = append(diags, syntaxDiag(n.Range, path+":default config should be a boolean value or an array of strings"))
	}
	for _, k := range def.Keys {
		if !containsString(defaultKeys, k) {
			diags = append(diags, syntaxDiag(n.Range, fmt.Sprintf("%s:default config contains unknown values: %s", path, k)))
		}
	}
	if vars, ok = parseInherit(n.Get("variables")); !ok {
		diags = append(diags, syntaxDiag(n.Range, path+":variables config should be a boolean value or an array of strings"))
	}
	return def, vars, diags
}

func parseInherit(n *document.Node) (Inherit, bool) {
	if n.IsNull() {
		return Inherit{All: true}, true
	}
	if b, ok := n.AsBool(); ok {
		return Inherit{All: b}, true
	}
	if n.IsSequence() {
		keys, ok := n.StringList()
		return Inherit{Keys: keys}, ok
	}
	return Inherit{All: true}, false
}

// applyDefaults copies the inherited default keys the job does not set
// itself.
func applyDefaults(job, defaults *document.Node, inherit Inherit) *document.Node {
	out := job.Clone()
	for _, p := range defaults.Pairs {
		if !inherit.Allows(p.Key) || out.Has(p.Key) {
			continue
		}
		out.Set(p.Key, p.Value.Clone())
	}
	return out
}
