package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
)

// MaxExtendsDepth bounds the longest `extends:` chain below a job.
const MaxExtendsDepth = 11

// extender merges `extends:` parents into jobs. Results and chain heights
// are memoized per job, and the active set catches cycles.
type extender struct {
	root   *document.Node
	done   map[string]*document.Node
	height map[string]int
	active map[string]bool
}

// applyExtends returns a copy of root in which every job that declares
// `extends:` has its parents deep-merged underneath its own keys. Parents
// merge in declared order, so a later parent overrides an earlier one.
func applyExtends(root *document.Node) (*document.Node, hcl.Diagnostics) {
	e := &extender{root: root, done: map[string]*document.Node{}, height: map[string]int{}, active: map[string]bool{}}
	out := root.Clone()
	var diags hcl.Diagnostics
	for _, p := range out.Pairs {
		if !p.Value.IsMapping() || !p.Value.Has("extends") {
			continue
		}
		merged, d := e.resolve(p.Key)
		if d != nil {
			diags = append(diags, d)
			continue
		}
		p.Value = merged
	}
	return out, diags
}

func (e *extender) resolve(name string) (*document.Node, *hcl.Diagnostic) {
	if n, ok := e.done[name]; ok {
		return n, nil
	}
	job := e.root.Get(name)
	ext := job.Get("extends")
	if ext == nil {
		return job, nil
	}
	if e.active[name] {
		return nil, syntaxDiag(ext.Range, fmt.Sprintf("%s: circular dependency detected in `extends`", quoteName(name)))
	}
	parents, ok := ext.StringList()
	if !ok {
		return nil, syntaxDiag(ext.Range, fmt.Sprintf("jobs:%s:extends should be an array of strings or a string", name))
	}

	e.active[name] = true
	defer delete(e.active, name)

	var merged *document.Node
	var unknown []string
	height := 0
	for _, parent := range parents {
		if !e.root.Has(parent) {
			unknown = append(unknown, parent)
			continue
		}
		if !e.root.Get(parent).IsMapping() {
			return nil, syntaxDiag(ext.Range, fmt.Sprintf("%s: invalid base hash in `extends`", quoteName(name)))
		}
		base, d := e.resolve(parent)
		if d != nil {
			return nil, d
		}
		height = max(height, e.height[parent]+1)
		merged = document.DeepMerge(merged, base)
	}
	if len(unknown) > 0 {
		return nil, syntaxDiag(ext.Range, fmt.Sprintf("%s: unknown keys in `extends` (%s)", quoteName(name), strings.Join(unknown, ", ")))
	}

	if height > MaxExtendsDepth {
		return nil, syntaxDiag(ext.Range, fmt.Sprintf("%s: nesting too deep in `extends`", quoteName(name)))
	}

	own := job.Clone()
	own.Delete("extends")
	merged = document.DeepMerge(merged, own)
	merged.Delete("extends")
	merged.Range = job.Range
	e.done[name] = merged
	e.height[name] = height
	return merged, nil
}

func quoteName(name string) string {
	return "`" + name + "`"
}
