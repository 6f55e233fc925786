package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// DefaultStages are used when the document declares no `stages:`.
var DefaultStages = []string{".pre", "build", "test", "deploy", ".post"}

// globalKeys are the top-level keys that are not jobs.
var globalKeys = []string{
	"stages", "workflow", "variables", "default", "include",
	"image", "services", "cache", "before_script", "after_script",
}

// IsHidden reports whether a top-level key is a hidden job template.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsGlobalKey reports whether a top-level key configures the pipeline
// rather than naming a job.
func IsGlobalKey(key string) bool {
	return containsString(globalKeys, key)
}

// JobNames returns the visible job names a document declares, in order.
func JobNames(doc *document.Node) []string {
	var out []string
	for _, k := range doc.Keys() {
		if !IsGlobalKey(k) && !IsHidden(k) {
			out = append(out, k)
		}
	}
	return out
}

// Build turns a resolved document into a Model. All structural problems are
// reported together as syntax errors.
func Build(ctx context.Context, doc *document.Node) (*Model, error) {
	if doc.IsNull() {
		doc = document.NewMapping()
	}
	var diags hcl.Diagnostics

	extended, d := applyExtends(doc)
	diags = append(diags, d...)

	m := &Model{}
	m.Stages, d = readStages(extended)
	diags = append(diags, d...)

	m.Workflow, d = readWorkflow(extended.Get("workflow"))
	diags = append(diags, d...)

	m.Variables, d = variables.FromNode(extended.Get("variables"), variables.SourceYAML, "variables")
	diags = append(diags, d...)

	defaults, d := readDefaults(extended)
	diags = append(diags, d...)

	for _, p := range extended.Pairs {
		if IsGlobalKey(p.Key) || IsHidden(p.Key) {
			continue
		}
		path := "jobs:" + p.Key
		if p.Key == "" {
			diags = append(diags, syntaxDiag(p.KeyRange, "jobs config should contain valid job names"))
			continue
		}
		if !p.Value.IsMapping() {
			diags = append(diags, syntaxDiag(p.KeyRange, path+" config should be a hash"))
			continue
		}

		inheritDefault, inheritVars, d := readInherit(p.Value.Get("inherit"), path+":inherit")
		diags = append(diags, d...)
		node := p.Value
		if defaults != nil {
			node = applyDefaults(node, defaults, inheritDefault)
		}

		j, d := parseJob(p.Key, node)
		diags = append(diags, d...)
		if j == nil {
			continue
		}
		j.InheritVariables = inheritVars
		if m.StageIndex(j.Stage) < 0 && len(m.Stages) > 0 {
			diags = append(diags, syntaxDiag(nodeRange(node.Get("stage"), node),
				fmt.Sprintf("%s chosen stage %s does not exist; available stages are %s", path, j.Stage, strings.Join(m.Stages, ", "))))
			continue
		}
		m.Jobs = append(m.Jobs, j)
	}

	if diags.HasErrors() {
		return nil, cierr.Join(cierr.FromDiagnostics(cierr.KindSyntax, diags))
	}
	ctxlog.FromContext(ctx).Debug("configuration model built", "stages", len(m.Stages), "jobs", len(m.Jobs))
	return m, nil
}

// readStages returns the declared stages wrapped in .pre and .post.
func readStages(doc *document.Node) ([]string, hcl.Diagnostics) {
	v := doc.Get("stages")
	if v.IsNull() {
		return append([]string(nil), DefaultStages...), nil
	}
	if !v.IsSequence() {
		return nil, hcl.Diagnostics{syntaxDiag(v.Range, "stages config should be an array of strings")}
	}

	out := []string{".pre"}
	seen := map[string]bool{".pre": true, ".post": true}
	for _, item := range flattenNodes(v.Items) {
		s, ok := item.Scalar()
		if !ok || item.IsNull() {
			return nil, hcl.Diagnostics{syntaxDiag(item.Range, "stages config should be an array of strings")}
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return append(out, ".post"), nil
}

func readWorkflow(n *document.Node) (Workflow, hcl.Diagnostics) {
	if n.IsNull() {
		return Workflow{}, nil
	}
	if !n.IsMapping() {
		return Workflow{}, hcl.Diagnostics{syntaxDiag(n.Range, "workflow config should be a hash")}
	}
	if unknown := unknownKeys(n, []string{"name", "rules", "auto_cancel"}); len(unknown) > 0 {
		return Workflow{}, hcl.Diagnostics{syntaxDiag(n.Range, fmt.Sprintf("workflow config contains unknown keys: %s", strings.Join(unknown, ", ")))}
	}
	var diags hcl.Diagnostics
	w := Workflow{}
	if name := n.Get("name"); !name.IsNull() {
		s, ok := name.Scalar()
		if !ok {
			diags = append(diags, syntaxDiag(name.Range, "workflow:name config should be a string"))
		}
		w.Name = s
	}
	list, d := rules.ParseList(n.Get("rules"), rules.LevelWorkflow, "workflow:rules")
	diags = append(diags, d...)
	w.Rules = list
	return w, diags
}

func nodeRange(n, fallback *document.Node) hcl.Range {
	if n != nil {
		return n.Range
	}
	return fallback.Range
}
