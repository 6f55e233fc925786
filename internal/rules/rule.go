package rules

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// When decides if and how a job runs.
type When string

const (
	WhenOnSuccess When = "on_success"
	WhenOnFailure When = "on_failure"
	WhenAlways    When = "always"
	WhenManual    When = "manual"
	WhenDelayed   When = "delayed"
	WhenNever     When = "never"
)

// Level selects which keys and `when` values a rule list accepts.
type Level int

const (
	LevelJob Level = iota
	LevelWorkflow
	LevelInclude
)

var levelKeys = map[Level][]string{
	LevelJob:      {"if", "changes", "exists", "when", "start_in", "allow_failure", "variables", "interruptible"},
	LevelWorkflow: {"if", "changes", "exists", "when", "variables", "auto_cancel"},
	LevelInclude:  {"if", "changes", "exists", "when"},
}

var levelWhen = map[Level][]When{
	LevelJob:      {WhenOnSuccess, WhenOnFailure, WhenAlways, WhenManual, WhenDelayed, WhenNever},
	LevelWorkflow: {WhenAlways, WhenNever},
	LevelInclude:  {WhenAlways, WhenNever},
}

// ValidWhen reports whether w is accepted at level.
func ValidWhen(level Level, w When) bool {
	for _, v := range levelWhen[level] {
		if v == w {
			return true
		}
	}
	return false
}

// Changes is a `changes:` clause.
type Changes struct {
	Paths     []string
	CompareTo string
}

// Exists is an `exists:` clause. Project and Ref default to the pipeline's.
type Exists struct {
	Paths   []string
	Project string
	Ref     string
}

// Rule is one clause of a rules list.
type Rule struct {
	If            *Expression
	Exists        *Exists
	Changes       *Changes
	When          When
	StartIn       string
	AllowFailure  *bool
	Interruptible *bool
	Variables     []variables.Variable
	Range         hcl.Range
}

// HasConditions reports whether the rule has any condition.
func (r *Rule) HasConditions() bool {
	return r.If != nil || r.Exists != nil || r.Changes != nil
}

// ParseList reads a `rules:` sequence. path prefixes error messages, e.g.
// `jobs:rspec:rules`.
func ParseList(n *document.Node, level Level, path string) ([]*Rule, hcl.Diagnostics) {
	if n.IsNull() {
		return nil, nil
	}
	if !n.IsSequence() {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s config should be an array of hashes", path))}
	}

	var out []*Rule
	var diags hcl.Diagnostics
	for _, item := range flatten(n.Items) {
		r, d := parseRule(item, level, path)
		diags = append(diags, d...)
		if r != nil {
			out = append(out, r)
		}
	}
	return out, diags
}

// flatten inlines nested sequences, which appear when rules are reused with
// `!reference`.
func flatten(items []*document.Node) []*document.Node {
	var out []*document.Node
	for _, item := range items {
		if item.IsSequence() {
			out = append(out, flatten(item.Items)...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func parseRule(n *document.Node, level Level, path string) (*Rule, hcl.Diagnostics) {
	if !n.IsMapping() {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule config should be a hash", path))}
	}
	var diags hcl.Diagnostics
	allowed := levelKeys[level]
	var unknown []string
	for _, k := range n.Keys() {
		if !containsString(allowed, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule config contains unknown keys: %s", path, strings.Join(unknown, ", ")))}
	}

	r := &Rule{Range: n.Range}

	if v := n.Get("if"); !v.IsNull() {
		src, ok := v.AsString()
		if !ok {
			diags = append(diags, exprDiag(v.Range, fmt.Sprintf("%s:rule if invalid expression syntax", path)))
		} else if expr, err := Parse(src); err != nil {
			diags = append(diags, exprDiag(v.Range, fmt.Sprintf("%s:rule if %s", path, err)))
		} else {
			r.If = expr
		}
	}

	if v := n.Get("exists"); n.Has("exists") {
		ex, d := parseExists(v, path)
		diags = append(diags, d...)
		r.Exists = ex
	}

	if v := n.Get("changes"); n.Has("changes") {
		ch, d := parseChanges(v, path)
		diags = append(diags, d...)
		r.Changes = ch
	}

	if v := n.Get("when"); !v.IsNull() {
		s, _ := v.AsString()
		w := When(s)
		if !ValidWhen(level, w) {
			diags = append(diags, diag(v.Range, fmt.Sprintf("%s:rule when unknown value: %s", path, v.String())))
		}
		r.When = w
	}

	if v := n.Get("start_in"); !v.IsNull() {
		s, ok := v.Scalar()
		if !ok {
			diags = append(diags, diag(v.Range, fmt.Sprintf("%s:rule start_in should be a duration", path)))
		}
		r.StartIn = s
	}
	diags = append(diags, validateDelay(r.When, r.StartIn, n.Range, path+":rule")...)

	if v := n.Get("allow_failure"); !v.IsNull() {
		b, ok := v.AsBool()
		if !ok {
			diags = append(diags, diag(v.Range, fmt.Sprintf("%s:rule allow_failure should be a boolean value", path)))
		} else {
			r.AllowFailure = &b
		}
	}

	if v := n.Get("interruptible"); !v.IsNull() {
		b, ok := v.AsBool()
		if !ok {
			diags = append(diags, diag(v.Range, fmt.Sprintf("%s:rule interruptible should be a boolean value", path)))
		} else {
			r.Interruptible = &b
		}
	}

	if v := n.Get("variables"); !v.IsNull() {
		vars, d := variables.FromNode(v, variables.SourceRule, path+":rule:variables")
		diags = append(diags, d...)
		r.Variables = vars
	}

	return r, diags
}

// ValidateDelay checks the pairing of `when: delayed` and `start_in`.
func ValidateDelay(when When, startIn string, rng hcl.Range, path string) error {
	diags := validateDelay(when, startIn, rng, path)
	if diags.HasErrors() {
		return cierr.FromDiagnostics(cierr.KindSyntax, diags)[0]
	}
	return nil
}

func validateDelay(when When, startIn string, rng hcl.Range, path string) hcl.Diagnostics {
	if when == WhenDelayed && startIn == "" {
		return hcl.Diagnostics{diag(rng, fmt.Sprintf("%s start in should be specified for delayed job", path))}
	}
	if when != WhenDelayed && startIn != "" {
		return hcl.Diagnostics{diag(rng, fmt.Sprintf("%s start in should be blank when not delayed", path))}
	}
	if startIn != "" {
		d, err := ParseDuration(startIn)
		if err != nil {
			return hcl.Diagnostics{diag(rng, fmt.Sprintf("%s start in should be a duration", path))}
		}
		if d > MaxStartIn {
			return hcl.Diagnostics{diag(rng, fmt.Sprintf("%s start in should not exceed the limit of one week", path))}
		}
	}
	return nil
}

func parseExists(n *document.Node, path string) (*Exists, hcl.Diagnostics) {
	if list, ok := n.StringList(); ok {
		return &Exists{Paths: list}, nil
	}
	if n.IsMapping() {
		ex := &Exists{}
		paths, ok := n.Get("paths").StringList()
		if !ok {
			return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule exists:paths should be an array of strings", path))}
		}
		ex.Paths = paths
		ex.Project, _ = n.Get("project").AsString()
		ex.Ref, _ = n.Get("ref").AsString()
		if ex.Ref != "" && ex.Project == "" {
			return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule exists:ref requires exists:project", path))}
		}
		return ex, nil
	}
	return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule exists should be an array of strings or a hash", path))}
}

func parseChanges(n *document.Node, path string) (*Changes, hcl.Diagnostics) {
	if list, ok := n.StringList(); ok {
		return &Changes{Paths: list}, nil
	}
	if n.IsMapping() {
		paths, ok := n.Get("paths").StringList()
		if !ok {
			return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule changes:paths should be an array of strings", path))}
		}
		compareTo, _ := n.Get("compare_to").AsString()
		return &Changes{Paths: paths, CompareTo: compareTo}, nil
	}
	return nil, hcl.Diagnostics{diag(n.Range, fmt.Sprintf("%s:rule changes should be an array of strings or a hash", path))}
}

func containsString(list []string, s string) bool {
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
		Summary:  "Invalid rules",
		Detail:   detail,
		Subject:  &r,
	}
}

// exprDiag reports a malformed expression; the kind travels in Extra.
func exprDiag(rng hcl.Range, detail string) *hcl.Diagnostic {
	d := diag(rng, detail)
	d.Extra = cierr.KindRuleEvaluation
	return d
}
