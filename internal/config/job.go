package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/parallel"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

const (
	// MaxScriptDepth bounds the nesting of script arrays built from
	// `!reference`.
	MaxScriptDepth = 10
	// MaxJobNameLength bounds job names.
	MaxJobNameLength = 255
)

var jobKeys = []string{
	"after_script", "allow_failure", "artifacts", "before_script", "cache",
	"coverage", "dependencies", "environment", "extends", "hooks", "id_tokens",
	"image", "inherit", "inputs", "interruptible", "needs", "parallel",
	"resource_group", "retry", "rules", "run", "script", "services", "stage",
	"start_in", "tags", "timeout", "trigger", "variables", "when",
}

// optionKeys are carried to the job unchanged.
var optionKeys = []string{"image", "services", "artifacts", "run", "inputs", "id_tokens", "hooks"}

var jobWhen = []rules.When{
	rules.WhenOnSuccess, rules.WhenOnFailure, rules.WhenAlways,
	rules.WhenManual, rules.WhenDelayed, rules.WhenNever,
}

// jobParser accumulates the diagnostics of one job.
type jobParser struct {
	name  string
	path  string
	n     *document.Node
	diags hcl.Diagnostics
}

func (p *jobParser) errorf(rng hcl.Range, format string, args ...any) {
	p.diags = append(p.diags, syntaxDiag(rng, fmt.Sprintf(format, args...)))
}

func parseJob(name string, n *document.Node) (*Job, hcl.Diagnostics) {
	p := &jobParser{name: name, path: "jobs:" + name, n: n}
	if len(name) > MaxJobNameLength {
		p.errorf(n.Range, "%s name is too long (maximum is %d characters)", p.path, MaxJobNameLength)
	}
	if unknown := unknownKeys(n, jobKeys); len(unknown) > 0 {
		p.errorf(n.Range, "%s config contains unknown keys: %s", p.path, strings.Join(unknown, ", "))
		return nil, p.diags
	}

	j := &Job{Name: name, Range: n.Range}
	j.Stage = p.optionalString("stage")
	if j.Stage == "" {
		j.Stage = "test"
	}

	j.Script = p.script("script")
	j.BeforeScript = p.script("before_script")
	j.AfterScript = p.script("after_script")
	j.Trigger = p.trigger()

	switch {
	case n.Has("script") && n.Has("run"):
		p.errorf(n.Range, "%s these keys cannot be used together: run, script", p.path)
	case n.Has("trigger") && (n.Has("script") || n.Has("run")):
		p.errorf(n.Range, "%s these keys cannot be used together: script, trigger", p.path)
	case !n.Has("script") && !n.Has("run") && !n.Has("trigger"):
		p.errorf(n.Range, "%s config should implement the script:, run:, or trigger: keyword", p.path)
	}
	if run := n.Get("run"); n.Has("run") && !run.IsSequence() {
		p.errorf(run.Range, "%s:run config should be an array of steps", p.path)
	}

	ruleList, d := rules.ParseList(n.Get("rules"), rules.LevelJob, p.path+":rules")
	p.diags = append(p.diags, d...)
	j.Rules = ruleList

	j.When = rules.When(p.optionalString("when"))
	if j.When != "" && !containsWhen(jobWhen, j.When) {
		p.errorf(n.Get("when").Range, "%s when should be one of: %s", p.path, joinWhen(jobWhen))
	}
	j.StartIn = p.optionalScalar("start_in")
	if err := rules.ValidateDelay(j.When, j.StartIn, n.Range, p.path); err != nil && len(j.Rules) == 0 {
		p.errorf(n.Range, "%s", err.Error())
	}

	j.AllowFailure = p.allowFailure()
	j.Needs = p.needs()
	j.Dependencies = p.dependencies()

	vars, d := variables.FromNode(n.Get("variables"), variables.SourceJob, p.path+":variables")
	p.diags = append(p.diags, d...)
	j.Variables = vars

	if v := n.Get("tags"); !v.IsNull() {
		tags, ok := v.StringList()
		if !ok || !v.IsSequence() {
			p.errorf(v.Range, "%s:tags config should be an array of strings", p.path)
		}
		j.Tags = tags
	}

	j.Cache = p.caches()

	spec, d := parallel.ParseSpec(n.Get("parallel"), p.path+":parallel")
	p.diags = append(p.diags, d...)
	j.Parallel = spec

	j.Environment = p.environment()

	if v := n.Get("interruptible"); !v.IsNull() {
		b, ok := v.AsBool()
		if !ok {
			p.errorf(v.Range, "%s interruptible config should be a boolean value", p.path)
		}
		j.Interruptible = &b
	}
	j.Timeout = p.optionalScalar("timeout")
	j.Retry = p.retry()
	j.Coverage = p.optionalString("coverage")
	if j.Coverage != "" && !(len(j.Coverage) > 1 && strings.HasPrefix(j.Coverage, "/") && strings.HasSuffix(j.Coverage, "/")) {
		p.errorf(n.Get("coverage").Range, "%s:coverage config must be a regular expression", p.path)
	}
	j.ResourceGroup = p.optionalString("resource_group")

	for _, k := range []string{"inputs", "id_tokens", "hooks", "artifacts"} {
		if v := n.Get(k); !v.IsNull() && !v.IsMapping() {
			p.errorf(v.Range, "%s:%s config should be a hash", p.path, k)
		}
	}
	j.Options = document.NewMapping()
	for _, k := range optionKeys {
		if n.Has(k) {
			j.Options.Set(k, n.Get(k).Clone())
		}
	}

	if p.diags.HasErrors() {
		return nil, p.diags
	}
	return j, p.diags
}

func (p *jobParser) optionalString(key string) string {
	v := p.n.Get(key)
	if v.IsNull() {
		return ""
	}
	s, ok := v.AsString()
	if !ok {
		p.errorf(v.Range, "%s:%s config should be a string", p.path, key)
	}
	return s
}

func (p *jobParser) optionalScalar(key string) string {
	v := p.n.Get(key)
	if v.IsNull() {
		return ""
	}
	s, ok := v.Scalar()
	if !ok {
		p.errorf(v.Range, "%s:%s config should be a string", p.path, key)
	}
	return s
}

func (p *jobParser) script(key string) []string {
	v := p.n.Get(key)
	if v.IsNull() {
		return nil
	}
	lines, ok := flattenScript(v, 0)
	if !ok {
		p.errorf(v.Range, "%s:%s config should be a string or a nested array of strings up to %d levels deep", p.path, key, MaxScriptDepth)
	}
	return lines
}

// flattenScript inlines nested sequences, which `!reference` produces.
func flattenScript(n *document.Node, depth int) ([]string, bool) {
	if n.IsScalar() && !n.IsNull() {
		return []string{n.Value}, true
	}
	if !n.IsSequence() || depth >= MaxScriptDepth {
		return nil, false
	}
	var out []string
	for _, item := range n.Items {
		lines, ok := flattenScript(item, depth+1)
		if !ok {
			return nil, false
		}
		out = append(out, lines...)
	}
	return out, true
}

func (p *jobParser) allowFailure() AllowFailure {
	v := p.n.Get("allow_failure")
	if v.IsNull() {
		return AllowFailure{}
	}
	if b, ok := v.AsBool(); ok {
		return AllowFailure{Enabled: b}
	}
	if v.IsMapping() {
		codes := v.Get("exit_codes")
		if i, ok := codes.AsInt(); ok {
			return AllowFailure{ExitCodes: []int{i}}
		}
		if codes.IsSequence() {
			out := make([]int, 0, len(codes.Items))
			for _, item := range codes.Items {
				i, ok := item.AsInt()
				if !ok {
					p.errorf(codes.Range, "%s:allow_failure exit_codes should be an array of integers or an integer", p.path)
					return AllowFailure{}
				}
				out = append(out, i)
			}
			return AllowFailure{ExitCodes: out}
		}
	}
	p.errorf(v.Range, "%s allow_failure should be a hash or a boolean value", p.path)
	return AllowFailure{}
}

func (p *jobParser) needs() []Need {
	v := p.n.Get("needs")
	if !p.n.Has("needs") {
		return nil
	}
	out := []Need{}
	if v.IsNull() {
		return out
	}
	if !v.IsSequence() {
		p.errorf(v.Range, "%s:needs config can only be an array", p.path)
		return out
	}
	for _, item := range flattenNodes(v.Items) {
		if s, ok := item.AsString(); ok {
			out = append(out, Need{Job: s, Artifacts: true, Range: item.Range})
			continue
		}
		if !item.IsMapping() {
			p.errorf(item.Range, "%s:needs config can only be a string or a hash", p.path)
			continue
		}
		need, ok := p.need(item)
		if ok {
			out = append(out, need)
		}
	}
	return out
}

var needKeys = []string{"job", "artifacts", "optional", "parallel", "project", "ref", "pipeline"}

func (p *jobParser) need(n *document.Node) (Need, bool) {
	path := p.path + ":needs:need"
	if unknown := unknownKeys(n, needKeys); len(unknown) > 0 {
		p.errorf(n.Range, "%s config contains unknown keys: %s", path, strings.Join(unknown, ", "))
		return Need{}, false
	}
	need := Need{Artifacts: true, Range: n.Range}
	need.Job, _ = n.Get("job").AsString()
	need.Project, _ = n.Get("project").AsString()
	need.Ref, _ = n.Get("ref").AsString()
	need.Pipeline, _ = n.Get("pipeline").Scalar()
	if need.Job == "" && need.Pipeline == "" {
		p.errorf(n.Range, "%s job config can not be blank", path)
		return Need{}, false
	}

	ok := true
	if v := n.Get("artifacts"); !v.IsNull() {
		b, isBool := v.AsBool()
		if !isBool {
			p.errorf(v.Range, "%s artifacts should be a boolean value", path)
			ok = false
		}
		need.Artifacts = b
	}
	if v := n.Get("optional"); !v.IsNull() {
		b, isBool := v.AsBool()
		if !isBool {
			p.errorf(v.Range, "%s optional should be a boolean value", path)
			ok = false
		}
		need.Optional = b
	}
	if v := n.Get("parallel"); !v.IsNull() {
		if !v.IsMapping() || !v.Has("matrix") || len(v.Pairs) != 1 {
			p.errorf(v.Range, "%s:parallel config should contain only a matrix", path)
			return Need{}, false
		}
		entries, d := parallel.ParseMatrix(v.Get("matrix"), path+":parallel:matrix")
		p.diags = append(p.diags, d...)
		need.Matrix = entries
		ok = ok && !d.HasErrors()
	}
	return need, ok
}

func (p *jobParser) dependencies() []string {
	if !p.n.Has("dependencies") {
		return nil
	}
	v := p.n.Get("dependencies")
	if v.IsNull() {
		return []string{}
	}
	list, ok := v.StringList()
	if !ok || !v.IsSequence() {
		p.errorf(v.Range, "%s:dependencies config should be an array of strings", p.path)
		return []string{}
	}
	return list
}

func (p *jobParser) caches() []Cache {
	v := p.n.Get("cache")
	if v.IsNull() {
		return nil
	}
	items := []*document.Node{v}
	if v.IsSequence() {
		items = flattenNodes(v.Items)
	}
	var out []Cache
	for _, item := range items {
		if c, ok := p.cache(item); ok {
			out = append(out, c)
		}
	}
	return out
}

var cacheKeys = []string{"key", "paths", "untracked", "unprotect", "when", "policy", "fallback_keys"}

func (p *jobParser) cache(n *document.Node) (Cache, bool) {
	path := p.path + ":cache"
	if !n.IsMapping() {
		p.errorf(n.Range, "%s config should be a hash or an array of hashes", path)
		return Cache{}, false
	}
	if unknown := unknownKeys(n, cacheKeys); len(unknown) > 0 {
		p.errorf(n.Range, "%s config contains unknown keys: %s", path, strings.Join(unknown, ", "))
		return Cache{}, false
	}
	c := Cache{Range: n.Range}
	if key := n.Get("key"); !key.IsNull() {
		switch {
		case key.IsScalar():
			c.Key, _ = key.Scalar()
			if strings.Contains(c.Key, "/") || c.Key == "." || c.Key == ".." {
				p.errorf(key.Range, "%s:key config cannot contain the \"/\" character or be \".\" or \"..\"", path)
			}
		case key.IsMapping():
			if unknown := unknownKeys(key, []string{"files", "prefix"}); len(unknown) > 0 {
				p.errorf(key.Range, "%s:key config contains unknown keys: %s", path, strings.Join(unknown, ", "))
				return Cache{}, false
			}
			files, ok := key.Get("files").StringList()
			if !ok || len(files) == 0 {
				p.errorf(key.Range, "%s:key:files config should be an array of strings", path)
				return Cache{}, false
			}
			c.KeyFiles = files
			c.KeyPrefix, _ = key.Get("prefix").Scalar()
		default:
			p.errorf(key.Range, "%s:key config should be a string or a hash", path)
			return Cache{}, false
		}
	}
	if v := n.Get("paths"); !v.IsNull() {
		paths, ok := v.StringList()
		if !ok {
			p.errorf(v.Range, "%s:paths config should be an array of strings", path)
		}
		c.Paths = paths
	}
	if v := n.Get("fallback_keys"); !v.IsNull() {
		keys, ok := v.StringList()
		if !ok {
			p.errorf(v.Range, "%s:fallback_keys config should be an array of strings", path)
		}
		c.FallbackKeys = keys
	}
	c.Untracked, _ = n.Get("untracked").AsBool()
	c.Unprotect, _ = n.Get("unprotect").AsBool()
	c.When, _ = n.Get("when").AsString()
	if c.When != "" && c.When != "on_success" && c.When != "on_failure" && c.When != "always" {
		p.errorf(n.Get("when").Range, "%s:when config should be one of on_success, on_failure or always", path)
	}
	c.Policy, _ = n.Get("policy").AsString()
	return c, true
}

func (p *jobParser) environment() *Environment {
	v := p.n.Get("environment")
	if v.IsNull() {
		return nil
	}
	path := p.path + ":environment"
	if s, ok := v.AsString(); ok {
		return &Environment{Name: s, Action: "start"}
	}
	if !v.IsMapping() {
		p.errorf(v.Range, "%s config should be a hash or a string", path)
		return nil
	}
	if unknown := unknownKeys(v, []string{"name", "url", "action", "deployment_tier", "on_stop", "auto_stop_in", "kubernetes"}); len(unknown) > 0 {
		p.errorf(v.Range, "%s config contains unknown keys: %s", path, strings.Join(unknown, ", "))
		return nil
	}
	env := &Environment{Action: "start"}
	env.Name, _ = v.Get("name").Scalar()
	if env.Name == "" {
		p.errorf(v.Range, "%s name can't be blank", path)
	}
	env.URL, _ = v.Get("url").Scalar()
	if action, ok := v.Get("action").AsString(); ok {
		env.Action = action
	}
	switch env.Action {
	case "start", "prepare", "stop", "verify", "access":
	default:
		p.errorf(v.Range, "%s action should be start, stop, prepare, verify, or access", path)
	}
	env.DeploymentTier, _ = v.Get("deployment_tier").AsString()
	switch env.DeploymentTier {
	case "", "production", "staging", "testing", "development", "other":
	default:
		p.errorf(v.Range, "%s deployment_tier must be one of production, staging, testing, development, other", path)
	}
	env.OnStop, _ = v.Get("on_stop").AsString()
	env.AutoStopIn, _ = v.Get("auto_stop_in").Scalar()
	return env
}

func (p *jobParser) trigger() *Trigger {
	v := p.n.Get("trigger")
	if v.IsNull() {
		return nil
	}
	path := p.path + ":trigger"
	if s, ok := v.AsString(); ok {
		return &Trigger{Project: s, ForwardYAMLVariables: true}
	}
	if !v.IsMapping() {
		p.errorf(v.Range, "%s config should be a hash or a string", path)
		return nil
	}
	if unknown := unknownKeys(v, []string{"project", "branch", "strategy", "include", "forward"}); len(unknown) > 0 {
		p.errorf(v.Range, "%s config contains unknown keys: %s", path, strings.Join(unknown, ", "))
		return nil
	}
	t := &Trigger{ForwardYAMLVariables: true}
	t.Project, _ = v.Get("project").AsString()
	t.Branch, _ = v.Get("branch").Scalar()
	t.Strategy, _ = v.Get("strategy").AsString()
	if t.Strategy != "" && t.Strategy != "depend" && t.Strategy != "mirror" {
		p.errorf(v.Range, "%s strategy should be depend or mirror", path)
	}
	if v.Has("include") {
		t.Include = v.Get("include").Clone()
	}
	if (t.Project == "") == (t.Include == nil) {
		p.errorf(v.Range, "%s config must specify exactly one of project, include", path)
	}
	if fwd := v.Get("forward"); fwd.IsMapping() {
		if b, ok := fwd.Get("yaml_variables").AsBool(); ok {
			t.ForwardYAMLVariables = b
		}
		t.ForwardPipelineVariables, _ = fwd.Get("pipeline_variables").AsBool()
	}
	return t
}

func (p *jobParser) retry() *Retry {
	v := p.n.Get("retry")
	if v.IsNull() {
		return nil
	}
	path := p.path + ":retry"
	r := &Retry{}
	switch {
	case v.Kind == document.KindInt:
		r.Max, _ = v.AsInt()
	case v.IsMapping():
		if unknown := unknownKeys(v, []string{"max", "when", "exit_codes"}); len(unknown) > 0 {
			p.errorf(v.Range, "%s config contains unknown keys: %s", path, strings.Join(unknown, ", "))
			return nil
		}
		r.Max, _ = v.Get("max").AsInt()
		if when := v.Get("when"); !when.IsNull() {
			list, ok := when.StringList()
			if !ok {
				p.errorf(when.Range, "%s when should be an array of strings or a string", path)
			}
			r.When = list
		}
	default:
		p.errorf(v.Range, "%s config has to be either an integer or a hash", path)
		return nil
	}
	if r.Max < 0 || r.Max > 2 {
		p.errorf(v.Range, "%s config must be between 0 and 2", path)
	}
	return r
}

func flattenNodes(items []*document.Node) []*document.Node {
	var out []*document.Node
	for _, item := range items {
		if item.IsSequence() {
			out = append(out, flattenNodes(item.Items)...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func unknownKeys(n *document.Node, allowed []string) []string {
	var out []string
	for _, k := range n.Keys() {
		if !containsString(allowed, k) {
			out = append(out, k)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsWhen(list []rules.When, w rules.When) bool {
	for _, v := range list {
		if v == w {
			return true
		}
	}
	return false
}

func joinWhen(list []rules.When) string {
	parts := make([]string, len(list))
	for i, w := range list {
		parts[i] = string(w)
	}
	return strings.Join(parts, ", ")
}

func syntaxDiag(rng hcl.Range, detail string) *hcl.Diagnostic {
	r := rng
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid configuration",
		Detail:   detail,
		Extra:    cierr.KindSyntax,
		Subject:  &r,
	}
}
