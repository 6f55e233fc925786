package pipeline

import (
	"context"
	"strings"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/needs"
	"github.com/specialistvlad/ciforge/internal/parallel"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// populate evaluates rules per job instance and builds every instance that
// is kept.
func (c *Compiler) populate(ctx context.Context, st State) (State, error) {
	logger := ctxlog.FromContext(ctx)
	st.Instances = map[string]*graph.Job{}
	st.Jobs = nil
	owner := map[string]string{}

	for _, job := range st.Model.Jobs {
		chain := st.jobChain(job)
		kept := needs.Job{Template: job}

		for _, inst := range parallel.Expand(job.Name, job.Parallel) {
			name := inst.Name.String()
			gj, included, err := c.instance(ctx, st, chain, job, inst)
			if err != nil {
				return st, err
			}
			if !included {
				logger.Debug("job excluded by rules", "job", name)
				continue
			}
			if prev, ok := owner[name]; ok {
				st.Errors = append(st.Errors, cierr.At(cierr.KindLogicalGraph, job.Range,
					"jobs:%s produces the job name `%s`, which is already used by jobs:%s", job.Name, name, prev))
				continue
			}
			owner[name] = job.Name
			kept.Instances = append(kept.Instances, inst)
			st.Instances[name] = gj
		}
		if len(kept.Instances) > 0 {
			st.Jobs = append(st.Jobs, kept)
		}
	}
	logger.Debug("jobs populated", "jobs", len(st.Jobs), "instances", len(st.Instances))
	return st, nil
}

// jobChain returns the scopes job inherits. Workflow rule variables
// override the global ones.
func (st State) jobChain(job *config.Job) variables.Chain {
	chain := st.Chain
	chain.YAML = nil
	for _, v := range st.Model.Variables {
		if job.InheritVariables.Allows(v.Key) {
			chain.YAML = append(chain.YAML, v)
		}
	}
	chain.YAML = append(chain.YAML, st.Workflow.Variables...)
	return chain
}

func predefinedFor(st State, info variables.JobInfo) []variables.Variable {
	out := make([]variables.Variable, 0, len(st.Predefined)+8)
	out = append(out, st.Predefined...)
	return append(out, variables.JobPredefined(info)...)
}

// instance evaluates the rules of one instance and, when it is kept,
// builds it.
func (c *Compiler) instance(ctx context.Context, st State, chain variables.Chain, job *config.Job, inst parallel.Instance) (*graph.Job, bool, error) {
	name := inst.Name.String()
	info := variables.JobInfo{Name: name, Stage: job.Stage}
	if job.Parallel != nil {
		info.NodeIndex, info.NodeTotal = inst.Index, inst.Total
	}
	jc := variables.JobContext{
		Job:        job.Variables,
		Matrix:     inst.Variables(),
		Predefined: predefinedFor(st, info),
	}

	out, err := rules.EvaluateJob(ctx, job.Rules, job.When, job.StartIn,
		c.ruleContext(st, variables.Resolve(chain, jc).Lookup()))
	if err != nil {
		return nil, false, err
	}
	if !out.Included {
		return nil, false, nil
	}
	jc.Rule = out.Variables
	vars := variables.Resolve(chain, jc)

	gj := &graph.Job{
		Name:          name,
		Stage:         job.Stage,
		StageIndex:    st.Model.StageIndex(job.Stage),
		When:          string(out.When),
		StartIn:       out.StartIn,
		AllowFailure:  job.AllowFailure.Enabled,
		ExitCodes:     job.AllowFailure.ExitCodes,
		Script:        job.Script,
		BeforeScript:  job.BeforeScript,
		AfterScript:   job.AfterScript,
		Interruptible: job.Interruptible,
		Timeout:       job.Timeout,
		Coverage:      job.Coverage,
		ResourceGroup: vars.ExpandString(job.ResourceGroup),
	}
	if out.AllowFailure != nil {
		gj.AllowFailure, gj.ExitCodes = *out.AllowFailure, nil
	}
	if out.Interruptible != nil {
		gj.Interruptible = out.Interruptible
	}
	if job.Retry != nil {
		gj.RetryMax, gj.RetryWhen = job.Retry.Max, job.Retry.When
	}
	if job.Parallel != nil {
		gj.Parallel = &graph.Parallel{Index: inst.Index, Total: inst.Total, Matrix: inst.Bindings()}
	}
	if job.Options != nil {
		if opts, ok := job.Options.Interface().(map[string]any); ok && len(opts) > 0 {
			gj.Options = opts
		}
	}

	if env := job.Environment; env != nil {
		e := expandEnvironment(env, vars)
		gj.Environment = e
		info.Environment = &variables.Environment{Name: e.Name, Tier: e.Tier, URL: e.URL, Action: e.Action}
		jc.Environment = e.Name
		jc.Predefined = predefinedFor(st, info)
		vars = variables.Resolve(chain, jc)
	}

	if gj.Tags, err = c.tags(job, vars); err != nil {
		return nil, false, err
	}
	if gj.Cache, err = c.caches(ctx, st, job, vars); err != nil {
		return nil, false, err
	}
	if job.Trigger != nil {
		gj.Trigger = downstream(st, chain, job, vars)
	}
	gj.Variables = graphVariables(vars)
	return gj, true, nil
}

func (c *Compiler) tags(job *config.Job, vars *variables.Collection) ([]string, error) {
	if len(job.Tags) > c.config.Limits.MaxTags {
		return nil, cierr.At(cierr.KindLimitExceeded, job.Range,
			"jobs:%s:tags config must be less than the limit of %d tags", job.Name, c.config.Limits.MaxTags)
	}
	if len(job.Tags) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(job.Tags))
	for _, t := range job.Tags {
		out = append(out, vars.ExpandString(t))
	}
	return out, nil
}

func expandEnvironment(env *config.Environment, vars *variables.Collection) *graph.Environment {
	e := &graph.Environment{
		Name:   vars.ExpandString(env.Name),
		URL:    vars.ExpandString(env.URL),
		Action: env.Action,
		Tier:   env.DeploymentTier,
		OnStop: env.OnStop,
	}
	if e.Action == "" {
		e.Action = "start"
	}
	if e.Tier == "" {
		e.Tier = guessTier(e.Name)
	}
	e.Slug = variables.Slugify(e.Name)
	return e
}

// guessTier derives a deployment tier from an environment name.
func guessTier(name string) string {
	n := strings.ToLower(name)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.HasPrefix(n, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("prod", "live"):
		return "production"
	case has("stag", "model", "pre", "demo"):
		return "staging"
	case has("test", "qc", "qa"):
		return "testing"
	case has("dev", "review", "trunk"):
		return "development"
	default:
		return "other"
	}
}

// downstream builds the trigger of a job. Variables handed to the
// downstream pipeline keep their references to predefined variables,
// which the downstream pipeline resolves against its own context.
func downstream(st State, chain variables.Chain, job *config.Job, vars *variables.Collection) *graph.Trigger {
	tr := job.Trigger
	t := &graph.Trigger{
		Project:  vars.ExpandString(tr.Project),
		Branch:   vars.ExpandString(tr.Branch),
		Strategy: tr.Strategy,
		Forward: map[string]any{
			"yaml_variables":     tr.ForwardYAMLVariables,
			"pipeline_variables": tr.ForwardPipelineVariables,
		},
	}
	if tr.Include != nil {
		t.Include = tr.Include.Interface()
	}

	passed := variables.NewCollection()
	if tr.ForwardYAMLVariables {
		passed.Concat(chain.YAML)
		passed.Concat(job.Variables)
	}
	if tr.ForwardPipelineVariables {
		passed.Concat(st.Chain.Pipeline)
	}
	for _, v := range passed.All() {
		if !v.Raw {
			v.Value = vars.ExpandExcept(v.Value, variables.IsPredefined)
		}
		t.Variables = append(t.Variables, graphVariable(v))
	}
	return t
}

func graphVariable(v variables.Variable) graph.Variable {
	return graph.Variable{Key: v.Key, Value: v.Value, Raw: v.Raw, Masked: v.Masked, File: v.File, Source: v.Source.String()}
}

func graphVariables(c *variables.Collection) []graph.Variable {
	all := c.All()
	out := make([]graph.Variable, 0, len(all))
	for _, v := range all {
		out = append(out, graphVariable(v))
	}
	return out
}
