package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/interpolate"
	"github.com/specialistvlad/ciforge/internal/limits"
	"github.com/specialistvlad/ciforge/internal/reference"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// FilteredMessage is reported when workflow rules exclude the pipeline.
const FilteredMessage = "Pipeline filtered out by workflow rules."

// rateLimit counts pipeline creations. Runs that do not create a pipeline
// are not counted.
func (c *Compiler) rateLimit(ctx context.Context, st State) (State, error) {
	if !st.Options.realize() {
		return st, nil
	}
	req := st.Request
	ok, err := c.limiter.Allow(ctx, limits.Key{Project: req.Project, User: req.User, SHA: req.sha()})
	if err != nil {
		return st, fail(ReasonOther, cierr.Wrap(cierr.KindInternal, err, "checking the rate limit"))
	}
	if !ok {
		ctxlog.FromContext(ctx).Warn("pipeline creation throttled", "user", req.User)
		return st, fail(ReasonOther, cierr.New(cierr.KindLimitExceeded, limits.RateLimitMessage))
	}
	return st, nil
}

// loadRoot reads and parses the root file and applies the inputs it was
// given.
func (c *Compiler) loadRoot(ctx context.Context, st State) (State, error) {
	req := st.Request
	path := req.configPath()

	data := req.Content
	if data == nil {
		var err error
		data, err = c.reader.Read(ctx, source.Request{Kind: source.KindLocal, Project: req.Project, Ref: req.sha(), Path: path})
		if errors.Is(err, source.ErrNotFound) {
			return st, cierr.New(cierr.KindInclude, "Please provide content of %s", path)
		}
		if err != nil {
			return st, cierr.Wrap(cierr.KindInternal, err, "reading %s", path)
		}
	}

	f, err := document.Parse(data, path)
	if err != nil {
		return st, err
	}
	if f.Body == nil {
		return st, cierr.New(cierr.KindSyntax, "Please provide content of %s", path)
	}
	st.Root = f

	st.Predefined = variables.PipelinePredefined(variables.PipelineContext{
		PipelineID:    req.PipelineID,
		PipelineIID:   req.PipelineIID,
		Source:        req.Source,
		ProjectID:     req.ProjectID,
		ProjectPath:   req.Project,
		DefaultBranch: req.DefaultBranch,
		ServerHost:    c.config.ServerHost,
		SHA:           req.SHA,
		Ref:           req.Ref,
		Tag:           req.Tag,
		CommitMessage: req.CommitMessage,
	})

	var header *interpolate.Header
	if spec := f.Spec(); spec != nil {
		h, diags := interpolate.ParseHeader(spec)
		if diags.HasErrors() {
			return st, cierr.Join(cierr.FromDiagnostics(cierr.KindInterpolation, diags))
		}
		header = h
	}
	body, err := interpolate.Interpolate(f.Body, header, req.Inputs, interpolate.Context{
		Variables: st.pipelineVariables().Lookup(),
	})
	if err != nil {
		return st, err
	}
	st.Document = body
	return st, nil
}

// pipelineVariables are the variables visible before any job is known.
func (st State) pipelineVariables() *variables.Collection {
	return variables.Resolve(st.Chain, variables.JobContext{Predefined: st.Predefined})
}

func (c *Compiler) ruleContext(st State, lookup variables.Lookup) rules.Context {
	return rules.Context{
		Variables: lookup,
		Globs:     st.run.globs,
		Project:   st.Request.Project,
		Ref:       st.Request.sha(),
		Diff:      st.Request.Diff,
	}
}

func (c *Compiler) resolveIncludes(ctx context.Context, st State) (State, error) {
	res, err := c.includes.Resolve(ctx, st.Document, st.Request.configPath(), include.Context{
		Project:   st.Request.Project,
		Ref:       st.Request.sha(),
		Variables: st.pipelineVariables(),
		Globs:     st.run.globs,
		Masker:    st.run.masker,
	})
	if err != nil {
		return st, err
	}
	st.Document = res.Document
	st.Files = res.Files
	ctxlog.FromContext(ctx).Debug("includes resolved", "files", len(res.Files))
	return st, nil
}

func (c *Compiler) resolveReferences(_ context.Context, st State) (State, error) {
	doc, err := reference.Resolve(st.Document)
	if err != nil {
		return st, err
	}
	st.Document = doc
	return st, nil
}

func (c *Compiler) buildModel(ctx context.Context, st State) (State, error) {
	m, err := c.loader.Load(ctx, st.Document)
	if err != nil {
		return st, err
	}
	st.Model = m
	st.Warnings = append(st.Warnings, ruleWarnings(m)...)
	return st, nil
}

// ruleWarnings flags jobs whose last rule matches unconditionally while no
// workflow rules restrict which events create pipelines.
func ruleWarnings(m *config.Model) []string {
	if len(m.Workflow.Rules) > 0 {
		return nil
	}
	var out []string
	for _, j := range m.Jobs {
		if len(j.Rules) == 0 {
			continue
		}
		last := j.Rules[len(j.Rules)-1]
		if last.HasConditions() || last.When == "" || last.When == rules.WhenNever {
			continue
		}
		out = append(out, fmt.Sprintf(
			"jobs:%s may allow multiple pipelines to run for a single action due to `rules:when` clause with no `workflow:rules` - read more: https://docs.gitlab.com/ee/ci/troubleshooting.html#pipeline-warnings",
			j.Name))
	}
	return out
}

func (c *Compiler) evaluateWorkflow(ctx context.Context, st State) (State, error) {
	chain := st.Chain
	chain.YAML = st.Model.Variables
	vars := variables.Resolve(chain, variables.JobContext{Predefined: st.Predefined})

	out, err := rules.EvaluateWorkflow(ctx, st.Model.Workflow.Rules, c.ruleContext(st, vars.Lookup()))
	if err != nil {
		return st, err
	}
	if !out.Included {
		ctxlog.FromContext(ctx).Info("pipeline filtered out by workflow rules")
		return st, cierr.New(cierr.KindRuleEvaluation, FilteredMessage)
	}
	st.Workflow = out
	return st, nil
}
