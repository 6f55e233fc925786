package pipeline

import (
	"context"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/limits"
	"github.com/specialistvlad/ciforge/internal/needs"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// EmptyMessage is reported when no job is left in the pipeline.
const EmptyMessage = "No stages / jobs for this pipeline."

// resolveNeeds wires the instances together and assembles the graph.
// Instances with logical errors are left out of it.
func (c *Compiler) resolveNeeds(ctx context.Context, st State) (State, error) {
	g := needs.Resolve(ctx, needs.Input{
		Stages:  st.Model.Stages,
		Jobs:    st.Jobs,
		Defined: st.Model.Jobs,
	}, needs.Options{Policy: c.config.NeedPolicy, MaxNeeds: c.config.Limits.MaxNeeds})
	st.Needs = g
	for _, e := range g.Errors {
		st.Errors = append(st.Errors, e.Err)
	}
	st.Warnings = append(st.Warnings, g.Warnings...)

	alive := map[string]bool{}
	for _, job := range st.Jobs {
		for _, inst := range job.Instances {
			if name := inst.Name.String(); !g.Failed(name) {
				alive[name] = true
			}
		}
	}

	out := &graph.Graph{Name: st.workflowName()}
	for i, stage := range st.Model.Stages {
		s := &graph.Stage{Name: stage, Position: i}
		for _, job := range st.Jobs {
			if job.Template.Stage != stage {
				continue
			}
			for _, inst := range job.Instances {
				name := inst.Name.String()
				if !alive[name] {
					continue
				}
				gj := st.Instances[name]
				gj.SchedulingType = string(g.Scheduling[name])
				gj.Needs = nil
				for _, e := range g.Needs[name] {
					if alive[e.Name] {
						gj.Needs = append(gj.Needs, graph.Need{Name: e.Name, Artifacts: e.Artifacts, Optional: e.Optional})
					}
				}
				gj.Dependencies = g.Dependencies[name]
				s.Jobs = append(s.Jobs, gj)
			}
		}
		if len(s.Jobs) > 0 {
			out.Stages = append(out.Stages, s)
		}
	}
	st.Graph = out

	if onlyEdgeStages(out) {
		st.Errors = append(st.Errors, cierr.New(cierr.KindLogicalGraph, EmptyMessage))
	}
	ctxlog.FromContext(ctx).Debug("graph assembled", "stages", len(out.Stages), "jobs", out.Size())
	return st, nil
}

// onlyEdgeStages reports whether the graph has no job outside .pre and
// .post.
func onlyEdgeStages(g *graph.Graph) bool {
	for _, s := range g.Stages {
		if s.Name != ".pre" && s.Name != ".post" {
			return false
		}
	}
	return true
}

func (st State) workflowName() string {
	name := st.Model.Workflow.Name
	if name == "" {
		return ""
	}
	chain := st.Chain
	chain.YAML = append(append([]variables.Variable(nil), st.Model.Variables...), st.Workflow.Variables...)
	return variables.Resolve(chain, variables.JobContext{Predefined: st.Predefined}).ExpandString(name)
}

// checkLimits enforces the active job ceiling before anything is realized.
func (c *Compiler) checkLimits(ctx context.Context, st State) (State, error) {
	ceiling := c.config.Limits.MaxActiveJobs
	if c.active == nil || ceiling <= 0 || !st.Options.realize() || len(st.Errors) > 0 {
		return st, nil
	}
	active, err := c.active.ActiveJobs(ctx, st.Request.Project)
	if err != nil {
		return st, fail(ReasonOther, cierr.Wrap(cierr.KindInternal, err, "counting active jobs"))
	}
	if limits.Exceeds(active, st.Graph.Size(), ceiling) {
		ctxlog.FromContext(ctx).Warn("active job limit exceeded",
			"active", active, "adding", st.Graph.Size(), "ceiling", ceiling)
		return st, fail(ReasonActivityLimitExceeded, cierr.New(cierr.KindLimitExceeded, limits.ActiveJobsMessage))
	}
	return st, nil
}

func (c *Compiler) assignPartition(_ context.Context, st State) (State, error) {
	st.Graph.SetPartition(c.config.PartitionID)
	return st, nil
}

// realize persists a graph without errors. Dry runs and lint runs never
// reach the realizer.
func (c *Compiler) realize(ctx context.Context, st State) (State, error) {
	if !st.Options.realize() || len(st.Errors) > 0 || c.realizer == nil {
		return st, nil
	}
	id, err := c.realizer.Realize(ctx, st.Graph)
	if err != nil {
		return st, fail(ReasonOther, cierr.Wrap(cierr.KindInternal, err, "realizing pipeline"))
	}
	st.PipelineID = id
	ctxlog.FromContext(ctx).Info("pipeline realized", "pipeline", id)
	return st, nil
}
