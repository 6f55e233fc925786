package needs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/dag"
	"github.com/specialistvlad/ciforge/internal/parallel"
)

// DefaultMaxNeeds bounds how many jobs one job may need.
const DefaultMaxNeeds = 50

// Policy decides what a need on a job that rules excluded does.
type Policy string

const (
	// PolicyError reports the need as a logical error unless it is optional.
	PolicyError Policy = "error"
	// PolicyDrop drops the edge and records a warning.
	PolicyDrop Policy = "drop"
)

// SchedulingType is how a job waits for others.
type SchedulingType string

const (
	// SchedulingStage waits for every job of the earlier stages.
	SchedulingStage SchedulingType = "stage"
	// SchedulingDAG waits only for the jobs it needs.
	SchedulingDAG SchedulingType = "dag"
)

// Job is one job in the pipeline and its instances.
type Job struct {
	Template  *config.Job
	Instances []parallel.Instance
}

// Input is what Resolve works on.
type Input struct {
	Stages []string
	// Jobs are the jobs rules kept, in declaration order.
	Jobs []Job
	// Defined are all visible jobs of the document, kept or not.
	Defined []*config.Job
}

// Options tune Resolve.
type Options struct {
	Policy   Policy
	MaxNeeds int
}

// Edge is a need of one instance on another.
type Edge struct {
	// Name is the needed instance.
	Name      string
	Artifacts bool
	Optional  bool
}

// InstanceError is a logical error that drops an instance.
type InstanceError struct {
	Instance string
	Err      error
}

// Graph is the resolved dependency structure of a pipeline.
type Graph struct {
	// Needs holds each instance's edges in declaration order.
	Needs map[string][]Edge
	// Dependencies holds the validated `dependencies:` of each instance
	// that declares them. They restrict artifact downloads and create no
	// edge.
	Dependencies map[string][]string
	Scheduling   map[string]SchedulingType
	// Order lists the instances so that each follows the instances it
	// needs. It is nil when the needs form a cycle.
	Order        []string
	Errors       []InstanceError
	Warnings     []string
}

// Failed reports whether instance has a logical error.
func (g *Graph) Failed(instance string) bool {
	for _, e := range g.Errors {
		if e.Instance == instance {
			return true
		}
	}
	return false
}

type resolver struct {
	in      Input
	opts    Options
	stage   map[string]int
	kept    map[string]*Job
	defined map[string]*config.Job
	graph   *Graph
}

// Resolve validates needs and dependencies and builds the edges between
// instances. It never fails as a whole; problems are reported per instance
// in Graph.Errors.
func Resolve(ctx context.Context, in Input, opts Options) *Graph {
	if opts.Policy == "" {
		opts.Policy = PolicyError
	}
	if opts.MaxNeeds <= 0 {
		opts.MaxNeeds = DefaultMaxNeeds
	}
	r := &resolver{
		in:      in,
		opts:    opts,
		stage:   make(map[string]int, len(in.Stages)),
		kept:    make(map[string]*Job, len(in.Jobs)),
		defined: make(map[string]*config.Job, len(in.Defined)),
		graph: &Graph{
			Needs:        map[string][]Edge{},
			Dependencies: map[string][]string{},
			Scheduling:   map[string]SchedulingType{},
		},
	}
	for i, s := range in.Stages {
		r.stage[s] = i
	}
	for i := range in.Jobs {
		r.kept[in.Jobs[i].Template.Name] = &in.Jobs[i]
	}
	for _, j := range in.Defined {
		r.defined[j.Name] = j
	}

	for _, job := range in.Jobs {
		for _, inst := range job.Instances {
			r.instance(job.Template, inst)
		}
	}
	r.detectCycles()

	ctxlog.FromContext(ctx).Debug("needs resolved",
		"instances", len(r.graph.Scheduling), "errors", len(r.graph.Errors), "warnings", len(r.graph.Warnings))
	return r.graph
}

func (r *resolver) fail(instance string, rng hcl.Range, format string, args ...any) {
	r.graph.Errors = append(r.graph.Errors, InstanceError{
		Instance: instance,
		Err:      cierr.At(cierr.KindLogicalGraph, rng, format, args...),
	})
}

func (r *resolver) instance(job *config.Job, inst parallel.Instance) {
	name := inst.Name.String()
	if job.HasNeeds() {
		r.graph.Scheduling[name] = SchedulingDAG
	} else {
		r.graph.Scheduling[name] = SchedulingStage
	}

	count := 0
	for _, n := range job.Needs {
		if !n.CrossPipeline() {
			count++
		}
	}
	if count > r.opts.MaxNeeds {
		r.fail(name, job.Range, "%s job: one job can only need %d others, but you have listed %d", job.Name, r.opts.MaxNeeds, count)
		return
	}

	edges := []Edge{}
	for _, need := range job.Needs {
		if need.CrossPipeline() {
			continue
		}
		targets, ok := r.needTargets(name, job, inst, need)
		if !ok {
			continue
		}
		for _, t := range targets {
			edges = append(edges, Edge{Name: t.Name.String(), Artifacts: need.Artifacts, Optional: need.Optional})
		}
	}
	if job.HasNeeds() {
		r.graph.Needs[name] = edges
	}

	if job.Dependencies != nil {
		r.graph.Dependencies[name] = r.dependencies(name, job)
	}
}

// needTargets returns the instances a need points at. ok is false when the
// need produces no edge.
func (r *resolver) needTargets(name string, job *config.Job, inst parallel.Instance, need config.Need) ([]parallel.Instance, bool) {
	target, defined := r.defined[need.Job]
	if !defined {
		r.fail(name, need.Range, "%s job: undefined need: %s", job.Name, need.Job)
		return nil, false
	}

	kept, ok := r.kept[need.Job]
	if !ok {
		if need.Optional {
			return nil, false
		}
		if r.opts.Policy == PolicyDrop {
			r.graph.Warnings = append(r.graph.Warnings,
				fmt.Sprintf("jobs:%s needs `%s`, which is not in the pipeline; the need was dropped", job.Name, need.Job))
			return nil, false
		}
		r.fail(name, need.Range,
			"'%s' job needs '%s' job, but '%s' does not exist in the pipeline. "+
				"This might be because of the rules keyword. "+
				"To need a job that sometimes does not exist in the pipeline, use needs:optional.",
			job.Name, need.Job, need.Job)
		return nil, false
	}

	if !r.stageAllowed(job.Stage, target.Stage) {
		r.fail(name, need.Range, "%s job (stage %s) needs %s, which is in the later stage %s",
			job.Name, job.Stage, need.Job, target.Stage)
		return nil, false
	}

	if need.Matrix == nil {
		return kept.Instances, true
	}
	selected, err := parallel.ResolveSelector(need.Matrix, inst.Bindings(), kept.Instances)
	if err != nil {
		r.fail(name, need.Range, "%s job: need %s: %s", job.Name, need.Job, err)
		return nil, false
	}
	return selected, true
}

func (r *resolver) dependencies(name string, job *config.Job) []string {
	out := []string{}
	for _, dep := range job.Dependencies {
		target, defined := r.defined[dep]
		if !defined {
			r.fail(name, job.Range, "%s job: undefined dependency: %s", job.Name, dep)
			continue
		}
		if !r.stageAllowed(job.Stage, target.Stage) {
			r.fail(name, job.Range, "%s job (stage %s) has dependency %s, which is in the later stage %s",
				job.Name, job.Stage, dep, target.Stage)
			continue
		}
		if job.HasNeeds() && !needsJob(job, dep) {
			r.fail(name, job.Range, "%s job: dependency %s should be part of needs", job.Name, dep)
			continue
		}
		kept, ok := r.kept[dep]
		if !ok {
			if r.opts.Policy == PolicyDrop {
				r.graph.Warnings = append(r.graph.Warnings,
					fmt.Sprintf("jobs:%s depends on `%s`, which is not in the pipeline; the dependency was dropped", job.Name, dep))
				continue
			}
			r.fail(name, job.Range, "'%s' job depends on '%s' job, but '%s' does not exist in the pipeline", job.Name, dep, dep)
			continue
		}
		for _, inst := range kept.Instances {
			out = append(out, inst.Name.String())
		}
	}
	return out
}

func (r *resolver) stageAllowed(own, target string) bool {
	o, ok := r.stage[own]
	if !ok {
		return false
	}
	t, ok := r.stage[target]
	return ok && t <= o
}

func needsJob(job *config.Job, name string) bool {
	for _, n := range job.Needs {
		if n.Job == name && !n.CrossPipeline() {
			return true
		}
	}
	return false
}

// detectCycles reports every instance on a needs cycle. Same-stage needs
// are the only way to build one, since stage order is already enforced.
func (r *resolver) detectCycles() {
	g := dag.New()
	var names []string
	for _, job := range r.in.Jobs {
		for _, inst := range job.Instances {
			name := inst.Name.String()
			names = append(names, name)
			g.AddNode(name)
		}
	}
	for _, name := range names {
		for _, e := range r.graph.Needs[name] {
			g.Connect(e.Name, name)
		}
	}
	order, err := g.TopologicalSort()
	if err == nil {
		r.graph.Order = order
		return
	}

	reported := map[string]bool{}
	for _, name := range names {
		if reported[name] {
			continue
		}
		cycle := g.ShortestCycle(name)
		if cycle == nil {
			continue
		}
		msg := strings.Join(append(cycle, cycle[0]), " -> ")
		for _, member := range cycle {
			if reported[member] {
				continue
			}
			reported[member] = true
			r.fail(member, hcl.Range{}, "%s job: circular dependency detected in `needs`: %s", member, msg)
		}
	}
}
