// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file holds the Compiler and the chain of steps it runs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/glob"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/limits"
	"github.com/specialistvlad/ciforge/internal/mask"
	"github.com/specialistvlad/ciforge/internal/metrics"
	"github.com/specialistvlad/ciforge/internal/needs"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/variables"
)

const (
	DefaultMaxTags          = 50
	DefaultMaxCacheKeyFiles = 2
	DefaultMaxCaches        = 4
)

// Limits bound what one pipeline may contain.
type Limits struct {
	MaxIncludes      int
	MaxIncludeDepth  int
	MaxTags          int
	MaxCacheKeyFiles int
	MaxCaches        int
	MaxNeeds         int
	// MaxActiveJobs disables the active job check when zero.
	MaxActiveJobs int
}

// Config tunes a Compiler.
type Config struct {
	Limits      Limits
	PartitionID int64
	ServerHost  string
	NeedPolicy  needs.Policy
}

// Compiler turns configuration into build graphs. It holds collaborators
// only; everything cached during a compilation is dropped when Compile
// returns. A Compiler is safe for concurrent use.
type Compiler struct {
	reader     source.Reader
	lister     source.FileLister
	components *include.ComponentResolver
	loader     config.Loader
	limiter    limits.RateLimiter
	active     limits.ActiveJobCounter
	realizer   graph.Realizer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	config     Config
	includes   *include.Resolver
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithComponents enables component includes.
func WithComponents(c *include.ComponentResolver) Option {
	return func(cp *Compiler) { cp.components = c }
}

// WithLoader replaces how the resolved document becomes a model.
func WithLoader(l config.Loader) Option {
	return func(cp *Compiler) { cp.loader = l }
}

// WithRateLimiter throttles pipeline creation.
func WithRateLimiter(l limits.RateLimiter) Option {
	return func(cp *Compiler) { cp.limiter = l }
}

// WithActiveJobs enables the active job ceiling.
func WithActiveJobs(c limits.ActiveJobCounter) Option {
	return func(cp *Compiler) { cp.active = c }
}

// WithRealizer sets where successful graphs are persisted.
func WithRealizer(r graph.Realizer) Option {
	return func(cp *Compiler) { cp.realizer = r }
}

// WithMetrics records compilations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cp *Compiler) { cp.metrics = m }
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(cp *Compiler) { cp.logger = l }
}

// WithConfig overrides the defaults.
func WithConfig(c Config) Option {
	return func(cp *Compiler) { cp.config = c }
}

// New creates a Compiler reading files through reader and listing trees
// through lister.
func New(reader source.Reader, lister source.FileLister, opts ...Option) *Compiler {
	c := &Compiler{
		reader:  reader,
		lister:  lister,
		loader:  config.DefaultLoader,
		limiter: limits.Unlimited{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.Limits = withDefaults(c.config.Limits)
	if c.config.NeedPolicy == "" {
		c.config.NeedPolicy = needs.PolicyError
	}

	incOpts := []include.Option{include.WithLimits(c.config.Limits.MaxIncludes, c.config.Limits.MaxIncludeDepth)}
	if c.components != nil {
		incOpts = append(incOpts, include.WithComponents(c.components))
	}
	if c.metrics != nil {
		incOpts = append(incOpts, include.WithObserver(c.metrics.IncludeObserver()))
	}
	c.includes = include.New(reader, incOpts...)
	return c
}

func withDefaults(l Limits) Limits {
	if l.MaxIncludes <= 0 {
		l.MaxIncludes = include.DefaultMaxIncludes
	}
	if l.MaxIncludeDepth <= 0 {
		l.MaxIncludeDepth = include.DefaultMaxDepth
	}
	if l.MaxTags <= 0 {
		l.MaxTags = DefaultMaxTags
	}
	if l.MaxCacheKeyFiles <= 0 {
		l.MaxCacheKeyFiles = DefaultMaxCacheKeyFiles
	}
	if l.MaxCaches <= 0 {
		l.MaxCaches = DefaultMaxCaches
	}
	if l.MaxNeeds <= 0 {
		l.MaxNeeds = needs.DefaultMaxNeeds
	}
	return l
}

// step is one named stage of a compilation. A returned error is fatal and
// stops the chain.
type step struct {
	name string
	run  func(ctx context.Context, st State) (State, error)
}

func (c *Compiler) steps() []step {
	return []step{
		{"rate_limit", c.rateLimit},
		{"load_root", c.loadRoot},
		{"includes", c.resolveIncludes},
		{"references", c.resolveReferences},
		{"model", c.buildModel},
		{"workflow", c.evaluateWorkflow},
		{"populate", c.populate},
		{"needs", c.resolveNeeds},
		{"limits", c.checkLimits},
		{"partition", c.assignPartition},
		{"realize", c.realize},
	}
}

// failure attaches a failure reason to a fatal error.
type failure struct {
	reason FailureReason
	err    error
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(reason FailureReason, err error) error {
	return &failure{reason: reason, err: err}
}

// Compile runs every step for req. It never returns nil.
func (c *Compiler) Compile(ctx context.Context, req Request, opts Options) *Result {
	start := time.Now()
	if ctxlog.FromContext(ctx) == slog.Default() && c.logger != nil {
		ctx = ctxlog.WithLogger(ctx, c.logger)
	}
	ctx, logger := ctxlog.With(ctx, "project", req.Project, "ref", req.Ref)

	chain := variables.Chain{Group: req.GroupVariables, Project: req.ProjectVariables, Pipeline: req.Variables}
	secrets := variables.Merge(chain, variables.JobContext{}).Secrets()
	st := State{
		Request: req,
		Options: opts,
		Chain:   chain,
		run: &run{
			globs:  glob.NewCache(c.lister),
			masker: mask.New(secrets...),
			keys:   map[string]string{},
		},
	}

	var fatal error
	for _, s := range c.steps() {
		if err := ctx.Err(); err != nil {
			fatal = fail(ReasonOther, err)
			break
		}
		logger.Debug("running step", "step", s.name)
		next, err := s.run(ctx, st)
		if err != nil {
			logger.Debug("step failed", "step", s.name, "error", st.run.masker.Mask(err.Error()))
			fatal = err
			break
		}
		st = next
	}

	res := c.result(st, fatal)
	if c.metrics != nil {
		c.metrics.ObserveCompilation(string(res.Status), string(res.FailureReason), time.Since(start), res.Graph.Size())
	}
	logger.Info("compilation finished",
		"status", res.Status, "reason", res.FailureReason,
		"errors", len(res.Errors), "warnings", len(res.Warnings), "jobs", res.Graph.Size())
	return res
}

func (c *Compiler) result(st State, fatal error) *Result {
	m := st.run.masker
	res := &Result{Status: StatusCreated, PipelineID: st.PipelineID}
	if st.Options.Lint {
		res.Document = st.Document
	}

	for _, w := range st.Warnings {
		res.Warnings = append(res.Warnings, newMessage(m.Mask(w), "", nil))
	}
	for _, err := range st.Errors {
		res.Errors = append(res.Errors, errorMessage(err, m))
	}

	if fatal != nil {
		reason := ReasonConfigError
		var f *failure
		if errors.As(fatal, &f) {
			reason = f.reason
		} else if cierr.Is(fatal, cierr.KindInternal) {
			reason = ReasonOther
		}
		for _, err := range cierr.Flatten(unwrapFailure(fatal)) {
			res.Errors = append(res.Errors, errorMessage(err, m))
		}
		res.Status, res.FailureReason = StatusFailed, reason
		// A fatal error leaves no graph to inspect unless it was
		// assembled before a limit was hit.
		if reason != ReasonActivityLimitExceeded {
			res.Graph = nil
			return res
		}
	}
	res.Graph = st.Graph

	if len(res.Errors) > 0 && res.Status == StatusCreated {
		res.Status, res.FailureReason = StatusFailed, ReasonConfigError
	}
	return res
}

func unwrapFailure(err error) error {
	var f *failure
	if errors.As(err, &f) {
		return f.err
	}
	return err
}
