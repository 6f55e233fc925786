package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/inmemorystore"
	"github.com/specialistvlad/ciforge/internal/limits"
	"github.com/specialistvlad/ciforge/internal/metrics"
	"github.com/specialistvlad/ciforge/internal/pipeline"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/source/memory"
	"github.com/specialistvlad/ciforge/internal/source/remote"
)

// App encapsulates the compiler and the collaborators it was wired with.
type App struct {
	logger   *slog.Logger
	settings Settings
	compiler *pipeline.Compiler
	store    *inmemorystore.Store
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	remote   *remote.Reader
}

type options struct {
	sources   *Sources
	templates map[string]string
	active    limits.ActiveJobCounter
}

// Option configures New.
type Option func(*options)

// WithSources replaces the readers built from Settings.Dir.
func WithSources(s *Sources) Option {
	return func(o *options) { o.sources = s }
}

// WithTemplates serves named templates to template includes.
func WithTemplates(templates map[string]string) Option {
	return func(o *options) { o.templates = templates }
}

// WithActiveJobs enables the active job ceiling with the given counter.
func WithActiveJobs(c limits.ActiveJobCounter) Option {
	return func(o *options) { o.active = c }
}

// New validates s and wires an App. Log output goes to outW.
func New(outW io.Writer, s Settings, opts ...Option) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := newLogger(s.LogLevel, s.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	src := o.sources
	if src == nil {
		var err error
		if src, err = openSources(s); err != nil {
			return nil, err
		}
	}
	logger.Debug("Sources opened.", "project", s.Project, "dir", s.Dir, "git", s.Git)

	templates := memory.New()
	for name, content := range o.templates {
		templates.AddTemplate(name, content)
	}
	rem := remote.New()
	mux := source.NewMux().
		Handle(src.Reader, source.KindLocal, source.KindProject, source.KindComponent).
		Handle(rem, source.KindRemote).
		Handle(templates, source.KindTemplate)

	a := &App{
		logger:   logger,
		settings: s,
		store:    inmemorystore.New(),
		metrics:  metrics.New(),
		registry: prometheus.NewRegistry(),
		remote:   rem,
	}
	a.metrics.MustRegister(a.registry)

	copts := []pipeline.Option{
		pipeline.WithConfig(s.compilerConfig()),
		pipeline.WithRealizer(a.store),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(logger),
	}
	if src.Catalog != nil {
		copts = append(copts, pipeline.WithComponents(include.NewComponentResolver(src.Catalog, s.ServerHost)))
	}
	if s.RateLimitCount > 0 {
		copts = append(copts, pipeline.WithRateLimiter(limits.NewMemoryRateLimiter(s.RateLimitCount, s.RateLimitWindow)))
	}
	if o.active != nil {
		copts = append(copts, pipeline.WithActiveJobs(o.active))
	}
	a.compiler = pipeline.New(mux, src.Lister, copts...)
	logger.Debug("Compiler wired.", "kinds", mux.Kinds())
	return a, nil
}

// Settings returns the validated settings the App was built with.
func (a *App) Settings() Settings {
	return a.settings
}

// Store returns where realized graphs are kept.
func (a *App) Store() *inmemorystore.Store {
	return a.store
}

// Gatherer exposes the App's metrics.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.registry
}

// Close releases the remote include client.
func (a *App) Close() error {
	if err := a.remote.Close(); err != nil {
		return fmt.Errorf("closing remote reader: %w", err)
	}
	return nil
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
