// Package include expands `include:` directives into one logical document.
//
// Resolution is recursive and run-scoped: a Resolver holds only its
// collaborators, while everything memoized during one Resolve call (fetched
// files, resolved component versions, the include count) lives in a run
// value that is discarded when the call returns.
//
// Sibling directives are fetched concurrently, but every merge and every
// error follows the declared order, so the result never depends on which
// fetch finished first.
package include

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/glob"
	"github.com/specialistvlad/ciforge/internal/interpolate"
	"github.com/specialistvlad/ciforge/internal/mask"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/variables"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxIncludes = 150
	DefaultMaxDepth    = 100
	DefaultConcurrency = 4
)

// Outcome labels a fetch for observers.
type Outcome string

const (
	OutcomeFetched  Outcome = "fetched"
	OutcomeMemoized Outcome = "memoized"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// Observer is told about every include that is processed.
type Observer func(kind source.Kind, outcome Outcome)

// Resolver expands includes by reading files through a source.Reader.
type Resolver struct {
	reader      source.Reader
	components  *ComponentResolver
	maxIncludes int
	maxDepth    int
	concurrency int
	observer    Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLimits overrides the include count and depth limits.
func WithLimits(maxIncludes, maxDepth int) Option {
	return func(r *Resolver) {
		if maxIncludes > 0 {
			r.maxIncludes = maxIncludes
		}
		if maxDepth > 0 {
			r.maxDepth = maxDepth
		}
	}
}

// WithConcurrency bounds the number of sibling fetches in flight.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithComponents enables component includes.
func WithComponents(c *ComponentResolver) Option {
	return func(r *Resolver) { r.components = c }
}

// WithObserver registers a fetch observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// New creates a Resolver.
func New(reader source.Reader, opts ...Option) *Resolver {
	r := &Resolver{
		reader:      reader,
		maxIncludes: DefaultMaxIncludes,
		maxDepth:    DefaultMaxDepth,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context is what a file is resolved against.
type Context struct {
	Project string
	// Ref is the ref local files are read at.
	Ref string
	// Variables expand locators and feed include rules.
	Variables *variables.Collection
	// Globs answers `rules:exists` of includes.
	Globs *glob.Cache
	// Masker redacts secrets from error messages.
	Masker *mask.Masker
}

// File describes one included file, in processing order.
type File struct {
	Kind     source.Kind
	Location string
	Project  string
	Ref      string
	Depth    int
}

// Result is the merged document and the files it was built from.
type Result struct {
	Document *document.Node
	Files    []File
}

// Resolve expands the includes of root, whose own location is rootPath in
// rc.Project. root is not modified.
func (r *Resolver) Resolve(ctx context.Context, root *document.Node, rootPath string, rc Context) (*Result, error) {
	if rc.Masker == nil {
		rc.Masker = mask.New(rc.Variables.Secrets()...)
	}
	run := &run{
		r:          r,
		rc:         rc,
		fetched:    map[string]*fetchEntry{},
		components: map[string]*componentEntry{},
		seen:       map[string]bool{},
	}
	rootKey := source.Request{Kind: source.KindLocal, Project: rc.Project, Ref: rc.Ref, Path: normalizePath(rootPath)}.String()
	frame := frame{project: rc.Project, ref: rc.Ref, depth: 0, stack: []stackEntry{{key: rootKey, name: rootPath}}}

	doc, err := run.resolve(ctx, root, frame)
	if err != nil {
		return nil, err
	}
	return &Result{Document: doc, Files: run.files}, nil
}

type fetchEntry struct {
	once sync.Once
	data []byte
	err  error
}

type componentEntry struct {
	once sync.Once
	res  Resolution
	err  error
}

type run struct {
	r  *Resolver
	rc Context

	mu         sync.Mutex
	fetched    map[string]*fetchEntry
	components map[string]*componentEntry

	count int
	seen  map[string]bool
	files []File
}

type stackEntry struct {
	key  string
	name string
}

// frame is the position of the file being resolved.
type frame struct {
	project string
	ref     string
	depth   int
	stack   []stackEntry
}

// target is a directive resolved to a concrete read.
type target struct {
	d         *Directive
	req       source.Request
	name      string
	component *interpolate.Component
	err       error
}

func (run *run) resolve(ctx context.Context, body *document.Node, f frame) (*document.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	directives, diags := ParseDirectives(body.Get("include"))
	if diags.HasErrors() {
		return nil, cierr.Join(cierr.FromDiagnostics(cierr.KindSyntax, diags))
	}
	local := body.Clone()
	local.Delete("include")
	if len(directives) == 0 {
		return local, nil
	}
	if f.depth+1 > run.r.maxDepth {
		return nil, cierr.At(cierr.KindInclude, directives[0].Range, "Maximum of %d nested include levels are allowed!", run.r.maxDepth)
	}

	targets, err := run.targets(ctx, directives, f)
	if err != nil {
		return nil, err
	}
	run.prefetch(ctx, targets)

	merged := document.NewMapping()
	for _, t := range targets {
		doc, err := run.include(ctx, t, f)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			merged = document.DeepMerge(merged, doc)
		}
	}
	return document.DeepMerge(merged, local), nil
}

// targets evaluates rules, expands locators and wildcards, in declared order.
func (run *run) targets(ctx context.Context, directives []*Directive, f frame) ([]*target, error) {
	lookup := run.lookup()
	ec := rules.Context{Variables: lookup, Globs: run.rc.Globs, Project: f.project, Ref: f.ref}

	var out []*target
	for _, d := range directives {
		ok, err := rules.EvaluateInclude(ctx, d.Rules, ec)
		if err != nil {
			return nil, err
		}
		if !ok {
			ctxlog.FromContext(ctx).Debug("include skipped by rules", "include", run.mask(d.Location))
			continue
		}

		loc := variables.Expand(d.Location, lookup)
		switch d.Kind {
		case source.KindLocal:
			paths, err := run.localPaths(ctx, d, loc, f)
			if err != nil {
				return nil, err
			}
			for _, p := range paths {
				out = append(out, &target{d: d, name: p, req: source.Request{Kind: source.KindLocal, Project: f.project, Ref: f.ref, Path: p}})
			}
		case source.KindProject:
			project := variables.Expand(d.Project, lookup)
			ref := variables.Expand(d.Ref, lookup)
			p := normalizePath(loc)
			out = append(out, &target{d: d, name: p, req: source.Request{Kind: source.KindProject, Project: project, Ref: ref, Path: p}})
		case source.KindRemote:
			out = append(out, &target{d: d, name: loc, req: source.Request{Kind: source.KindRemote, URL: loc}})
		case source.KindTemplate:
			out = append(out, &target{d: d, name: loc, req: source.Request{Kind: source.KindTemplate, Path: loc}})
		case source.KindComponent:
			out = append(out, run.componentTarget(ctx, d, loc))
		}
	}
	return out, nil
}

// localPaths expands a wildcard local include against the file listing.
func (run *run) localPaths(ctx context.Context, d *Directive, loc string, f frame) ([]string, error) {
	p := normalizePath(loc)
	if !glob.HasMeta(p) {
		return []string{p}, nil
	}
	if run.rc.Globs == nil {
		return nil, cierr.At(cierr.KindInclude, d.Range, "Local file `%s` cannot be matched without a file listing", run.mask(loc))
	}
	files, err := run.rc.Globs.Files(ctx, f.project, f.ref)
	if err != nil {
		return nil, cierr.Wrap(cierr.KindInternal, err, "listing files for `%s`", run.mask(loc))
	}
	var out []string
	for _, file := range glob.Filter(p, files) {
		if hasYAMLExtension(file) {
			out = append(out, file)
		}
	}
	if len(out) == 0 {
		return nil, cierr.At(cierr.KindInclude, d.Range, "Local file `%s` does not exist!", run.mask(loc))
	}
	return out, nil
}

func (run *run) componentTarget(ctx context.Context, d *Directive, loc string) *target {
	t := &target{d: d, name: loc}
	if run.r.components == nil {
		t.err = cierr.At(cierr.KindInclude, d.Range, "component '%s' - components are not available", run.mask(loc))
		return t
	}
	l, err := ParseLocator(loc)
	if err != nil {
		t.err = cierr.At(cierr.KindInclude, d.Range, "%s", run.mask(err.Error()))
		return t
	}
	res, err := run.resolveComponent(ctx, l)
	if err != nil {
		t.err = cierr.At(cierr.KindInclude, d.Range, "%s", run.mask(strings.TrimSuffix(err.Error(), ": "+source.ErrNotFound.Error())))
		return t
	}
	t.req = source.Request{Kind: source.KindComponent, Project: l.Project, Ref: res.SHA, Path: l.Files()[0]}
	t.component = &interpolate.Component{Name: l.Name, SHA: res.SHA, Version: res.Version, Reference: l.Raw}
	return t
}

func (run *run) resolveComponent(ctx context.Context, l Locator) (Resolution, error) {
	key := l.Host + "/" + l.Project + "@" + l.Version
	run.mu.Lock()
	e, ok := run.components[key]
	if !ok {
		e = &componentEntry{}
		run.components[key] = e
	}
	run.mu.Unlock()
	e.once.Do(func() { e.res, e.err = run.r.components.Resolve(ctx, l) })
	return e.res, e.err
}

// prefetch reads every target concurrently. Errors are kept in the memo and
// reported later in declared order.
func (run *run) prefetch(ctx context.Context, targets []*target) {
	if len(targets) < 2 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(run.r.concurrency)
	for _, t := range targets {
		if t.err != nil || !run.fetchable(t) {
			continue
		}
		g.Go(func() error {
			run.read(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (run *run) fetchable(t *target) bool {
	switch t.req.Kind {
	case source.KindLocal, source.KindProject, source.KindRemote:
		return hasYAMLExtension(t.name)
	default:
		return true
	}
}

// read fetches a target once per run. Component templates fall back to the
// directory layout.
func (run *run) read(ctx context.Context, t *target) ([]byte, error) {
	data, err := run.fetch(ctx, t.req)
	if t.req.Kind == source.KindComponent && errors.Is(err, source.ErrNotFound) {
		l, _ := ParseLocator(t.name)
		alt := t.req
		alt.Path = l.Files()[1]
		if data, err = run.fetch(ctx, alt); err == nil {
			t.req = alt
		}
	}
	return data, err
}

func (run *run) fetch(ctx context.Context, req source.Request) ([]byte, error) {
	key := req.String()
	run.mu.Lock()
	e, ok := run.fetched[key]
	if !ok {
		e = &fetchEntry{}
		run.fetched[key] = e
	}
	run.mu.Unlock()

	fresh := false
	e.once.Do(func() {
		fresh = true
		e.data, e.err = run.r.reader.Read(ctx, req)
		logger := ctxlog.FromContext(ctx)
		if e.err != nil {
			logger.Debug("include fetch failed", "include", run.mask(key), "error", run.mask(e.err.Error()))
		} else {
			logger.Debug("include fetched", "include", run.mask(key), "bytes", len(e.data))
		}
	})
	switch {
	case e.err == nil && fresh:
		run.observe(req.Kind, OutcomeFetched)
	case e.err == nil:
		run.observe(req.Kind, OutcomeMemoized)
	case fresh && errors.Is(e.err, source.ErrNotFound):
		run.observe(req.Kind, OutcomeNotFound)
	case fresh:
		run.observe(req.Kind, OutcomeError)
	}
	return e.data, e.err
}

func (run *run) observe(kind source.Kind, outcome Outcome) {
	if run.r.observer != nil {
		run.r.observer(kind, outcome)
	}
}

// include processes one target and returns its resolved document, or nil
// for a duplicate.
func (run *run) include(ctx context.Context, t *target, f frame) (*document.Node, error) {
	if t.err != nil {
		return nil, t.err
	}
	rng := t.d.Range
	key := t.req.String()
	display := run.mask(t.name)

	for i, s := range f.stack {
		if s.key == key {
			names := make([]string, 0, len(f.stack)-i+1)
			for _, e := range f.stack[i:] {
				names = append(names, run.mask(e.name))
			}
			names = append(names, display)
			return nil, cierr.At(cierr.KindInclude, rng, "include cycle detected: %s", strings.Join(names, " -> "))
		}
	}

	dedupKey := key + "\x00" + t.d.Inputs.String()
	if run.seen[dedupKey] {
		ctxlog.FromContext(ctx).Debug("duplicate include ignored", "include", display)
		return nil, nil
	}
	run.seen[dedupKey] = true

	run.count++
	if run.count > run.r.maxIncludes {
		return nil, cierr.At(cierr.KindInclude, rng, "Maximum of %d nested includes are allowed!", run.r.maxIncludes)
	}

	if !run.fetchable(t) {
		return nil, cierr.At(cierr.KindInclude, rng, "Included file `%s` does not have YAML extension!", display)
	}

	data, err := run.read(ctx, t)
	if err != nil {
		return nil, run.readError(t, err)
	}

	file, err := document.Parse(data, t.name)
	if err != nil {
		return nil, cierr.Wrap(cierr.KindSyntax, err, "%s", display)
	}
	body := file.Body
	if body == nil {
		body = document.NewMapping()
	}

	header, diags := interpolate.ParseHeader(file.Spec())
	if diags.HasErrors() {
		return nil, cierr.Wrap(cierr.KindSyntax, cierr.Join(cierr.FromDiagnostics(cierr.KindSyntax, diags)), "`%s`", display)
	}
	body, err = interpolate.Interpolate(body, header, t.d.Inputs, interpolate.Context{
		Component: t.component,
		Variables: run.visibleLookup(),
	})
	if err != nil {
		return nil, wrapEach(err, display)
	}

	next := frame{project: f.project, ref: f.ref, depth: f.depth + 1, stack: append(append([]stackEntry(nil), f.stack...), stackEntry{key: key, name: t.name})}
	switch t.req.Kind {
	case source.KindProject, source.KindComponent:
		next.project, next.ref = t.req.Project, t.req.Ref
	}

	run.files = append(run.files, File{Kind: t.req.Kind, Location: display, Project: t.req.Project, Ref: t.req.Ref, Depth: next.depth})
	ctxlog.FromContext(ctx).Debug("include resolved", "include", display, "depth", next.depth)

	return run.resolve(ctx, body, next)
}

func (run *run) readError(t *target, err error) error {
	rng := t.d.Range
	display := run.mask(t.name)
	if !errors.Is(err, source.ErrNotFound) {
		if t.req.Kind == source.KindRemote {
			return cierr.At(cierr.KindInclude, rng, "Remote file `%s` could not be fetched!", display)
		}
		return cierr.Wrap(cierr.KindInternal, err, "reading `%s`", display)
	}
	switch t.req.Kind {
	case source.KindProject:
		return cierr.At(cierr.KindInclude, rng, "Project `%s` file `%s` does not exist!", run.mask(t.req.Project), display)
	case source.KindRemote:
		return cierr.At(cierr.KindInclude, rng, "Remote file `%s` could not be fetched!", display)
	case source.KindTemplate:
		return cierr.At(cierr.KindInclude, rng, "Template file `%s` is not a valid location!", display)
	case source.KindComponent:
		return cierr.At(cierr.KindInclude, rng, "component '%s' - content not found", display)
	default:
		return cierr.At(cierr.KindInclude, rng, "Local file `%s` does not exist!", display)
	}
}

func (run *run) lookup() variables.Lookup {
	if run.rc.Variables == nil {
		return func(string) (string, bool) { return "", false }
	}
	return run.rc.Variables.Lookup()
}

// visibleLookup hides masked variables from `expand_vars`.
func (run *run) visibleLookup() variables.Lookup {
	c := run.rc.Variables
	if c == nil {
		return nil
	}
	return func(key string) (string, bool) {
		v, ok := c.Get(key)
		if !ok || v.Masked {
			return "", false
		}
		return v.Value, true
	}
}

func (run *run) mask(s string) string {
	return run.rc.Masker.Mask(s)
}

// wrapEach prefixes every error in err with the file name, keeping kinds.
func wrapEach(err error, name string) error {
	var out []error
	for _, e := range cierr.Flatten(err) {
		out = append(out, prefix(e, name))
	}
	return cierr.Join(out)
}

func prefix(err error, name string) error {
	var ce *cierr.Error
	if errors.As(err, &ce) {
		return &cierr.Error{Kind: ce.Kind, Message: fmt.Sprintf("`%s`: %s", name, ce.Message), Location: ce.Location, Err: err}
	}
	return fmt.Errorf("`%s`: %w", name, err)
}

func hasYAMLExtension(p string) bool {
	ext := path.Ext(p)
	return ext == ".yml" || ext == ".yaml"
}

func normalizePath(p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(p, "./"), "/")
}
