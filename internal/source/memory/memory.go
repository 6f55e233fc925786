// Package memory provides an in-memory source repository. It backs tests and
// the bundled template catalog of the CLI.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/specialistvlad/ciforge/internal/source"
)

// DefaultRef is used when a request carries no ref.
const DefaultRef = "main"

type project struct {
	refs map[string]map[string][]byte
	tags []source.Tag
}

// Repository holds projects, remote URLs and templates in memory. It
// implements source.Reader, source.FileLister and source.Catalog and is safe
// for concurrent use.
type Repository struct {
	mu        sync.RWMutex
	projects  map[string]*project
	remotes   map[string][]byte
	templates map[string][]byte
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		projects:  make(map[string]*project),
		remotes:   make(map[string][]byte),
		templates: make(map[string][]byte),
	}
}

func (r *Repository) project(name string) *project {
	p, ok := r.projects[name]
	if !ok {
		p = &project{refs: make(map[string]map[string][]byte)}
		r.projects[name] = p
	}
	return p
}

// AddFiles stores files for a project at a ref.
func (r *Repository) AddFiles(projectName, ref string, files map[string]string) *Repository {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.project(projectName)
	tree, ok := p.refs[ref]
	if !ok {
		tree = make(map[string][]byte)
		p.refs[ref] = tree
	}
	for path, content := range files {
		tree[normalize(path)] = []byte(content)
	}
	return r
}

// AddTag publishes a tag pointing at sha with the given file tree. The tree
// is reachable through both the tag name and the sha.
func (r *Repository) AddTag(projectName, name, sha string, files map[string]string) *Repository {
	r.AddFiles(projectName, name, files)
	r.AddFiles(projectName, sha, files)

	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.project(projectName)
	p.tags = append(p.tags, source.Tag{Name: name, SHA: sha})
	return r
}

// AddRemote serves content at url.
func (r *Repository) AddRemote(url, content string) *Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[url] = []byte(content)
	return r
}

// AddTemplate registers a named template.
func (r *Repository) AddTemplate(name, content string) *Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = []byte(content)
	return r
}

// Read implements source.Reader.
func (r *Repository) Read(ctx context.Context, req source.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch req.Kind {
	case source.KindRemote:
		data, ok := r.remotes[req.URL]
		if !ok {
			return nil, fmt.Errorf("remote %s: %w", req.URL, source.ErrNotFound)
		}
		return data, nil
	case source.KindTemplate:
		data, ok := r.templates[req.Path]
		if !ok {
			return nil, fmt.Errorf("template %s: %w", req.Path, source.ErrNotFound)
		}
		return data, nil
	default:
		tree, err := r.tree(req.Project, req.Ref)
		if err != nil {
			return nil, err
		}
		data, ok := tree[normalize(req.Path)]
		if !ok {
			return nil, fmt.Errorf("%s at %s: %w", req.Path, refOrDefault(req.Ref), source.ErrNotFound)
		}
		return data, nil
	}
}

// ListFiles implements source.FileLister. Paths are sorted.
func (r *Repository) ListFiles(ctx context.Context, projectName, ref string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tree, err := r.tree(projectName, ref)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(tree))
	for path := range tree {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// Tags implements source.Catalog.
func (r *Repository) Tags(_ context.Context, projectName string) ([]source.Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectName]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectName, source.ErrNotFound)
	}
	return append([]source.Tag(nil), p.tags...), nil
}

// CommitExists implements source.Catalog.
func (r *Repository) CommitExists(_ context.Context, projectName, sha string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[projectName]
	if !ok {
		return false, nil
	}
	for _, t := range p.tags {
		if t.SHA == sha {
			return true, nil
		}
	}
	_, ok = p.refs[sha]
	return ok, nil
}

func (r *Repository) tree(projectName, ref string) (map[string][]byte, error) {
	p, ok := r.projects[projectName]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectName, source.ErrNotFound)
	}
	tree, ok := p.refs[refOrDefault(ref)]
	if !ok {
		return nil, fmt.Errorf("ref %s of project %s: %w", refOrDefault(ref), projectName, source.ErrNotFound)
	}
	return tree, nil
}

func refOrDefault(ref string) string {
	if ref == "" {
		return DefaultRef
	}
	return ref
}

func normalize(path string) string {
	return strings.TrimPrefix(strings.TrimPrefix(path, "./"), "/")
}
