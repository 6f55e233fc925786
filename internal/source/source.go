// Package source defines the collaborators the compiler reads configuration
// through. Implementations live in the sub-packages.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned, possibly wrapped, when a requested file, ref or
// URL does not exist.
var ErrNotFound = errors.New("not found")

// Kind identifies how a configuration file is located.
type Kind string

const (
	KindLocal     Kind = "local"
	KindProject   Kind = "project"
	KindRemote    Kind = "remote"
	KindComponent Kind = "component"
	KindTemplate  Kind = "template"
)

// Request identifies one file to read. Project and Ref apply to local,
// project and component reads; URL applies to remote reads; Path is the file
// path or the template name.
type Request struct {
	Kind    Kind
	Project string
	Ref     string
	Path    string
	URL     string
}

// String renders the request for logs and memoization keys.
func (r Request) String() string {
	switch r.Kind {
	case KindRemote:
		return fmt.Sprintf("remote:%s", r.URL)
	case KindTemplate:
		return fmt.Sprintf("template:%s", r.Path)
	default:
		return fmt.Sprintf("%s:%s@%s:%s", r.Kind, r.Project, r.Ref, r.Path)
	}
}

// Reader returns the raw bytes of a configuration file.
type Reader interface {
	Read(ctx context.Context, req Request) ([]byte, error)
}

// FileLister lists every file path of a project at a ref.
type FileLister interface {
	ListFiles(ctx context.Context, project, ref string) ([]string, error)
}

// Tag is a named version of a project.
type Tag struct {
	Name string
	SHA  string
}

// Catalog exposes the version metadata components are resolved against.
type Catalog interface {
	Tags(ctx context.Context, project string) ([]Tag, error)
	CommitExists(ctx context.Context, project, sha string) (bool, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, req Request) ([]byte, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Mux dispatches reads to the reader registered for the request kind.
// Component reads fall back to the project reader.
type Mux struct {
	readers map[Kind]Reader
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{readers: make(map[Kind]Reader)}
}

// Handle registers r for the given kinds.
func (m *Mux) Handle(r Reader, kinds ...Kind) *Mux {
	for _, k := range kinds {
		m.readers[k] = r
	}
	return m
}

// Kinds returns the registered kinds, sorted.
func (m *Mux) Kinds() []Kind {
	kinds := make([]Kind, 0, len(m.readers))
	for k := range m.readers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Read implements Reader.
func (m *Mux) Read(ctx context.Context, req Request) ([]byte, error) {
	r, ok := m.readers[req.Kind]
	if !ok && req.Kind == KindComponent {
		r, ok = m.readers[KindProject]
	}
	if !ok {
		return nil, fmt.Errorf("no reader configured for %s includes", req.Kind)
	}
	return r.Read(ctx, req)
}
