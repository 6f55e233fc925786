// Package dir serves a plain directory tree as a single-ref project. It lets
// the CLI lint a working copy that is not a git repository.
package dir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/specialistvlad/ciforge/internal/fsutil"
	"github.com/specialistvlad/ciforge/internal/source"
)

// Tree reads files below Root for one project. The ref is ignored.
type Tree struct {
	Project string
	Root    string
}

// New returns a Tree serving root as project.
func New(project, root string) *Tree {
	return &Tree{Project: project, Root: root}
}

func (t *Tree) check(project string) error {
	if project != t.Project {
		return fmt.Errorf("project %s: %w", project, source.ErrNotFound)
	}
	return nil
}

// Read implements source.Reader for local and project requests.
func (t *Tree) Read(ctx context.Context, req source.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Kind != source.KindLocal && req.Kind != source.KindProject {
		return nil, fmt.Errorf("directory tree cannot read %s includes", req.Kind)
	}
	if err := t.check(req.Project); err != nil {
		return nil, err
	}

	// Cleaning against a rooted path keeps reads inside Root.
	clean := path.Clean("/" + req.Path)
	data, err := os.ReadFile(filepath.Join(t.Root, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", req.Path, source.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.Path, err)
	}
	return data, nil
}

// ListFiles implements source.FileLister.
func (t *Tree) ListFiles(_ context.Context, project, _ string) ([]string, error) {
	if err := t.check(project); err != nil {
		return nil, err
	}
	files, err := fsutil.ListFiles(t.Root, ".git")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t.Root, err)
	}
	return files, nil
}
