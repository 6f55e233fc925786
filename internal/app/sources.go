package app

import (
	"fmt"
	"os"

	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/source/dir"
	"github.com/specialistvlad/ciforge/internal/source/gitrepo"
	"github.com/specialistvlad/ciforge/internal/source/memory"
)

// Sources are the collaborators project files are read through. Catalog
// is optional; component includes are disabled without it.
type Sources struct {
	Reader  source.Reader
	Lister  source.FileLister
	Catalog source.Catalog
}

// MemorySources serves every project of repo, including component versions.
func MemorySources(repo *memory.Repository) *Sources {
	return &Sources{Reader: repo, Lister: repo, Catalog: repo}
}

// openSources serves s.Dir as s.Project, either as a plain tree or as a git
// repository whose tags back component versions.
func openSources(s Settings) (*Sources, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening %s: not a directory", s.Dir)
	}

	if !s.Git {
		t := dir.New(s.Project, s.Dir)
		return &Sources{Reader: t, Lister: t}, nil
	}
	store := gitrepo.NewStore()
	if err := store.Open(s.Project, s.Dir); err != nil {
		return nil, err
	}
	return &Sources{Reader: store, Lister: store, Catalog: store}, nil
}
