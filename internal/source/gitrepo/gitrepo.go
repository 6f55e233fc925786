// Package gitrepo reads configuration from git repositories with go-git.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/specialistvlad/ciforge/internal/source"
)

// Store maps project paths to git repositories. It implements source.Reader,
// source.FileLister and source.Catalog.
type Store struct {
	mu    sync.RWMutex
	repos map[string]*git.Repository
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{repos: make(map[string]*git.Repository)}
}

// Add registers an opened repository under a project path.
func (s *Store) Add(project string, repo *git.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[project] = repo
}

// Open opens the repository at dir (searching parent directories) and
// registers it under a project path.
func (s *Store) Open(project, dir string) error {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return fmt.Errorf("opening git repository %s: %w", dir, err)
	}
	s.Add(project, repo)
	return nil
}

func (s *Store) repo(project string) (*git.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repo, ok := s.repos[project]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", project, source.ErrNotFound)
	}
	return repo, nil
}

func (s *Store) tree(project, ref string) (*object.Tree, error) {
	repo, err := s.repo(project)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("ref %s of project %s: %w", ref, project, source.ErrNotFound)
		}
		return nil, fmt.Errorf("resolving ref %s of project %s: %w", ref, project, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree of %s: %w", hash, err)
	}
	return tree, nil
}

// Read implements source.Reader for local, project and component requests.
func (s *Store) Read(ctx context.Context, req source.Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch req.Kind {
	case source.KindLocal, source.KindProject, source.KindComponent:
	default:
		return nil, fmt.Errorf("git store cannot read %s includes", req.Kind)
	}

	tree, err := s.tree(req.Project, req.Ref)
	if err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(strings.TrimPrefix(req.Path, "./"), "/")
	file, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, fmt.Errorf("%s: %w", req.Path, source.ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", req.Path, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.Path, err)
	}
	return []byte(contents), nil
}

// ListFiles implements source.FileLister.
func (s *Store) ListFiles(ctx context.Context, project, ref string) ([]string, error) {
	tree, err := s.tree(project, ref)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files of %s: %w", project, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Tags implements source.Catalog. Annotated tags resolve to their commit.
func (s *Store) Tags(_ context.Context, project string) ([]source.Tag, error) {
	repo, err := s.repo(project)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags of %s: %w", project, err)
	}

	var tags []source.Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		sha := ref.Hash()
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			commit, err := tagObj.Commit()
			if err != nil {
				return nil
			}
			sha = commit.Hash
		}
		tags = append(tags, source.Tag{Name: ref.Name().Short(), SHA: sha.String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tags of %s: %w", project, err)
	}
	return tags, nil
}

// CommitExists implements source.Catalog.
func (s *Store) CommitExists(_ context.Context, project, sha string) (bool, error) {
	repo, err := s.repo(project)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, err = repo.CommitObject(plumbing.NewHash(sha))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up commit %s: %w", sha, err)
	}
	return true, nil
}
