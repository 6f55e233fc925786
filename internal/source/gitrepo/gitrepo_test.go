package gitrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitFiles(t *testing.T, repo *git.Repository, files map[string]string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for path, content := range files {
		f, err := wt.Filesystem.Create(path)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		_, err = wt.Add(path)
		require.NoError(t, err)
	}
	hash, err := wt.Commit("update", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return hash
}

func newStore(t *testing.T) (*Store, plumbing.Hash, plumbing.Hash) {
	t.Helper()
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)

	first := commitFiles(t, repo, map[string]string{".ci.yml": "a: 1", "templates/lint.yml": "lint: {}"})
	_, err = repo.CreateTag("1.0.0", first, nil)
	require.NoError(t, err)
	second := commitFiles(t, repo, map[string]string{".ci.yml": "a: 2"})

	s := NewStore()
	s.Add("group/app", repo)
	return s, first, second
}

func TestStore_Read(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	data, err := s.Read(ctx, source.Request{Kind: source.KindLocal, Project: "group/app", Path: ".ci.yml"})
	require.NoError(t, err)
	assert.Equal(t, "a: 2", string(data))

	data, err = s.Read(ctx, source.Request{Kind: source.KindProject, Project: "group/app", Ref: "1.0.0", Path: "/.ci.yml"})
	require.NoError(t, err)
	assert.Equal(t, "a: 1", string(data))

	_, err = s.Read(ctx, source.Request{Kind: source.KindLocal, Project: "group/app", Path: "missing.yml"})
	assert.True(t, errors.Is(err, source.ErrNotFound))

	_, err = s.Read(ctx, source.Request{Kind: source.KindLocal, Project: "group/app", Ref: "no-such-ref", Path: ".ci.yml"})
	assert.True(t, errors.Is(err, source.ErrNotFound))

	_, err = s.Read(ctx, source.Request{Kind: source.KindLocal, Project: "group/unknown", Path: ".ci.yml"})
	assert.True(t, errors.Is(err, source.ErrNotFound))
}

func TestStore_ListFilesAndCatalog(t *testing.T) {
	ctx := context.Background()
	s, first, second := newStore(t)

	files, err := s.ListFiles(ctx, "group/app", "")
	require.NoError(t, err)
	assert.Equal(t, []string{".ci.yml", "templates/lint.yml"}, files)

	tags, err := s.Tags(ctx, "group/app")
	require.NoError(t, err)
	assert.Equal(t, []source.Tag{{Name: "1.0.0", SHA: first.String()}}, tags)

	ok, err := s.CommitExists(ctx, "group/app", second.String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CommitExists(ctx, "group/app", "0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)
}
