package dir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ci"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ci.yml"), []byte("a: 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ci", "b.yml"), []byte("b: 1"), 0o644))

	tree := New("local/app", root)
	ctx := context.Background()

	data, err := tree.Read(ctx, source.Request{Kind: source.KindLocal, Project: "local/app", Path: "/ci/b.yml"})
	require.NoError(t, err)
	assert.Equal(t, "b: 1", string(data))

	_, err = tree.Read(ctx, source.Request{Kind: source.KindLocal, Project: "local/app", Path: "nope.yml"})
	assert.True(t, errors.Is(err, source.ErrNotFound))

	_, err = tree.Read(ctx, source.Request{Kind: source.KindLocal, Project: "other", Path: ".ci.yml"})
	assert.True(t, errors.Is(err, source.ErrNotFound))

	files, err := tree.ListFiles(ctx, "local/app", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{".ci.yml", "ci/b.yml"}, files)
}
