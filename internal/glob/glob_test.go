package glob

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/ciforge/internal/source/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	testCases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"Gemfile", "Gemfile", true},
		{"*.yml", ".ci.yml", true},
		{"*.yml", "ci/a.yml", false},
		{"**/*.yml", "ci/nested/a.yml", true},
		{"ci/*.{yml,yaml}", "ci/a.yaml", true},
		{"/docs/**", "docs/a/b.md", true},
		{"./Dockerfile", "Dockerfile", true},
		{"[", "[", false},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern+"|"+tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.pattern, tc.path))
		})
	}
}

func TestMatchAnyAndFilter(t *testing.T) {
	paths := []string{"a.go", "docs/readme.md", "ci/b.yml"}
	assert.True(t, MatchAny([]string{"docs/**"}, paths))
	assert.False(t, MatchAny([]string{"*.rb"}, paths))
	assert.Equal(t, []string{"ci/b.yml"}, Filter("ci/*.yml", paths))
	assert.True(t, HasMeta("ci/*.yml"))
	assert.False(t, HasMeta("ci/a.yml"))
}

type countingLister struct {
	*memory.Repository
	calls atomic.Int32
}

func (l *countingLister) ListFiles(ctx context.Context, project, ref string) ([]string, error) {
	l.calls.Add(1)
	return l.Repository.ListFiles(ctx, project, ref)
}

func TestCache(t *testing.T) {
	repo := memory.New().AddFiles("g/p", "main", map[string]string{"Gemfile": "", "ci/a.yml": ""})
	lister := &countingLister{Repository: repo}
	c := NewCache(lister)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := c.Exists(ctx, "g/p", "main", "Gemfile")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.ExistsAny(ctx, "g/p", "main", []string{"*.lock", "ci/*.yml"})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, int32(1), lister.calls.Load(), "listing is fetched once per ref")
	assert.Equal(t, 3, c.Scans(), "each distinct pattern is evaluated once")

	_, err = c.Exists(ctx, "g/missing", "main", "*")
	assert.Error(t, err)
}
