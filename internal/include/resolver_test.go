package include

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/glob"
	"github.com/specialistvlad/ciforge/internal/mask"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/source/memory"
	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	project = "group/app"
	sha     = "0123456789abcdef0123456789abcdef01234567"
)

// countingReader records how often each request is read and can delay
// selected reads.
type countingReader struct {
	source.Reader
	mu     sync.Mutex
	counts map[string]int
	delay  map[string]time.Duration
}

func newCountingReader(r source.Reader) *countingReader {
	return &countingReader{Reader: r, counts: map[string]int{}, delay: map[string]time.Duration{}}
}

func (c *countingReader) Read(ctx context.Context, req source.Request) ([]byte, error) {
	c.mu.Lock()
	c.counts[req.String()]++
	d := c.delay[req.Path+req.URL]
	c.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	return c.Reader.Read(ctx, req)
}

func parse(t *testing.T, src string) *document.Node {
	t.Helper()
	f, err := document.Parse([]byte(src), ".gitlab-ci.yml")
	require.NoError(t, err)
	return f.Body
}

func resolve(t *testing.T, repo *memory.Repository, root string, opts ...Option) (*Result, error) {
	t.Helper()
	r := New(repo, append([]Option{WithComponents(NewComponentResolver(repo, "gitlab.example.com"))}, opts...)...)
	return r.Resolve(context.Background(), parse(t, root), ".gitlab-ci.yml", Context{
		Project: project,
		Ref:     "main",
		Globs:   glob.NewCache(repo),
		Variables: variables.NewCollection(
			variables.Variable{Key: "CONFIG_DIR", Value: "ci"},
			variables.Variable{Key: "TOKEN", Value: "supersecret-token", Masked: true},
		),
	})
}

func TestResolve(t *testing.T) {
	testCases := []struct {
		name        string
		repo        func() *memory.Repository
		root        string
		errContains string
		want        string
	}{
		{
			name: "local, project, remote and template merge in order",
			repo: func() *memory.Repository {
				return memory.New().
					AddFiles(project, "main", map[string]string{
						"ci/build.yml": "build:\n  script: make\n  stage: build\nvariables:\n  A: local\n",
					}).
					AddFiles("group/shared", "v1", map[string]string{
						"lint.yml": "lint:\n  script: lint\nvariables:\n  A: project\n  B: project\n",
					}).
					AddRemote("https://example.com/remote.yml", "remote:\n  script: curl\n").
					AddTemplate("Security.gitlab-ci.yml", "sast:\n  script: scan\n")
			},
			root: `
include:
  - local: $CONFIG_DIR/build.yml
  - project: group/shared
    ref: v1
    file: lint.yml
  - https://example.com/remote.yml
  - template: Security.gitlab-ci.yml
variables:
  B: root
`,
			want: `
build:
  script: make
  stage: build
variables:
  A: project
  B: root
lint:
  script: lint
remote:
  script: curl
sast:
  script: scan
`,
		},
		{
			name: "nested local include resolves in the included project",
			repo: func() *memory.Repository {
				return memory.New().
					AddFiles(project, "main", map[string]string{"helper.yml": "wrong: {script: x}\n"}).
					AddFiles("group/shared", "main", map[string]string{
						"entry.yml":  "include: helper.yml\nentry: {script: e}\n",
						"helper.yml": "helper: {script: h}\n",
					})
			},
			root: "include:\n  project: group/shared\n  file: entry.yml\n",
			want: "helper: {script: h}\nentry: {script: e}\n",
		},
		{
			name: "wildcard local include",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					"configs/b.yml": "b: {script: b}\n",
					"configs/a.yml": "a: {script: a}\n",
					"configs/c.txt": "not yaml",
				})
			},
			root: "include: configs/*.yml\n",
			want: "a: {script: a}\nb: {script: b}\n",
		},
		{
			name: "include rules skip the fetch",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{"a.yml": "a: {script: a}\n"})
			},
			root: `
include:
  - local: missing.yml
    rules:
      - if: $CONFIG_DIR == "other"
  - local: also-missing.yml
    rules:
      - exists: [Dockerfile]
  - local: a.yml
    rules:
      - exists: ["*.yml"]
`,
			want: "a: {script: a}\n",
		},
		{
			name: "inputs are interpolated",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					"tpl.yml": "spec:\n  inputs:\n    stage:\n    jobs:\n      type: number\n      default: 1\n---\n\"test-$[[ inputs.stage ]]\":\n  stage: $[[ inputs.stage ]]\n  parallel: $[[ inputs.jobs ]]\n",
				})
			},
			root: "include:\n  - local: tpl.yml\n    inputs:\n      stage: deploy\n      jobs: 3\n",
			want: "test-deploy:\n  stage: deploy\n  parallel: 3\n",
		},
		{
			name: "same file with the same inputs is merged once",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					"a.yml": "include: c.yml\na: {script: a}\n",
					"b.yml": "include: c.yml\nb: {script: b}\n",
					"c.yml": "c: {script: c}\n",
				})
			},
			root: "include: [a.yml, b.yml, a.yml]\n",
			want: "c: {script: c}\na: {script: a}\nb: {script: b}\n",
		},
		{
			name: "component by exact tag",
			repo: func() *memory.Repository {
				return memory.New().AddTag("group/components", "1.0.0", sha, map[string]string{
					"templates/lint.yml": "spec:\n  inputs:\n    stage:\n      default: test\n---\n$[[ component.name ]]:\n  stage: $[[ inputs.stage ]]\n  script: echo $[[ component.version ]]\n",
				})
			},
			root: "include:\n  - component: gitlab.example.com/group/components/lint@1.0.0\n",
			want: "lint:\n  stage: test\n  script: echo 1.0.0\n",
		},
		{
			name: "component in a directory layout",
			repo: func() *memory.Repository {
				return memory.New().AddTag("group/components", "1.0.0", sha, map[string]string{
					"templates/lint/template.yml": "lint: {script: dir}\n",
				})
			},
			root: "include:\n  - component: gitlab.example.com/group/components/lint@~latest\n",
			want: "lint: {script: dir}\n",
		},
		{
			name: "missing local file",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{})
			},
			root:        "include: nope.yml\n",
			errContains: "Local file `nope.yml` does not exist!",
		},
		{
			name: "missing project file",
			repo: func() *memory.Repository {
				return memory.New().AddFiles("group/shared", "main", map[string]string{})
			},
			root:        "include:\n  project: group/shared\n  file: [nope.yml]\n",
			errContains: "Project `group/shared` file `nope.yml` does not exist!",
		},
		{
			name:        "missing remote",
			repo:        memory.New,
			root:        "include: https://example.com/nope.yml\n",
			errContains: "Remote file `https://example.com/nope.yml` could not be fetched!",
		},
		{
			name: "wrong extension",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{"ci.json": "{}"})
			},
			root:        "include: ci.json\n",
			errContains: "Included file `ci.json` does not have YAML extension!",
		},
		{
			name: "cycle",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					"a.yml": "include: b.yml\n",
					"b.yml": "include: a.yml\n",
				})
			},
			root:        "include: a.yml\n",
			errContains: "include cycle detected: a.yml -> b.yml -> a.yml",
		},
		{
			name: "root included again",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					".gitlab-ci.yml": "include: a.yml\n",
					"a.yml":          "include: .gitlab-ci.yml\n",
				})
			},
			root:        "include: a.yml\n",
			errContains: "include cycle detected: .gitlab-ci.yml -> a.yml -> .gitlab-ci.yml",
		},
		{
			name: "masked values are redacted",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{})
			},
			root:        "include: configs/$TOKEN.yml\n",
			errContains: "Local file `configs/[MASKED].yml` does not exist!",
		},
		{
			name: "interpolation errors name the file",
			repo: func() *memory.Repository {
				return memory.New().AddFiles(project, "main", map[string]string{
					"tpl.yml": "spec:\n  inputs:\n    stage:\n---\njob: {stage: $[[ inputs.stage ]]}\n",
				})
			},
			root:        "include: tpl.yml\n",
			errContains: "`tpl.yml`: `stage` input: required value has not been provided",
		},
		{
			name:        "unknown directive key",
			repo:        memory.New,
			root:        "include:\n  - locale: a.yml\n",
			errContains: "include config contains unknown keys: locale",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := resolve(t, tc.repo(), tc.root)
			if tc.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				assert.NotContains(t, err.Error(), "supersecret-token")
				return
			}
			require.NoError(t, err)
			want := parse(t, tc.want)
			assert.True(t, want.Equal(res.Document), "got %s\nwant %s", res.Document, want)
		})
	}
}

func TestResolve_ComponentVersions(t *testing.T) {
	repo := memory.New().
		AddTag("group/components", "v0.01", "1111111111111111111111111111111111111111", map[string]string{"templates/lint.yml": "lint: {script: old}\n"}).
		AddTag("group/components", "1.2.0", "2222222222222222222222222222222222222222", map[string]string{"templates/lint.yml": "lint: {script: one-two}\n"}).
		AddTag("group/components", "1.10.1", "3333333333333333333333333333333333333333", map[string]string{"templates/lint.yml": "lint: {script: one-ten}\n"}).
		AddTag("group/components", "2.0.0-rc1", "4444444444444444444444444444444444444444", map[string]string{"templates/lint.yml": "lint: {script: rc}\n"})

	testCases := []struct {
		version     string
		wantScript  string
		errContains string
	}{
		{version: "1.2.0", wantScript: "one-two"},
		{version: "~latest", wantScript: "one-ten"},
		{version: "1", wantScript: "one-ten"},
		{version: "1.2", wantScript: "one-two"},
		{version: "2222222222222222222222222222222222222222", wantScript: "one-two"},
		{version: "v0.1", errContains: "component 'gitlab.example.com/group/components/lint@v0.1' - content not found"},
		{version: "9.9.9", errContains: "content not found"},
		{version: "5555555555555555555555555555555555555555", errContains: "content not found"},
	}
	for _, tc := range testCases {
		t.Run(tc.version, func(t *testing.T) {
			res, err := resolve(t, repo, "include:\n  - component: gitlab.example.com/group/components/lint@"+tc.version+"\n")
			if tc.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				assert.True(t, cierr.Is(err, cierr.KindInclude))
				assert.NotContains(t, err.Error(), "404")
				return
			}
			require.NoError(t, err)
			script, ok := res.Document.Lookup("lint", "script")
			require.True(t, ok)
			assert.Equal(t, tc.wantScript, script.Value)
		})
	}

	_, err := resolve(t, repo, "include:\n  - component: other.example.com/group/components/lint@1.2.0\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the component host must be gitlab.example.com")
}

func TestResolve_ComponentInSingleSegmentProject(t *testing.T) {
	repo := memory.New().
		AddTag("proj", "v0.01", "1111111111111111111111111111111111111111", map[string]string{"templates/name.yml": "name: {script: old}\n"})

	_, err := resolve(t, repo, "include:\n  - component: gitlab.example.com/proj/name@v0.1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "component 'gitlab.example.com/proj/name@v0.1' - content not found")
	assert.NotContains(t, err.Error(), "the component path must contain")

	res, err := resolve(t, repo, "include:\n  - component: gitlab.example.com/proj/name@v0.01\n")
	require.NoError(t, err)
	script, ok := res.Document.Lookup("name", "script")
	require.True(t, ok)
	assert.Equal(t, "old", script.Value)
}

func TestResolve_FetchErrorsAreMaskedInLogs(t *testing.T) {
	repo := memory.New().AddFiles(project, "main", map[string]string{".gitlab-ci.yml": ""})
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	r := New(repo)
	_, err := r.Resolve(ctx, parse(t, "include: ci/$TOKEN.yml\n"), ".gitlab-ci.yml", Context{
		Project: project,
		Ref:     "main",
		Globs:   glob.NewCache(repo),
		Variables: variables.NewCollection(
			variables.Variable{Key: "TOKEN", Value: "supersecret-token", Masked: true},
		),
		Masker: mask.New("supersecret-token"),
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret-token")
	assert.Contains(t, logs.String(), "include fetch failed")
	assert.NotContains(t, logs.String(), "supersecret-token")
}

func TestResolve_Limits(t *testing.T) {
	files := map[string]string{}
	root := "include:\n"
	for _, n := range []string{"a", "b", "c", "d"} {
		files[n+".yml"] = n + ": {script: x}\n"
		root += "  - " + n + ".yml\n"
	}
	repo := memory.New().AddFiles(project, "main", files)

	_, err := resolve(t, repo, root, WithLimits(3, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Maximum of 3 nested includes are allowed!")
	assert.True(t, cierr.Is(err, cierr.KindInclude))

	deep := memory.New().AddFiles(project, "main", map[string]string{
		"l1.yml": "include: l2.yml\n",
		"l2.yml": "include: l3.yml\n",
		"l3.yml": "x: {script: x}\n",
	})
	_, err = resolve(t, deep, "include: l1.yml\n", WithLimits(0, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Maximum of 2 nested include levels are allowed!")

	_, err = resolve(t, deep, "include: l1.yml\n", WithLimits(0, 3))
	require.NoError(t, err)
}

func TestResolve_FetchesOncePerFile(t *testing.T) {
	repo := memory.New().AddFiles(project, "main", map[string]string{
		"a.yml":      "include: [shared.yml]\na: {script: a}\n",
		"b.yml":      "include:\n  - local: shared.yml\n    inputs: {}\nb: {script: b}\n",
		"shared.yml": "shared: {script: s}\n",
	})
	reader := newCountingReader(repo)
	r := New(reader)
	_, err := r.Resolve(context.Background(), parse(t, "include: [a.yml, b.yml]\n"), ".gitlab-ci.yml", Context{Project: project, Ref: "main"})
	require.NoError(t, err)
	for key, n := range reader.counts {
		assert.Equal(t, 1, n, key)
	}
}

func TestResolve_DeterministicUnderConcurrency(t *testing.T) {
	repo := memory.New().AddFiles(project, "main", map[string]string{
		"slow.yml": "job: {script: slow}\nvariables: {WHO: slow}\n",
		"fast.yml": "job: {script: fast}\nvariables: {WHO: fast}\n",
	})
	reader := newCountingReader(repo)
	reader.delay["slow.yml"] = 20 * time.Millisecond

	for i := 0; i < 5; i++ {
		res, err := New(reader).Resolve(context.Background(), parse(t, "include: [slow.yml, fast.yml]\n"), ".gitlab-ci.yml", Context{Project: project, Ref: "main"})
		require.NoError(t, err)
		who, _ := res.Document.Lookup("variables", "WHO")
		assert.Equal(t, "fast", who.Value, "later includes win regardless of fetch order")
		require.Len(t, res.Files, 2)
		assert.Equal(t, "slow.yml", res.Files[0].Location)
	}
}

func TestResolve_Observer(t *testing.T) {
	repo := memory.New().AddFiles(project, "main", map[string]string{"a.yml": "a: {script: a}\n"})
	var mu sync.Mutex
	seen := map[Outcome]int{}
	r := New(repo, WithObserver(func(kind source.Kind, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, source.KindLocal, kind)
		seen[o]++
	}))
	_, err := r.Resolve(context.Background(), parse(t, "include: [a.yml, b.yml]\n"), ".gitlab-ci.yml", Context{Project: project, Ref: "main"})
	require.Error(t, err)
	assert.Equal(t, 1, seen[OutcomeFetched])
	assert.Equal(t, 1, seen[OutcomeNotFound])
}

func TestParseLocator(t *testing.T) {
	l, err := ParseLocator("gitlab.example.com/group/sub/project/lint@1.0")
	require.NoError(t, err)
	assert.Equal(t, Locator{Raw: "gitlab.example.com/group/sub/project/lint@1.0", Host: "gitlab.example.com", Project: "group/sub/project", Name: "lint", Version: "1.0"}, l)

	l, err = ParseLocator("gitlab.example.com/proj/name@v0.1")
	require.NoError(t, err)
	assert.Equal(t, "proj", l.Project)
	assert.Equal(t, "name", l.Name)

	for _, bad := range []string{"gitlab.example.com/group/lint", "gitlab.example.com/lint@1", "host//p/n@1", "host/p/n@"} {
		_, err := ParseLocator(bad)
		assert.Error(t, err, bad)
	}
}
