package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
build:
  stage: build
  script: make
test:
  stage: test
  script: make test
  needs: [build]
`

const excludedNeedConfig = `
build:
  stage: build
  script: make
  rules:
    - when: never
test:
  stage: test
  script: make test
  needs: [build]
`

// workdir writes files to a temporary working copy and returns its path.
func workdir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dir
}

// lint runs `ciforge lint` in dir and returns stdout and the exit code.
func lint(t *testing.T, dir string, args ...string) (string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"lint", "--dir", dir, "--no-color", "--log-level", "error"}, args...)
	err := Execute(context.Background(), full, &out, &errOut)
	if err == nil {
		return out.String(), 0
	}
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "unexpected error type %T: %v", err, err)
	return out.String(), exitErr.Code
}

func TestLint_Valid(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": validConfig})

	out, code := lint(t, dir)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, out, "build: build")
	assert.Contains(t, out, "test: test")
}

func TestLint_Path(t *testing.T) {
	dir := workdir(t, map[string]string{"ci/root.yml": validConfig})

	out, code := lint(t, dir, "ci/root.yml")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "configuration is valid")
}

func TestLint_Invalid(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": `
test:
  stage: test
  script: make test
  needs: [compile]
`})

	out, code := lint(t, dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "error: ")
	assert.NotContains(t, out, "configuration is valid")
}

func TestLint_Merged(t *testing.T) {
	dir := workdir(t, map[string]string{
		".gitlab-ci.yml": "include: ci/jobs.yml\n",
		"ci/jobs.yml":    validConfig,
	})

	out, code := lint(t, dir, "--merged")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "build:")
	assert.Contains(t, out, "script: make test")
	assert.NotContains(t, out, "include:")
}

func TestLint_Inputs(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": `
spec:
  inputs:
    environment:
      default: staging
---
deploy-$[[ inputs.environment ]]:
  script: deploy
`})

	out, code := lint(t, dir)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "deploy-staging")

	out, code = lint(t, dir, "--input", "environment=production")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "deploy-production")

	out, code = lint(t, dir, "--input", "region=eu")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "unknown input arguments: region")
}

func TestLint_Variables(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": `
workflow:
  rules:
    - if: $DEPLOY == "true"
job:
  script: make
`})

	out, code := lint(t, dir)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "Pipeline filtered out by workflow rules.")

	out, code = lint(t, dir, "--var", "DEPLOY=true")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "configuration is valid")
}

func TestLint_SettingsSources(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": excludedNeedConfig})

	_, code := lint(t, dir)
	assert.Equal(t, ExitFailure, code, "excluded needs are errors by default")

	t.Run("flag", func(t *testing.T) {
		out, code := lint(t, dir, "--excluded-need-policy", "drop")
		require.Equal(t, 0, code, out)
		assert.Contains(t, out, "warning: ")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("CIFORGE_EXCLUDED_NEED_POLICY", "drop")
		out, code := lint(t, dir)
		require.Equal(t, 0, code, out)
	})

	t.Run("config file", func(t *testing.T) {
		cfg := filepath.Join(t.TempDir(), "ciforge.yaml")
		require.NoError(t, os.WriteFile(cfg, []byte("excluded_need_policy: drop\n"), 0o600))
		out, code := lint(t, dir, "--config", cfg)
		require.Equal(t, 0, code, out)
	})
}

func TestLint_UsageErrors(t *testing.T) {
	dir := workdir(t, map[string]string{".gitlab-ci.yml": validConfig})

	testCases := map[string][]string{
		"unknown flag":   {"--this-is-not-a-valid-flag"},
		"too many args":  {"a.yml", "b.yml"},
		"bad input":      {"--input", "no-equals-sign"},
		"bad variable":   {"--var", "=value"},
		"invalid policy": {"--excluded-need-policy", "ignore"},
		"missing config": {"--config", filepath.Join(dir, "missing.yaml")},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, code := lint(t, dir, args...)
			assert.Equal(t, ExitUsage, code)
		})
	}
}

func TestParseInputs(t *testing.T) {
	n, err := parseInputs([]string{"count=3", "debug=true", "regions=[eu, us]", "name=api", "empty="})
	require.NoError(t, err)

	assert.Equal(t, document.KindInt, n.Get("count").Kind)
	assert.Equal(t, document.KindBool, n.Get("debug").Kind)
	regions, ok := n.Get("regions").StringList()
	require.True(t, ok)
	assert.Equal(t, []string{"eu", "us"}, regions)
	name, _ := n.Get("name").AsString()
	assert.Equal(t, "api", name)
	empty, _ := n.Get("empty").AsString()
	assert.Equal(t, "", empty)

	none, err := parseInputs(nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestParseVariables(t *testing.T) {
	vars, err := parseVariables([]string{"B=2", "A=1", "B=3", "URL=https://x?a=b"})
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, "A", vars[0].Key)
	assert.Equal(t, "3", vars[1].Value)
	assert.Equal(t, "https://x?a=b", vars[2].Value)
}
