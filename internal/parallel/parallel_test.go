package parallel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parallelNode(t *testing.T, src string) *document.Node {
	t.Helper()
	f, err := document.Parse([]byte(src), "ci.yml")
	require.NoError(t, err)
	return f.Body.Get("parallel")
}

func names(instances []Instance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Name.String()
	}
	return out
}

func TestParseSpec(t *testing.T) {
	testCases := []struct {
		name        string
		src         string
		total       int
		errContains string
	}{
		{name: "count", src: "parallel: 3\n", total: 3},
		{name: "maximum count", src: "parallel: 200\n", total: 200},
		{name: "zero", src: "parallel: 0\n", errContains: "must be between 1 and 200"},
		{name: "too many", src: "parallel: 201\n", errContains: "must be between 1 and 200"},
		{
			name: "matrix",
			src: `
parallel:
  matrix:
    - PROVIDER: aws
      STACK: [monitoring, app1, app2]
    - PROVIDER: [gcp, vultr]
      STACK: data
`,
			total: 5,
		},
		{name: "string", src: "parallel: many\n", errContains: "should be an integer or a hash"},
		{name: "unknown key", src: "parallel: {count: 2}\n", errContains: "unknown keys: count"},
		{name: "empty matrix", src: "parallel: {matrix: []}\n", errContains: "should be an array of hashes"},
		{name: "matrix of strings", src: "parallel: {matrix: [a]}\n", errContains: "should be an array of hashes"},
		{name: "invalid axis name", src: "parallel: {matrix: [{'A-B': x}]}\n", errContains: "A-B is not a valid variable name"},
		{name: "nested values", src: "parallel: {matrix: [{A: [{b: c}]}]}\n", errContains: "jobs:test:parallel:matrix:A config should be a string or an array of strings"},
		{
			name: "matrix too large",
			src: `
parallel:
  matrix:
    - A: [1, 2, 3, 4, 5, 6, 7, 8, 9, 10]
      B: [1, 2, 3, 4, 5, 6, 7, 8, 9, 10]
      C: [1, 2, 3]
`,
			errContains: "generates too many jobs (maximum is 200)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, diags := ParseSpec(parallelNode(t, tc.src), "jobs:test:parallel")
			if tc.errContains != "" {
				require.True(t, diags.HasErrors())
				assert.Contains(t, diags.Error(), tc.errContains)
				return
			}
			require.False(t, diags.HasErrors(), diags.Error())
			assert.Equal(t, tc.total, s.Total())
		})
	}

	s, diags := ParseSpec(nil, "jobs:test:parallel")
	assert.Nil(t, s)
	assert.Empty(t, diags)
	assert.Equal(t, 1, s.Total())
}

func TestParseSpec_HugeMatrixIsRejected(t *testing.T) {
	values := make([]string, 16)
	for i := range values {
		values[i] = fmt.Sprint(i)
	}
	var b strings.Builder
	b.WriteString("parallel:\n  matrix:\n    - ")
	for i := 0; i < 16; i++ {
		if i > 0 {
			b.WriteString("      ")
		}
		fmt.Fprintf(&b, "AXIS_%d: [%s]\n", i, strings.Join(values, ", "))
	}

	s, diags := ParseSpec(parallelNode(t, b.String()), "jobs:test:parallel")
	assert.Nil(t, s)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "generates too many jobs (maximum is 200)")

	wide := &Spec{Matrix: []Entry{{{Name: "A", Values: values}}, {{Name: "B", Values: values}}}}
	for range 20 {
		wide.Matrix = append(wide.Matrix, Entry{{Name: "C", Values: values}})
	}
	assert.Equal(t, MaxInstances+1, wide.Total())
}

func TestExpand(t *testing.T) {
	t.Run("without parallel", func(t *testing.T) {
		got := Expand("build", nil)
		require.Len(t, got, 1)
		assert.Equal(t, "build", got[0].Name.String())
		assert.Empty(t, got[0].Variables())
	})

	t.Run("count", func(t *testing.T) {
		got := Expand("rspec", &Spec{Count: 3})
		assert.Equal(t, []string{"rspec 1/3", "rspec 2/3", "rspec 3/3"}, names(got))
		assert.Equal(t, 2, got[1].Index)
		assert.Equal(t, 3, got[1].Total)
	})

	t.Run("matrix", func(t *testing.T) {
		s, diags := ParseSpec(parallelNode(t, `
parallel:
  matrix:
    - PROVIDER: aws
      STACK: [app1, app2]
    - PROVIDER: [gcp, vultr]
      STACK: data
`), "jobs:deploy:parallel")
		require.False(t, diags.HasErrors())

		got := Expand("deploy", s)
		assert.Equal(t, []string{
			"deploy: [aws, app1]",
			"deploy: [aws, app2]",
			"deploy: [gcp, data]",
			"deploy: [vultr, data]",
		}, names(got))

		assert.Equal(t, []variables.Variable{
			{Key: "PROVIDER", Value: "gcp", Source: variables.SourceMatrix},
			{Key: "STACK", Value: "data", Source: variables.SourceMatrix},
		}, got[2].Variables())
		assert.Equal(t, map[string]string{"PROVIDER": "aws", "STACK": "app2"}, got[1].Bindings())
		assert.Equal(t, 4, got[3].Index)
		assert.Equal(t, 4, got[3].Total)
	})

	t.Run("duplicate combinations are kept", func(t *testing.T) {
		s := &Spec{Matrix: []Entry{
			{{Name: "A", Values: []string{"x"}}},
			{{Name: "A", Values: []string{"x"}}},
		}}
		assert.Equal(t, []string{"job: [x]", "job: [x]"}, names(Expand("job", s)))
	})
}

func TestResolveSelector(t *testing.T) {
	targets := Expand("build", &Spec{Matrix: []Entry{{
		{Name: "PROVIDER", Values: []string{"aws", "gcp"}},
		{Name: "STACK", Values: []string{"app1", "app2"}},
	}}})

	testCases := []struct {
		name        string
		selector    []Entry
		bindings    map[string]string
		want        []string
		errContains string
	}{
		{
			name:     "full combination",
			selector: []Entry{{{Name: "PROVIDER", Values: []string{"gcp"}}, {Name: "STACK", Values: []string{"app1"}}}},
			want:     []string{"build: [gcp, app1]"},
		},
		{
			name:     "several values",
			selector: []Entry{{{Name: "PROVIDER", Values: []string{"aws"}}, {Name: "STACK", Values: []string{"app1", "app2"}}}},
			want:     []string{"build: [aws, app1]", "build: [aws, app2]"},
		},
		{
			name:     "bound to the needing instance",
			selector: []Entry{{{Name: "PROVIDER", Values: []string{"$[[ matrix.PROVIDER ]]"}}, {Name: "STACK", Values: []string{"$[[ matrix.STACK ]]"}}}},
			bindings: map[string]string{"PROVIDER": "aws", "STACK": "app2"},
			want:     []string{"build: [aws, app2]"},
		},
		{
			name:        "no match",
			selector:    []Entry{{{Name: "PROVIDER", Values: []string{"azure"}}, {Name: "STACK", Values: []string{"app1"}}}},
			errContains: "matrix selector {PROVIDER: azure, STACK: app1} does not match any instance",
		},
		{
			name:        "ambiguous partial selector",
			selector:    []Entry{{{Name: "PROVIDER", Values: []string{"aws"}}}},
			errContains: "is ambiguous, it matches 2 instances",
		},
		{
			name:        "unbound axis",
			selector:    []Entry{{{Name: "PROVIDER", Values: []string{"$[[ matrix.GPU ]]"}}, {Name: "STACK", Values: []string{"app1"}}}},
			errContains: "unknown interpolation key: `matrix.GPU`",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveSelector(tc.selector, tc.bindings, targets)
			if tc.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}
