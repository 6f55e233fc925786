package interpolate

import (
	"strings"
	"testing"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFile(t *testing.T, src string) (*document.Node, *Header) {
	t.Helper()
	f, err := document.Parse([]byte(src), "template.yml")
	require.NoError(t, err)
	h, diags := ParseHeader(f.Spec())
	require.False(t, diags.HasErrors(), diags.Error())
	return f.Body, h
}

func inputsOf(t *testing.T, src string) *document.Node {
	t.Helper()
	if src == "" {
		return nil
	}
	f, err := document.Parse([]byte(src), "inputs.yml")
	require.NoError(t, err)
	return f.Body
}

func TestInterpolate(t *testing.T) {
	const header = `
spec:
  inputs:
    stage:
      default: test
    parallel:
      type: number
      default: 2
    flags:
      type: array
      default: ["--fast", "--quiet"]
    deploy:
      type: boolean
      default: false
    env:
      options: [staging, production]
      default: staging
    message:
      default: "it's done"
---
`
	testCases := []struct {
		name        string
		body        string
		inputs      string
		ctx         Context
		errContains []string
		want        string
	}{
		{
			name: "defaults keep their types",
			body: `
job:
  stage: $[[ inputs.stage ]]
  parallel: $[[ inputs.parallel ]]
  script: $[[ inputs.flags ]]
  allow_failure: $[[inputs.deploy]]
`,
			want: `
job:
  stage: test
  parallel: 2
  script: ["--fast", "--quiet"]
  allow_failure: false
`,
		},
		{
			name:   "caller values override defaults",
			body:   "job:\n  stage: $[[ inputs.stage ]]\n  environment: $[[ inputs.env ]]\n",
			inputs: "stage: build\nenv: production\n",
			want:   "job:\n  stage: build\n  environment: production\n",
		},
		{
			name: "textual substitution in strings and keys",
			body: `
job-$[[ inputs.env ]]:
  script: echo "$[[ inputs.stage ]] x$[[ inputs.parallel ]] $[[ inputs.flags ]]"
`,
			want: `
job-staging:
  script: echo "test x2 ["--fast","--quiet"]"
`,
		},
		{
			name: "function pipeline",
			body: `
job:
  script:
    - echo $[[ inputs.message | posix_quote ]]
    - echo $[[ inputs.message | posix_escape ]]
    - echo $[[ inputs.stage | truncate(1, 2) ]]
`,
			want: `
job:
  script:
    - echo 'it'\''s done'
    - echo it\'s\ done
    - echo es
`,
		},
		{
			name: "expand_vars uses the visible variables",
			body: "job:\n  script: $[[ inputs.stage | expand_vars ]]\n",
			inputs: "stage: $TARGET-$HIDDEN\n",
			ctx: Context{Variables: func(k string) (string, bool) {
				if k == "TARGET" {
					return "prod", true
				}
				return "", false
			}},
			want: "job:\n  script: prod-$HIDDEN\n",
		},
		{
			name: "matrix blocks wait for a binding",
			body: "job:\n  needs:\n    - job: build\n      parallel:\n        matrix:\n          - OS: $[[ matrix.OS ]]\n",
			want: "job:\n  needs:\n    - job: build\n      parallel:\n        matrix:\n          - OS: $[[ matrix.OS ]]\n",
		},
		{
			name: "unterminated block is text",
			body: "job:\n  script: echo $[[ inputs.stage\n",
			want: "job:\n  script: echo $[[ inputs.stage\n",
		},
		{
			name:        "unknown input in body",
			body:        "job:\n  script: $[[ inputs.nope ]]\n",
			errContains: []string{"unknown interpolation key: `nope`"},
		},
		{
			name:        "unknown function",
			body:        "job:\n  script: $[[ inputs.stage | shout ]]\n",
			errContains: []string{"no function matching `shout`"},
		},
		{
			name:        "component outside a component include",
			body:        "job:\n  script: $[[ component.name ]]\n",
			errContains: []string{"unknown interpolation key: `component`"},
		},
		{
			name:        "unknown caller input",
			body:        "job:\n  script: echo\n",
			inputs:      "zeta: 1\nalpha: 2\n",
			errContains: []string{"unknown input arguments: alpha, zeta"},
		},
		{
			name:        "option not allowed",
			body:        "job:\n  script: echo\n",
			inputs:      "env: qa\n",
			errContains: []string{"`env` input: `qa` cannot be used because it is not in the list of allowed options"},
		},
		{
			name:        "type mismatch",
			body:        "job:\n  script: echo\n",
			inputs:      "parallel: two\nflags: x\n",
			errContains: []string{"`parallel` input: provided value is not a number", "`flags` input: provided value is not an array"},
		},
		{
			name:        "too many functions",
			body:        "job:\n  script: $[[ inputs.stage | posix_quote | posix_quote | posix_quote | posix_quote ]]\n",
			errContains: []string{"too many functions"},
		},
		{
			name:        "truncate rejects negative arguments",
			body:        "job:\n  script: $[[ inputs.stage | truncate(-1, 2) ]]\n",
			errContains: []string{"`truncate` function"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body, h := parseFile(t, header+tc.body)
			before := body.Clone()

			out, err := Interpolate(body, h, inputsOf(t, tc.inputs), tc.ctx)
			assert.True(t, before.Equal(body), "input document was modified")

			if len(tc.errContains) > 0 {
				require.Error(t, err)
				for _, want := range tc.errContains {
					assert.Contains(t, err.Error(), want)
				}
				for _, e := range cierr.Flatten(err) {
					assert.True(t, cierr.Is(e, cierr.KindInterpolation), "%v", e)
				}
				return
			}
			require.NoError(t, err)
			want := inputsOf(t, tc.want)
			assert.True(t, want.Equal(out), "got %s\nwant %s", out, want)
		})
	}
}

func TestInterpolate_RequiredInputs(t *testing.T) {
	body, h := parseFile(t, `
spec:
  inputs:
    a:
    b:
      type: number
    c:
      default: x
---
job:
  script: echo
`)
	_, err := Interpolate(body, h, nil, Context{})
	require.Error(t, err)

	errs := cierr.Flatten(err)
	require.Len(t, errs, 2)
	assert.Equal(t, "`a` input: required value has not been provided", errs[0].Error())
	assert.Equal(t, "`b` input: required value has not been provided", errs[1].Error())
}

func TestInterpolate_NoHeader(t *testing.T) {
	f, err := document.Parse([]byte("job:\n  script: $[[ inputs.x ]]\n"), "plain.yml")
	require.NoError(t, err)

	out, err := Interpolate(f.Body, nil, nil, Context{})
	require.NoError(t, err)
	assert.Same(t, f.Body, out)

	_, err = Interpolate(f.Body, nil, inputsOf(t, "x: 1\n"), Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Given inputs not defined in the `spec` section")
}

func TestInterpolate_InvalidDefault(t *testing.T) {
	body, h := parseFile(t, `
spec:
  inputs:
    size:
      type: number
      default: big
    name:
      regex: ^[a-z]+$
      default: Upper
---
job:
  script: echo
`)
	_, err := Interpolate(body, h, nil, Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "`size` input: default value is not a number")
	assert.Contains(t, err.Error(), "`name` input: default value does not match required RegEx pattern")
}

func TestInterpolate_Component(t *testing.T) {
	body, h := parseFile(t, `
spec:
  inputs:
    stage:
      default: test
---
$[[ component.name ]]-job:
  script: echo $[[ component.version ]] $[[ component.sha | truncate(0, 8) ]]
`)
	out, err := Interpolate(body, h, nil, Context{Component: &Component{
		Name:    "lint",
		SHA:     "0123456789abcdef0123456789abcdef01234567",
		Version: "1.2.0",
	}})
	require.NoError(t, err)
	script, ok := out.Lookup("lint-job", "script")
	require.True(t, ok)
	assert.Equal(t, "echo 1.2.0 01234567", script.Value)
}

func TestInterpolate_BlockLimit(t *testing.T) {
	body, h := parseFile(t, `
spec:
  inputs:
    x:
      default: a
---
job:
  script: "`+strings.Repeat("$[[ inputs.x ]]", 20)+`"
`)
	_, err := Interpolate(body, h, nil, Context{MaxBlocks: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many interpolation blocks, the maximum is 10")
	assert.Len(t, cierr.Flatten(err), 1)
}

func TestText(t *testing.T) {
	out, err := Text("os-$[[ matrix.OS ]]-$[[ matrix.ARCH ]]", Context{Matrix: map[string]string{"OS": "linux", "ARCH": "arm"}})
	require.NoError(t, err)
	assert.Equal(t, "os-linux-arm", out)

	_, err = Text("$[[ matrix.GPU ]]", Context{Matrix: map[string]string{"OS": "linux"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown interpolation key: `matrix.GPU`")
}

func TestParseHeader(t *testing.T) {
	testCases := []struct {
		name        string
		src         string
		errContains string
	}{
		{"unknown spec key", "spec:\n  input: {}\n", "header:spec config contains unknown keys: input"},
		{"unknown input key", "spec:\n  inputs:\n    a:\n      required: true\n", "header:spec:inputs:a config contains unknown keys: required"},
		{"unknown type", "spec:\n  inputs:\n    a:\n      type: map\n", "input type unknown value: map"},
		{"regex on a number", "spec:\n  inputs:\n    a:\n      type: number\n      regex: ^1$\n", "regex can only be used with string inputs"},
		{"bad regex", "spec:\n  inputs:\n    a:\n      regex: \"(\"\n", "invalid regular expression"},
		{"options not a list", "spec:\n  inputs:\n    a:\n      options: x\n", "options should be an array"},
		{"unknown component field", "spec:\n  component: [name, owner]\n", "header:spec:component unknown value: owner"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := document.Parse([]byte(tc.src+"---\njob: {}\n"), "h.yml")
			require.NoError(t, err)
			_, diags := ParseHeader(f.Spec())
			require.True(t, diags.HasErrors())
			assert.Contains(t, diags.Error(), tc.errContains)
		})
	}
}

func TestPosixEscape(t *testing.T) {
	assert.Equal(t, "''", posixEscape(""))
	assert.Equal(t, `a\ b\;\ rm\ -rf\ /`, posixEscape("a b; rm -rf /"))
	assert.Equal(t, `\$HOME`, posixEscape("$HOME"))
}
