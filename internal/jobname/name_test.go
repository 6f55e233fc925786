// internal/jobname/name_test.go
package jobname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_String(t *testing.T) {
	testCases := []struct {
		name     string
		in       Name
		expected string
	}{
		{name: "plain", in: Plain("rspec"), expected: "rspec"},
		{name: "parallel", in: Parallel("job", 2, 3), expected: "job 2/3"},
		{name: "matrix", in: Matrix("deploy", []string{"aws", "monitoring"}), expected: "deploy: [aws, monitoring]"},
		{name: "single value matrix", in: Matrix("deploy", []string{"x"}), expected: "deploy: [x]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.in.String())
		})
	}
}

func TestName_RoundTrip(t *testing.T) {
	names := []string{
		"build",
		"job 1/3",
		"build: [1, x]",
		"test: [aws, app, eu-west-1]",
		"my job with spaces",
	}

	for _, raw := range names {
		t.Run(raw, func(t *testing.T) {
			n, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, n.String())

			again, err := Parse(n.String())
			require.NoError(t, err)
			assert.True(t, n.Equal(again))
		})
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		expected  Name
	}{
		{name: "parallel", raw: "rspec 3/5", expected: Parallel("rspec", 3, 5)},
		{name: "matrix", raw: "deploy: [a, b]", expected: Matrix("deploy", []string{"a", "b"})},
		{name: "index above total stays plain", raw: "job 4/3", expected: Plain("job 4/3")},
		{name: "zero index stays plain", raw: "job 0/3", expected: Plain("job 0/3")},
		{name: "brackets without separator", raw: "job[1]", expected: Plain("job[1]")},
		{name: "error - empty", raw: "  ", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Parse(tc.raw)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(n), "got %#v", n)
		})
	}
}
