package testutil

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// AssertJobNames checks the instance names of the compiled graph, in stage
// order.
func AssertJobNames(t *testing.T, result *HarnessResult, want ...string) {
	t.Helper()
	require.NotNil(t, result.Result.Graph, "no graph was assembled; errors: %v", result.Result.ErrorContents())
	if diff := cmp.Diff(want, result.Result.Graph.JobNames()); diff != "" {
		t.Fatalf("job names mismatch (-want +got):\n%s", diff)
	}
}

// AssertErrorContains checks that one error message contains substr.
func AssertErrorContains(t *testing.T, result *HarnessResult, substr string) {
	t.Helper()
	for _, msg := range result.Result.ErrorContents() {
		if strings.Contains(msg, substr) {
			return
		}
	}
	t.Fatalf("no error contains %q; errors: %q", substr, result.Result.ErrorContents())
}
