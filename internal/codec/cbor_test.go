package codec

import (
	"testing"

	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministic(t *testing.T) {
	g := &graph.Graph{Stages: []*graph.Stage{{
		Name: "test",
		Jobs: []*graph.Job{{
			Name:    "rspec",
			Options: map[string]any{"image": "ruby", "artifacts": map[string]any{"paths": []any{"out/"}}, "b": 1, "a": 2},
		}},
	}}}

	first, err := Marshal(g)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(g)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var decoded graph.Graph
	require.NoError(t, Unmarshal(first, &decoded))
	assert.Equal(t, "rspec", decoded.Stages[0].Jobs[0].Name)
	assert.Equal(t, "ruby", decoded.Stages[0].Jobs[0].Options["image"])
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(map[string]any{"x": 2, "y": "z"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
