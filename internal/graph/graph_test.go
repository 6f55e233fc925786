package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample() *Graph {
	return &Graph{Stages: []*Stage{
		{Name: "build", Jobs: []*Job{{Name: "compile"}, {Name: "lint"}}},
		{Name: "test", Position: 1, Jobs: []*Job{{Name: "rspec 1/2"}, {Name: "rspec 2/2", Variables: []Variable{{Key: "CI_NODE_INDEX", Value: "2"}}}}},
	}}
}

func TestJobs(t *testing.T) {
	g := sample()
	assert.Equal(t, []string{"compile", "lint", "rspec 1/2", "rspec 2/2"}, g.JobNames())
	assert.Equal(t, 4, g.Size())
	assert.Nil(t, g.Job("missing"))

	v, ok := g.Job("rspec 2/2").Variable("CI_NODE_INDEX")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	var empty *Graph
	assert.Empty(t, empty.Jobs())
}

func TestSetPartition(t *testing.T) {
	g := sample()
	g.SetPartition(102)
	assert.Equal(t, int64(102), g.PartitionID)
	for _, s := range g.Stages {
		assert.Equal(t, int64(102), s.PartitionID)
		for _, j := range s.Jobs {
			assert.Equal(t, int64(102), j.PartitionID)
		}
	}
}
