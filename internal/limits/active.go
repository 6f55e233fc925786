package limits

import (
	"context"
	"sync"
)

// ActiveJobsMessage is the failure text when a project has too many active
// jobs.
const ActiveJobsMessage = "Project exceeded the allowed number of jobs in active pipelines. Retry later."

// ActiveJobCounter reports how many jobs a project has in active pipelines.
type ActiveJobCounter interface {
	ActiveJobs(ctx context.Context, project string) (int, error)
}

// Exceeds reports whether adding jobs to the active count passes ceiling.
// A ceiling of zero or less disables the check.
func Exceeds(active, adding, ceiling int) bool {
	return ceiling > 0 && active+adding > ceiling
}

// MemoryActiveJobs is a fixed table of active job counts.
type MemoryActiveJobs struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewMemoryActiveJobs returns an empty table.
func NewMemoryActiveJobs() *MemoryActiveJobs {
	return &MemoryActiveJobs{counts: map[string]int{}}
}

// Set records the active job count of project.
func (m *MemoryActiveJobs) Set(project string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[project] = n
}

// ActiveJobs implements ActiveJobCounter.
func (m *MemoryActiveJobs) ActiveJobs(_ context.Context, project string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[project], nil
}
