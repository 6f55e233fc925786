package dag

import (
	"fmt"
	"strings"
)

// CycleError reports a cycle as the ordered node path that forms it. The
// first node is not repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "cycle detected"
	}
	return fmt.Sprintf("cycle detected involving node '%s': %s -> %s",
		e.Path[0], strings.Join(e.Path, " -> "), e.Path[0])
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// describing the first cycle found, visiting nodes in insertion order.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Use classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var stack []string

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			for i, id := range stack {
				if id == n.id {
					return &CycleError{Path: append([]string(nil), stack[i:]...)}
				}
			}
			return &CycleError{Path: []string{n.id}}
		}

		temporary[n.id] = true
		stack = append(stack, n.id)

		for _, id := range n.dependentOrder {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}

	return nil
}

// ShortestCycle returns the shortest cycle that passes through start,
// beginning with start, or nil when start is not on any cycle.
func (g *Graph) ShortestCycle(start string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	origin, ok := g.nodes[start]
	if !ok {
		return nil
	}

	// Breadth-first search along dependent edges until start is reached again.
	parent := map[string]string{}
	visited := map[string]bool{}
	queue := []string{}
	for _, id := range origin.dependentOrder {
		if id == start {
			return []string{start}
		}
		if !visited[id] {
			visited[id] = true
			parent[id] = start
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.nodes[cur].dependentOrder {
			if next == start {
				path := []string{cur}
				for p := parent[cur]; p != start; p = parent[p] {
					path = append(path, p)
				}
				path = append(path, start)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if !visited[next] {
				visited[next] = true
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return nil
}

// TopologicalSort returns the node IDs ordered so that every node comes
// after all of its dependencies. Ties keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = len(g.nodes[id].deps)
	}

	sorted := make([]string, 0, len(g.order))
	done := make(map[string]bool, len(g.order))
	for len(sorted) < len(g.order) {
		progressed := false
		for _, id := range g.order {
			if done[id] || inDegree[id] > 0 {
				continue
			}
			done[id] = true
			sorted = append(sorted, id)
			progressed = true
			for _, dep := range g.nodes[id].dependentOrder {
				inDegree[dep]--
			}
		}
		if !progressed {
			return nil, &CycleError{}
		}
	}
	return sorted, nil
}
