package graph

import "context"

// Realizer persists a finished graph and returns the id it was stored
// under. Implementations must store the whole graph or nothing.
type Realizer interface {
	Realize(ctx context.Context, g *Graph) (string, error)
}
