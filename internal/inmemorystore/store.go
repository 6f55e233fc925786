package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/ciforge/internal/codec"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/graph"
)

// Store keeps realized graphs in memory.
type Store struct {
	graphs sync.Map // Key: id string, Value: []byte (CBOR)
	next   atomic.Int64
	count  atomic.Int64
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

var _ graph.Realizer = (*Store)(nil)

// Realize encodes g and stores it under a new id.
func (s *Store) Realize(ctx context.Context, g *graph.Graph) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := codec.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encoding pipeline: %w", err)
	}
	id := fmt.Sprintf("pipeline-%d", s.next.Add(1))
	s.graphs.Store(id, data)
	s.count.Add(1)
	ctxlog.FromContext(ctx).Debug("pipeline realized", "id", id, "jobs", g.Size(), "bytes", len(data))
	return id, nil
}

// Get decodes the graph stored under id.
func (s *Store) Get(ctx context.Context, id string) (*graph.Graph, error) {
	data, ok := s.Encoded(id)
	if !ok {
		return nil, fmt.Errorf("pipeline %s not found", id)
	}
	var g graph.Graph
	if err := codec.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding pipeline %s: %w", id, err)
	}
	return &g, nil
}

// Encoded returns the stored bytes for id.
func (s *Store) Encoded(id string) ([]byte, bool) {
	v, ok := s.graphs.Load(id)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Len returns the number of realized graphs.
func (s *Store) Len() int {
	return int(s.count.Load())
}
