// Package reference expands `!reference [key, subkey, ...]` tags against the
// merged document they appear in.
//
// Targets are resolved transitively. Every reference followed during a run
// becomes an edge in a dag.Graph keyed by target path, so a circular chain is
// reported as the shortest cycle through the reference that closed it rather
// than as the whole chain that led there.
package reference

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/dag"
	"github.com/specialistvlad/ciforge/internal/document"
)

// MaxDepth bounds how many references may be followed through one another.
const MaxDepth = 10

// CycleError reports a circular chain of references. Chain holds the target
// paths of the minimal cycle, starting with the reference that closed it.
type CycleError struct {
	Chain [][]string
}

func (e *CycleError) Error() string {
	if len(e.Chain) == 0 {
		return "!reference is part of a circular chain"
	}
	return fmt.Sprintf("%s is part of a circular chain", Format(e.Chain[0]))
}

// Format renders a path the way it is written in messages:
// `!reference ["job", "script"]`.
func Format(path []string) string {
	quoted := make([]string, len(path))
	for i, p := range path {
		quoted[i] = strconv.Quote(p)
	}
	return "!reference [" + strings.Join(quoted, ", ") + "]"
}

// Resolve returns a copy of doc with every reference replaced by the value it
// points at. doc is not modified. A document without references comes back
// equal to the input.
func Resolve(doc *document.Node) (*document.Node, error) {
	r := &resolver{
		root:     doc,
		resolved: map[string]*document.Node{},
		active:   map[string]bool{},
		graph:    dag.New(),
	}
	return r.node(doc, "")
}

type resolver struct {
	root     *document.Node
	resolved map[string]*document.Node
	active   map[string]bool
	graph    *dag.Graph
	depth    int
}

// node resolves every reference below n. from is the key of the target being
// resolved, or empty at the top level.
func (r *resolver) node(n *document.Node, from string) (*document.Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.IsReference() {
		return r.reference(n, from)
	}
	switch n.Kind {
	case document.KindSequence:
		out := &document.Node{Kind: n.Kind, Tag: n.Tag, Range: n.Range, Items: make([]*document.Node, len(n.Items))}
		for i, item := range n.Items {
			v, err := r.node(item, from)
			if err != nil {
				return nil, err
			}
			out.Items[i] = v
		}
		return out, nil
	case document.KindMapping:
		out := &document.Node{Kind: n.Kind, Tag: n.Tag, Range: n.Range, Pairs: make([]*document.Pair, len(n.Pairs))}
		for i, p := range n.Pairs {
			v, err := r.node(p.Value, from)
			if err != nil {
				return nil, err
			}
			out.Pairs[i] = &document.Pair{Key: p.Key, KeyRange: p.KeyRange, Value: v}
		}
		return out, nil
	default:
		return n.Clone(), nil
	}
}

func (r *resolver) reference(n *document.Node, from string) (*document.Node, error) {
	path, ok := n.StringList()
	if !ok || len(path) == 0 {
		return nil, cierr.At(cierr.KindSyntax, n.Range, "%s is not a valid reference, it must be an array of strings", n.String())
	}
	key := pathKey(path)

	if from != "" {
		r.graph.Connect(from, key)
	}
	if v, ok := r.resolved[key]; ok {
		return withRange(v, n), nil
	}
	if r.active[key] {
		return nil, r.cycleError(key, n)
	}
	if r.depth >= MaxDepth {
		return nil, cierr.At(cierr.KindReferenceCycle, n.Range, "%s: too many nested references, the maximum is %d", Format(path), MaxDepth)
	}

	target, err := r.lookup(path, n)
	if err != nil {
		return nil, err
	}

	r.active[key] = true
	r.depth++
	v, err := r.node(target, key)
	r.depth--
	delete(r.active, key)
	if err != nil {
		return nil, err
	}

	r.resolved[key] = v
	return withRange(v, n), nil
}

// lookup walks the mapping keys of path from the root. A reference met on
// the way is resolved first.
func (r *resolver) lookup(path []string, at *document.Node) (*document.Node, error) {
	cur := r.root
	for _, k := range path {
		if cur.IsReference() {
			v, err := r.reference(cur, "")
			if err != nil {
				return nil, err
			}
			cur = v
		}
		next := cur.Pair(k)
		if next == nil {
			return nil, cierr.At(cierr.KindSyntax, at.Range, "%s could not be found", Format(path))
		}
		cur = next.Value
	}
	return cur, nil
}

func (r *resolver) cycleError(key string, at *document.Node) error {
	ids := r.graph.ShortestCycle(key)
	if ids == nil {
		ids = []string{key}
	}
	chain := make([][]string, len(ids))
	for i, id := range ids {
		chain[i] = splitKey(id)
	}
	e := &CycleError{Chain: chain}
	return &cierr.Error{Kind: cierr.KindReferenceCycle, Message: e.Error(), Location: rangePtr(at), Err: e}
}

// withRange clones v and anchors it where the reference was written.
func withRange(v, at *document.Node) *document.Node {
	out := v.Clone()
	if out != nil {
		out.Range = at.Range
	}
	return out
}

func rangePtr(n *document.Node) *hcl.Range {
	if n.Range.Filename == "" && n.Range.Start.Line == 0 {
		return nil
	}
	rng := n.Range
	return &rng
}

const keySep = "\x00"

func pathKey(path []string) string { return strings.Join(path, keySep) }

func splitKey(key string) []string { return strings.Split(key, keySep) }
