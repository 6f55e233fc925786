// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the in-memory document tree every compilation stage works on.
//
// A Node is a tagged variant: exactly one of the scalar text, the sequence
// items or the mapping pairs is meaningful, selected by Kind. Consumers check
// the Kind explicitly through the As* helpers instead of coercing values, so a
// wrong value type is always reported at the place where it is consumed, with
// the node's source range.
package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Kind selects which variant of a Node is populated.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindMapping:
		return "hash"
	case KindSequence:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ReferenceTag marks a sequence node as a reference to another key.
const ReferenceTag = "!reference"

// Node is one element of a document tree.
type Node struct {
	Kind Kind
	// Value is the canonical text of a scalar.
	Value string
	Items []*Node
	Pairs []*Pair
	// Tag holds a custom (non-core) YAML tag such as "!reference".
	Tag   string
	Range hcl.Range
}

// Pair is one key/value entry of a mapping. Pairs keep declaration order.
type Pair struct {
	Key      string
	KeyRange hcl.Range
	Value    *Node
}

// NewString returns a string scalar.
func NewString(s string) *Node { return &Node{Kind: KindString, Value: s} }

// NewInt returns an integer scalar.
func NewInt(i int64) *Node { return &Node{Kind: KindInt, Value: strconv.FormatInt(i, 10)} }

// NewFloat returns a float scalar.
func NewFloat(f float64) *Node {
	return &Node{Kind: KindFloat, Value: strconv.FormatFloat(f, 'g', -1, 64)}
}

// NewBool returns a boolean scalar.
func NewBool(b bool) *Node { return &Node{Kind: KindBool, Value: strconv.FormatBool(b)} }

// NewNull returns a null scalar.
func NewNull() *Node { return &Node{Kind: KindNull} }

// NewSequence returns a sequence of the given items.
func NewSequence(items ...*Node) *Node { return &Node{Kind: KindSequence, Items: items} }

// NewMapping returns an empty mapping.
func NewMapping() *Node { return &Node{Kind: KindMapping} }

// IsNull reports whether n is absent or an explicit null.
func (n *Node) IsNull() bool { return n == nil || n.Kind == KindNull }

// IsMapping reports whether n is a mapping.
func (n *Node) IsMapping() bool { return n != nil && n.Kind == KindMapping }

// IsSequence reports whether n is a sequence.
func (n *Node) IsSequence() bool { return n != nil && n.Kind == KindSequence }

// IsScalar reports whether n is a string, number, boolean or null.
func (n *Node) IsScalar() bool {
	return n != nil && n.Kind != KindMapping && n.Kind != KindSequence
}

// IsReference reports whether n is a `!reference` sequence.
func (n *Node) IsReference() bool { return n.IsSequence() && n.Tag == ReferenceTag }

// Pair returns the entry for key, or nil.
func (n *Node) Pair(key string) *Pair {
	if !n.IsMapping() {
		return nil
	}
	for _, p := range n.Pairs {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// Get returns the value for key, or nil when n is not a mapping or lacks key.
func (n *Node) Get(key string) *Node {
	if p := n.Pair(key); p != nil {
		return p.Value
	}
	return nil
}

// Has reports whether the mapping declares key, even with a null value.
func (n *Node) Has(key string) bool { return n.Pair(key) != nil }

// Set replaces the value for key in place or appends a new entry.
func (n *Node) Set(key string, value *Node) {
	if p := n.Pair(key); p != nil {
		p.Value = value
		return
	}
	n.Pairs = append(n.Pairs, &Pair{Key: key, Value: value})
}

// Delete removes key from the mapping.
func (n *Node) Delete(key string) {
	if !n.IsMapping() {
		return
	}
	for i, p := range n.Pairs {
		if p.Key == key {
			n.Pairs = append(n.Pairs[:i:i], n.Pairs[i+1:]...)
			return
		}
	}
}

// Keys returns the mapping keys in declaration order.
func (n *Node) Keys() []string {
	if !n.IsMapping() {
		return nil
	}
	keys := make([]string, 0, len(n.Pairs))
	for _, p := range n.Pairs {
		keys = append(keys, p.Key)
	}
	return keys
}

// Lookup walks mapping keys and returns the node at path.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	cur := n
	for _, key := range path {
		p := cur.Pair(key)
		if p == nil {
			return nil, false
		}
		cur = p.Value
	}
	return cur, true
}

// AsString returns the text of a string scalar.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Value, true
}

// Scalar returns the text of any scalar. Null yields the empty string.
func (n *Node) Scalar() (string, bool) {
	if !n.IsScalar() {
		return "", false
	}
	return n.Value, true
}

// AsBool returns the value of a boolean scalar.
func (n *Node) AsBool() (bool, bool) {
	if n == nil || n.Kind != KindBool {
		return false, false
	}
	return n.Value == "true", true
}

// AsInt returns the value of an integer scalar.
func (n *Node) AsInt() (int, bool) {
	if n == nil || n.Kind != KindInt {
		return 0, false
	}
	i, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// StringList accepts a single string or a sequence of scalars.
func (n *Node) StringList() ([]string, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Kind {
	case KindString:
		return []string{n.Value}, true
	case KindSequence:
		out := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			if item.IsNull() || !item.IsScalar() {
				return nil, false
			}
			out = append(out, item.Value)
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Value: n.Value, Tag: n.Tag, Range: n.Range}
	if n.Items != nil {
		c.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			c.Items[i] = item.Clone()
		}
	}
	if n.Pairs != nil {
		c.Pairs = make([]*Pair, len(n.Pairs))
		for i, p := range n.Pairs {
			c.Pairs[i] = &Pair{Key: p.Key, KeyRange: p.KeyRange, Value: p.Value.Clone()}
		}
	}
	return c
}

// Equal compares two trees structurally, ignoring source ranges.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n.IsNull() && o.IsNull()
	}
	if n.Kind != o.Kind || n.Value != o.Value || n.Tag != o.Tag {
		return false
	}
	if len(n.Items) != len(o.Items) || len(n.Pairs) != len(o.Pairs) {
		return false
	}
	for i := range n.Items {
		if !n.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	for i := range n.Pairs {
		if n.Pairs[i].Key != o.Pairs[i].Key || !n.Pairs[i].Value.Equal(o.Pairs[i].Value) {
			return false
		}
	}
	return true
}

// Interface converts n into plain Go values: string, int64, float64, bool,
// nil, []any and map[string]any.
func (n *Node) Interface() any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindString:
		return n.Value
	case KindInt:
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return n.Value
		}
		return i
	case KindFloat:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return n.Value
		}
		return f
	case KindBool:
		return n.Value == "true"
	case KindSequence:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(n.Pairs))
		for _, p := range n.Pairs {
			out[p.Key] = p.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// String renders n for use in messages.
func (n *Node) String() string {
	if n == nil {
		return "null"
	}
	switch n.Kind {
	case KindNull:
		return "null"
	case KindSequence:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMapping:
		parts := make([]string, len(n.Pairs))
		for i, p := range n.Pairs {
			parts[i] = p.Key + ": " + p.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return n.Value
	}
}

// DeepMerge returns a new tree with override merged over base. Mappings merge
// key by key; any other combination takes the override.
func DeepMerge(base, override *Node) *Node {
	if !base.IsMapping() || !override.IsMapping() {
		return override.Clone()
	}
	out := base.Clone()
	for _, p := range override.Pairs {
		existing := out.Pair(p.Key)
		if existing == nil {
			out.Pairs = append(out.Pairs, &Pair{Key: p.Key, KeyRange: p.KeyRange, Value: p.Value.Clone()})
			continue
		}
		existing.Value = DeepMerge(existing.Value, p.Value)
	}
	return out
}
