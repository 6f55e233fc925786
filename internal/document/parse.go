// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file decodes raw configuration bytes into a File.
//
// A configuration file is either a single YAML document, or a header document
// holding only `spec:` followed by the body document. Anchors and aliases are
// expanded during conversion and `<<` merge keys are applied, so later stages
// never see YAML-level indirection.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"gopkg.in/yaml.v3"
)

// MaxNodes bounds the size of a converted tree, which protects against
// alias expansion bombs.
const MaxNodes = 1_000_000

// File is a parsed configuration file.
type File struct {
	Name string
	// Header is the `spec:` document, or nil.
	Header *Node
	// Body is the configuration document, or nil for an empty file.
	Body *Node
}

// Spec returns the `spec` mapping of the header, or nil.
func (f *File) Spec() *Node {
	if f == nil {
		return nil
	}
	return f.Header.Get("spec")
}

// Parse decodes data into a File. Errors are of kind syntax.
func Parse(data []byte, filename string) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*yaml.Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, cierr.New(cierr.KindSyntax, "%s: %s", filename, strings.TrimPrefix(err.Error(), "yaml: "))
		}
		docs = append(docs, &doc)
	}

	c := &converter{filename: filename}
	nodes := make([]*Node, 0, len(docs))
	for _, d := range docs {
		n, err := c.convert(d)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	f := &File{Name: filename}
	switch len(nodes) {
	case 0:
		return f, nil
	case 1:
		f.Body = nodes[0]
	case 2:
		if !isHeader(nodes[0]) {
			return nil, cierr.At(cierr.KindSyntax, nodes[0].Range,
				"%s: the first of two documents must contain only the `spec` keyword", filename)
		}
		f.Header, f.Body = nodes[0], nodes[1]
	default:
		return nil, cierr.New(cierr.KindSyntax, "%s: a configuration file can contain at most two documents", filename)
	}

	if isHeader(f.Body) && f.Header == nil && len(nodes) == 1 {
		return nil, cierr.At(cierr.KindSyntax, f.Body.Range,
			"%s: the `spec` header must be followed by a `---` separated configuration document", filename)
	}
	if !f.Body.IsNull() && !f.Body.IsMapping() {
		return nil, cierr.At(cierr.KindSyntax, f.Body.Range, "%s: invalid configuration format, expected a hash", filename)
	}
	if f.Body.IsNull() {
		f.Body = nil
	}
	return f, nil
}

func isHeader(n *Node) bool {
	return n.IsMapping() && len(n.Pairs) == 1 && n.Pairs[0].Key == "spec"
}

type converter struct {
	filename string
	count    int
}

func (c *converter) rng(y *yaml.Node) hcl.Range {
	pos := hcl.Pos{Line: y.Line, Column: y.Column}
	return hcl.Range{Filename: c.filename, Start: pos, End: pos}
}

func (c *converter) convert(y *yaml.Node) (*Node, error) {
	c.count++
	if c.count > MaxNodes {
		return nil, cierr.New(cierr.KindSyntax, "%s: document is too large after alias expansion", c.filename)
	}

	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return NewNull(), nil
		}
		return c.convert(y.Content[0])
	case yaml.AliasNode:
		if y.Alias == nil {
			return nil, cierr.At(cierr.KindSyntax, c.rng(y), "%s: unknown anchor", c.filename)
		}
		n, err := c.convert(y.Alias)
		if err != nil {
			return nil, err
		}
		n.Range = c.rng(y)
		return n, nil
	case yaml.ScalarNode:
		return c.scalar(y)
	case yaml.SequenceNode:
		n := &Node{Kind: KindSequence, Items: make([]*Node, 0, len(y.Content)), Range: c.rng(y), Tag: customTag(y)}
		for _, item := range y.Content {
			child, err := c.convert(item)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, child)
		}
		return n, nil
	case yaml.MappingNode:
		return c.mapping(y)
	default:
		return nil, cierr.At(cierr.KindSyntax, c.rng(y), "%s: unsupported YAML node", c.filename)
	}
}

func customTag(y *yaml.Node) string {
	tag := y.ShortTag()
	if strings.HasPrefix(tag, "!!") {
		return ""
	}
	return tag
}

func (c *converter) scalar(y *yaml.Node) (*Node, error) {
	n := &Node{Range: c.rng(y), Value: y.Value}
	switch y.ShortTag() {
	case "!!null":
		n.Kind, n.Value = KindNull, ""
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(y.Value))
		if err != nil {
			return nil, cierr.At(cierr.KindSyntax, n.Range, "%s: invalid boolean %q", c.filename, y.Value)
		}
		n.Kind, n.Value = KindBool, strconv.FormatBool(b)
	case "!!int":
		n.Kind = KindInt
		if i, err := strconv.ParseInt(strings.ReplaceAll(y.Value, "_", ""), 0, 64); err == nil {
			n.Value = strconv.FormatInt(i, 10)
		}
	case "!!float":
		n.Kind = KindFloat
	default:
		n.Kind = KindString
		n.Tag = customTag(y)
	}
	return n, nil
}

func (c *converter) mapping(y *yaml.Node) (*Node, error) {
	out := &Node{Kind: KindMapping, Range: c.rng(y), Tag: customTag(y)}
	var explicit []*Pair
	var merged []*Node

	for i := 0; i+1 < len(y.Content); i += 2 {
		k, v := y.Content[i], y.Content[i+1]
		if k.Kind == yaml.AliasNode && k.Alias != nil {
			k = k.Alias
		}
		if k.Kind != yaml.ScalarNode {
			return nil, cierr.At(cierr.KindSyntax, c.rng(k), "%s: mapping keys must be scalars", c.filename)
		}

		val, err := c.convert(v)
		if err != nil {
			return nil, err
		}
		if k.ShortTag() == "!!merge" {
			switch {
			case val.IsMapping():
				merged = append(merged, val)
			case val.IsSequence():
				for _, item := range val.Items {
					if !item.IsMapping() {
						return nil, cierr.At(cierr.KindSyntax, item.Range, "%s: merge key values must be hashes", c.filename)
					}
					merged = append(merged, item)
				}
			default:
				return nil, cierr.At(cierr.KindSyntax, val.Range, "%s: merge key values must be hashes", c.filename)
			}
			continue
		}
		explicit = append(explicit, &Pair{Key: k.Value, KeyRange: c.rng(k), Value: val})
	}

	// Earlier merge sources win over later ones; explicit keys win over all.
	for _, m := range merged {
		for _, p := range m.Pairs {
			if !out.Has(p.Key) {
				out.Pairs = append(out.Pairs, &Pair{Key: p.Key, KeyRange: p.KeyRange, Value: p.Value})
			}
		}
	}
	for _, p := range explicit {
		if existing := out.Pair(p.Key); existing != nil {
			existing.Value = p.Value
			existing.KeyRange = p.KeyRange
			continue
		}
		out.Pairs = append(out.Pairs, p)
	}
	return out, nil
}

// Marshal renders n as YAML.
func Marshal(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(n)); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return buf.Bytes(), nil
}

func toYAML(n *Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	switch n.Kind {
	case KindMapping:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: n.Tag}
		for _, p := range n.Pairs {
			y.Content = append(y.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key},
				toYAML(p.Value))
		}
		return y
	case KindSequence:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: n.Tag}
		if n.Tag != "" {
			y.Style = yaml.FlowStyle
		}
		for _, item := range n.Items {
			y.Content = append(y.Content, toYAML(item))
		}
		return y
	case KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: n.Value}
	case KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: n.Value}
	case KindFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: n.Value}
	default:
		tag := "!!str"
		if n.Tag != "" {
			tag = n.Tag
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: n.Value}
	}
}
