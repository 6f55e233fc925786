package variables

import "sort"

// Source is the scope a variable was declared in. Later sources take
// precedence over earlier ones.
type Source int

const (
	SourceGroup Source = iota
	SourceProject
	SourcePipeline
	SourceYAML
	SourceJob
	SourceRule
	SourceMatrix
	SourcePredefined
)

func (s Source) String() string {
	switch s {
	case SourceGroup:
		return "group"
	case SourceProject:
		return "project"
	case SourcePipeline:
		return "pipeline"
	case SourceYAML:
		return "yaml"
	case SourceJob:
		return "job"
	case SourceRule:
		return "rule"
	case SourceMatrix:
		return "matrix"
	case SourcePredefined:
		return "predefined"
	default:
		return "unknown"
	}
}

// Variable is one CI variable.
type Variable struct {
	Key   string
	Value string
	// Raw variables are never expanded.
	Raw    bool
	Masked bool
	File   bool
	// EnvironmentScope limits group and project variables to matching
	// environments. Empty and "*" match every job.
	EnvironmentScope string
	Source           Source
}

// Collection is an ordered set of variables keyed by name. Setting an
// existing key replaces it and moves it to the end, so the order reflects
// the scope that won.
type Collection struct {
	items []Variable
	index map[string]int
}

// NewCollection returns a Collection holding vars in order.
func NewCollection(vars ...Variable) *Collection {
	c := &Collection{index: make(map[string]int, len(vars))}
	for _, v := range vars {
		c.Set(v)
	}
	return c
}

// Set adds v, replacing any variable with the same key.
func (c *Collection) Set(v Variable) {
	if i, ok := c.index[v.Key]; ok {
		c.items = append(c.items[:i], c.items[i+1:]...)
		for j := i; j < len(c.items); j++ {
			c.index[c.items[j].Key] = j
		}
	}
	c.index[v.Key] = len(c.items)
	c.items = append(c.items, v)
}

// Concat sets every variable of vars in order.
func (c *Collection) Concat(vars []Variable) *Collection {
	for _, v := range vars {
		c.Set(v)
	}
	return c
}

// Get returns the variable for key.
func (c *Collection) Get(key string) (Variable, bool) {
	if c == nil {
		return Variable{}, false
	}
	i, ok := c.index[key]
	if !ok {
		return Variable{}, false
	}
	return c.items[i], true
}

// Value returns the value for key.
func (c *Collection) Value(key string) (string, bool) {
	v, ok := c.Get(key)
	return v.Value, ok
}

// Lookup is Value as a function value.
func (c *Collection) Lookup() Lookup {
	return c.Value
}

// All returns the variables in order.
func (c *Collection) All() []Variable {
	if c == nil {
		return nil
	}
	return append([]Variable(nil), c.items...)
}

// Len returns the number of variables.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Clone returns an independent copy.
func (c *Collection) Clone() *Collection {
	return NewCollection(c.All()...)
}

// Map returns key/value pairs.
func (c *Collection) Map() map[string]string {
	m := make(map[string]string, c.Len())
	for _, v := range c.All() {
		m[v.Key] = v.Value
	}
	return m
}

// Keys returns the sorted variable names.
func (c *Collection) Keys() []string {
	keys := make([]string, 0, c.Len())
	for _, v := range c.All() {
		keys = append(keys, v.Key)
	}
	sort.Strings(keys)
	return keys
}

// Secrets returns the values of masked variables.
func (c *Collection) Secrets() []string {
	var out []string
	for _, v := range c.All() {
		if v.Masked && v.Value != "" {
			out = append(out, v.Value)
		}
	}
	return out
}
