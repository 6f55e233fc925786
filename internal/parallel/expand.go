package parallel

import (
	"github.com/specialistvlad/ciforge/internal/jobname"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// Binding is one axis value of a matrix instance.
type Binding struct {
	Key   string
	Value string
}

// Instance is one concrete copy of a job.
type Instance struct {
	Name jobname.Name
	// Index and Total are 1-based positions among the job's instances.
	Index int
	Total int
	// Combination is set for matrix instances, in axis declaration order.
	Combination []Binding
}

// Bindings returns the combination as a map.
func (i Instance) Bindings() map[string]string {
	if i.Combination == nil {
		return nil
	}
	m := make(map[string]string, len(i.Combination))
	for _, b := range i.Combination {
		m[b.Key] = b.Value
	}
	return m
}

// Variables returns the matrix variables of the instance.
func (i Instance) Variables() []variables.Variable {
	out := make([]variables.Variable, 0, len(i.Combination))
	for _, b := range i.Combination {
		out = append(out, variables.Variable{Key: b.Key, Value: b.Value, Source: variables.SourceMatrix})
	}
	return out
}

// Expand returns the instances of a job named base. A nil spec yields the
// job itself. Matrix entries are multiplied out within an entry and
// concatenated across entries; repeated combinations are kept.
func Expand(base string, s *Spec) []Instance {
	if s == nil {
		return []Instance{{Name: jobname.Plain(base), Index: 1, Total: 1}}
	}
	total := s.Total()
	out := make([]Instance, 0, total)
	if s.Count > 0 {
		for i := 1; i <= s.Count; i++ {
			out = append(out, Instance{Name: jobname.Parallel(base, i, s.Count), Index: i, Total: s.Count})
		}
		return out
	}

	for _, e := range s.Matrix {
		for _, combo := range combinations(e) {
			values := make([]string, len(combo))
			for i, b := range combo {
				values[i] = b.Value
			}
			out = append(out, Instance{
				Name:        jobname.Matrix(base, values),
				Index:       len(out) + 1,
				Total:       total,
				Combination: combo,
			})
		}
	}
	return out
}

// combinations returns the cartesian product of the entry's axes. The last
// axis varies fastest.
func combinations(e Entry) [][]Binding {
	out := [][]Binding{{}}
	for _, axis := range e {
		next := make([][]Binding, 0, len(out)*len(axis.Values))
		for _, prefix := range out {
			for _, v := range axis.Values {
				combo := make([]Binding, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, Binding{Key: axis.Name, Value: v}))
			}
		}
		out = next
	}
	return out
}
