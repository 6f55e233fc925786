// internal/jobname/types.go
package jobname

// Name is the structured form of a job instance name.
type Name struct {
	Base string
	// Index and Total are set for `parallel: N` instances, 1-based.
	Index int
	Total int
	// Values holds the matrix combination in axis declaration order.
	Values []string
}

// Plain returns the name of a job that is not multiplied.
func Plain(base string) Name {
	return Name{Base: base}
}

// Parallel returns the name of the i-th of n numeric instances.
func Parallel(base string, i, n int) Name {
	return Name{Base: base, Index: i, Total: n}
}

// Matrix returns the name of a matrix instance.
func Matrix(base string, values []string) Name {
	return Name{Base: base, Values: append([]string(nil), values...)}
}

// IsParallel reports whether the name carries an `i/N` suffix.
func (n Name) IsParallel() bool {
	return n.Total > 0
}

// IsMatrix reports whether the name carries a matrix combination.
func (n Name) IsMatrix() bool {
	return n.Values != nil
}
