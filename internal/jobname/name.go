// internal/jobname/name.go
package jobname

import (
	"slices"
	"strconv"
	"strings"
)

// String serializes the Name into its canonical form.
func (n Name) String() string {
	var sb strings.Builder
	sb.WriteString(n.Base)
	switch {
	case n.IsMatrix():
		sb.WriteString(": [")
		sb.WriteString(strings.Join(n.Values, ", "))
		sb.WriteRune(']')
	case n.IsParallel():
		sb.WriteRune(' ')
		sb.WriteString(strconv.Itoa(n.Index))
		sb.WriteRune('/')
		sb.WriteString(strconv.Itoa(n.Total))
	}
	return sb.String()
}

// Equal checks two names for equality.
func (n Name) Equal(other Name) bool {
	return n.Base == other.Base &&
		n.Index == other.Index &&
		n.Total == other.Total &&
		n.IsMatrix() == other.IsMatrix() &&
		slices.Equal(n.Values, other.Values)
}
