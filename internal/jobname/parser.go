// internal/jobname/parser.go
package jobname

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// parallelRegex matches the `name i/N` suffix of a numeric instance.
var parallelRegex = regexp.MustCompile(`^(.+) ([1-9][0-9]*)/([1-9][0-9]*)$`)

// Parse recovers the structured form of an instance name. Names that carry
// no recognizable suffix are plain.
func Parse(raw string) (Name, error) {
	if strings.TrimSpace(raw) == "" {
		return Name{}, fmt.Errorf("job name cannot be empty")
	}

	if strings.HasSuffix(raw, "]") {
		if i := strings.LastIndex(raw, ": ["); i > 0 {
			inner := raw[i+3 : len(raw)-1]
			values := []string{}
			if inner != "" {
				values = strings.Split(inner, ", ")
			}
			return Matrix(raw[:i], values), nil
		}
	}

	if m := parallelRegex.FindStringSubmatch(raw); m != nil {
		index, err := strconv.Atoi(m[2])
		if err != nil {
			return Name{}, fmt.Errorf("internal error parsing index: %w", err)
		}
		total, err := strconv.Atoi(m[3])
		if err != nil {
			return Name{}, fmt.Errorf("internal error parsing total: %w", err)
		}
		if index > total {
			return Plain(raw), nil
		}
		return Parallel(m[1], index, total), nil
	}

	return Plain(raw), nil
}
