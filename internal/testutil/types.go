package testutil

import (
	"strings"

	"github.com/specialistvlad/ciforge/internal/pipeline"
	"github.com/specialistvlad/ciforge/internal/source/memory"
)

const (
	TestProject = "group/app"
	TestRef     = "main"
	TestHost    = "gitlab.example.com"
)

// Fixture describes one compilation under test.
type Fixture struct {
	// Files are written to TestProject at TestRef after Unindent.
	Files map[string]string
	// Repo is used instead of an empty repository when set, for example to
	// publish components or remote files.
	Repo            *memory.Repository
	Request         pipeline.Request
	Options         pipeline.Options
	CompilerOptions []pipeline.Option
}

// Unindent removes the indentation common to every non-blank line of s and
// a leading newline, so YAML can be written indented in Go source.
func Unindent(s string) string {
	s = strings.TrimPrefix(s, "\n")
	lines := strings.Split(s, "\n")
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= common {
			lines[i] = l[common:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
