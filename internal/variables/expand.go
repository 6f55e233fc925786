package variables

import "strings"

// Lookup resolves a variable name to its value.
type Lookup func(key string) (string, bool)

// Expand replaces `$NAME` and `${NAME}` in s using lookup. Unknown names and
// malformed references are kept verbatim. Substituted values are not
// scanned again. The scan is a single pass over s.
func Expand(s string, lookup Lookup) string {
	if !strings.Contains(s, "$") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '$' || i+1 >= len(s) {
			sb.WriteByte(c)
			i++
			continue
		}

		if s[i+1] == '{' {
			end := i + 2
			for end < len(s) && isNameByte(s[end]) {
				end++
			}
			if end < len(s) && s[end] == '}' && end > i+2 {
				name := s[i+2 : end]
				if v, ok := lookup(name); ok {
					sb.WriteString(v)
				} else {
					sb.WriteString(s[i : end+1])
				}
				i = end + 1
				continue
			}
			sb.WriteByte(c)
			i++
			continue
		}

		end := i + 1
		for end < len(s) && isNameByte(s[end]) {
			end++
		}
		if end == i+1 {
			sb.WriteByte(c)
			i++
			continue
		}
		name := s[i+1 : end]
		if v, ok := lookup(name); ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(s[i:end])
		}
		i = end
	}
	return sb.String()
}

// References returns the variable names referenced by s, in order of first
// appearance.
func References(s string) []string {
	var names []string
	seen := map[string]bool{}
	Expand(s, func(key string) (string, bool) {
		if !seen[key] {
			seen[key] = true
			names = append(names, key)
		}
		return "", false
	})
	return names
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Expanded returns a copy of c with every non-raw value expanded against the
// collection itself. Two passes run in declaration order, each expanding the
// declared value: the first resolves references to earlier variables, the
// second also those to later ones. A variable never expands a reference to
// itself.
func (c *Collection) Expanded() *Collection {
	out := c.Clone()
	declared := c.All()
	for pass := 0; pass < 2; pass++ {
		for i := range out.items {
			v := &out.items[i]
			if v.Raw {
				continue
			}
			self := v.Key
			v.Value = Expand(declared[i].Value, func(key string) (string, bool) {
				if key == self {
					return "", false
				}
				return out.Value(key)
			})
		}
	}
	return out
}

// ExpandString expands s against c.
func (c *Collection) ExpandString(s string) string {
	return Expand(s, c.Value)
}

// ExpandExcept expands s against c but leaves references to names for which
// skip returns true untouched.
func (c *Collection) ExpandExcept(s string, skip func(key string) bool) string {
	return Expand(s, func(key string) (string, bool) {
		if skip(key) {
			return "", false
		}
		return c.Value(key)
	})
}
