// Package mask redacts known secret values from text.
package mask

import (
	"sort"
	"strings"
)

// Redacted replaces every masked value.
const Redacted = "[MASKED]"

// MinLength is the shortest value that is considered for masking. Shorter
// values would redact unrelated text.
const MinLength = 8

// Masker replaces known secret values in strings. The zero value masks
// nothing. A Masker is safe for concurrent use once built.
type Masker struct {
	replacer *strings.Replacer
}

// New builds a Masker for the given secrets. Values shorter than MinLength
// and duplicates are skipped. Longer secrets take priority so that a secret
// containing another is redacted as a whole.
func New(secrets ...string) *Masker {
	seen := make(map[string]struct{}, len(secrets))
	var values []string
	for _, s := range secrets {
		if len(s) < MinLength {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}
	if len(values) == 0 {
		return &Masker{}
	}
	sort.SliceStable(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	pairs := make([]string, 0, len(values)*2)
	for _, v := range values {
		pairs = append(pairs, v, Redacted)
	}
	return &Masker{replacer: strings.NewReplacer(pairs...)}
}

// Mask returns s with every secret replaced by Redacted.
func (m *Masker) Mask(s string) string {
	if m == nil || m.replacer == nil {
		return s
	}
	return m.replacer.Replace(s)
}

// Empty reports whether the Masker has no secrets.
func (m *Masker) Empty() bool {
	return m == nil || m.replacer == nil
}
