package mask

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	testCases := []struct {
		name    string
		secrets []string
		in      string
		want    string
	}{
		{
			name:    "replaces every occurrence",
			secrets: []string{"s3cr3t-token"},
			in:      "Local file `configs/s3cr3t-token.yml` for s3cr3t-token does not exist!",
			want:    "Local file `configs/[MASKED].yml` for [MASKED] does not exist!",
		},
		{
			name:    "short values are ignored",
			secrets: []string{"abc"},
			in:      "abc abc",
			want:    "abc abc",
		},
		{
			name:    "longest secret wins",
			secrets: []string{"password", "password-extended"},
			in:      "x password-extended y password",
			want:    "x [MASKED] y [MASKED]",
		},
		{
			name: "no secrets",
			in:   "unchanged",
			want: "unchanged",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(tc.secrets...)
			assert.Equal(t, tc.want, m.Mask(tc.in))
		})
	}
}

func TestMaskNil(t *testing.T) {
	var m *Masker
	assert.True(t, m.Empty())
	assert.Equal(t, "x", m.Mask("x"))
}

func TestMaskLargeInput(t *testing.T) {
	m := New("deadbeefcafe")
	in := strings.Repeat("a", 1<<20) + "deadbeefcafe"
	out := m.Mask(in)
	assert.True(t, strings.HasSuffix(out, Redacted))
	assert.Len(t, out, 1<<20+len(Redacted))
}
