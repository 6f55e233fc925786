package pipeline

import (
	"errors"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/mask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHash(t *testing.T) {
	rng := &hcl.Range{Filename: "ci.yml", Start: hcl.Pos{Line: 3, Column: 1}}

	a := newMessage("jobs:a config should be a hash", cierr.KindSyntax, rng)
	b := newMessage("jobs:a config should be a hash", cierr.KindSyntax, nil)
	c := newMessage("jobs:b config should be a hash", cierr.KindSyntax, rng)

	assert.NotZero(t, a.Hash)
	assert.Equal(t, a.Hash, b.Hash, "locations do not change the hash")
	assert.NotEqual(t, a.Hash, c.Hash)
	require.Len(t, a.Locations, 1)
	assert.Equal(t, "ci.yml:3:1", a.Locations[0].String())
}

func TestErrorMessage(t *testing.T) {
	m := mask.New("hunter2hunter2")

	msg := errorMessage(cierr.New(cierr.KindInclude, "Local file `hunter2hunter2.yml` does not exist!"), m)
	assert.Equal(t, "Local file `[MASKED].yml` does not exist!", msg.Content)
	assert.Equal(t, cierr.KindInclude, msg.Kind)

	msg = errorMessage(errors.New("storage unreachable"), m)
	assert.Equal(t, cierr.KindInternal, msg.Kind)
}

func TestGuessTier(t *testing.T) {
	testCases := map[string]string{
		"production":   "production",
		"prod-eu":      "production",
		"staging":      "staging",
		"pre-prod":     "staging",
		"test":         "testing",
		"qa/feature":   "testing",
		"review/fix-1": "development",
		"dev":          "development",
		"canary":       "other",
	}
	for name, want := range testCases {
		assert.Equal(t, want, guessTier(name), name)
	}
}
