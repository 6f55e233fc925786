package variables

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	vars := NewCollection(
		Variable{Key: "A", Value: "alpha"},
		Variable{Key: "B", Value: "beta"},
	)

	testCases := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "$A", want: "alpha"},
		{in: "${A}-${B}", want: "alpha-beta"},
		{in: "$A$B", want: "alphabeta"},
		{in: "$UNKNOWN and ${UNKNOWN}", want: "$UNKNOWN and ${UNKNOWN}"},
		{in: "cost: $5", want: "cost: $5"},
		{in: "${A", want: "${A"},
		{in: "${}", want: "${}"},
		{in: "trailing $", want: "trailing $"},
		{in: "$$A", want: "$alpha"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, vars.ExpandString(tc.in))
		})
	}
}

func TestExpandIsLinear(t *testing.T) {
	in := strings.Repeat("${", 200000)
	out := Expand(in, func(string) (string, bool) { return "x", true })
	assert.Equal(t, in, out)
}

func TestReferences(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, References("$A ${B} $A"))
}

func TestExpanded(t *testing.T) {
	t.Run("earlier and later references", func(t *testing.T) {
		c := NewCollection(
			Variable{Key: "BASE", Value: "/opt"},
			Variable{Key: "BIN", Value: "$BASE/bin"},
			Variable{Key: "FULL", Value: "$BIN:$LATER"},
			Variable{Key: "LATER", Value: "later"},
		).Expanded()

		assert.Equal(t, "/opt/bin", c.Map()["BIN"])
		assert.Equal(t, "/opt/bin:later", c.Map()["FULL"])
	})

	t.Run("raw variables are kept verbatim", func(t *testing.T) {
		c := NewCollection(
			Variable{Key: "X", Value: "secret"},
			Variable{Key: "RAW", Value: "$X", Raw: true},
			Variable{Key: "USES_RAW", Value: "value=$RAW"},
		).Expanded()

		assert.Equal(t, "$X", c.Map()["RAW"])
		assert.Equal(t, "value=$X", c.Map()["USES_RAW"], "a raw value is not re-expanded where referenced")
	})

	t.Run("self reference stays verbatim", func(t *testing.T) {
		c := NewCollection(Variable{Key: "PATH", Value: "$PATH:/bin"}).Expanded()
		assert.Equal(t, "$PATH:/bin", c.Map()["PATH"])
	})

	t.Run("original collection is untouched", func(t *testing.T) {
		c := NewCollection(Variable{Key: "A", Value: "a"}, Variable{Key: "B", Value: "$A"})
		_ = c.Expanded()
		v, _ := c.Value("B")
		assert.Equal(t, "$A", v)
	})
}

func TestCollectionSetMovesToEnd(t *testing.T) {
	c := NewCollection(
		Variable{Key: "A", Value: "1"},
		Variable{Key: "B", Value: "2"},
		Variable{Key: "A", Value: "3"},
	)
	all := c.All()
	assert.Equal(t, "B", all[0].Key)
	assert.Equal(t, "A", all[1].Key)
	assert.Equal(t, "3", all[1].Value)
	v, ok := c.Get("B")
	assert.True(t, ok)
	assert.Equal(t, "2", v.Value)
	assert.Equal(t, []string{"A", "B"}, c.Keys())
}
