package cierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := New(KindInclude, "Local file `%s` does not exist!", "a.yml")
	wrapped := fmt.Errorf("resolving: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindInclude, kind)
	assert.True(t, Is(wrapped, KindInclude))

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestAt(t *testing.T) {
	rng := hcl.Range{Filename: ".ci.yml", Start: hcl.Pos{Line: 3, Column: 1}}
	err := At(KindSyntax, rng, "bad")
	require.NotNil(t, err.Location)
	assert.Equal(t, 3, err.Location.Start.Line)

	err = At(KindSyntax, hcl.Range{}, "bad")
	assert.Nil(t, err.Location)
}

func TestWrapKeepsKind(t *testing.T) {
	inner := New(KindInterpolation, "unknown input name provided: `x`")
	err := Wrap(KindInclude, inner, "component `c`")
	assert.Equal(t, KindInterpolation, err.Kind)
	assert.Equal(t, "component `c`: unknown input name provided: `x`", err.Error())

	err = Wrap(KindInternal, errors.New("boom"), "reading")
	assert.Equal(t, KindInternal, err.Kind)
	assert.ErrorContains(t, err, "reading: boom")
}

func TestFromDiagnostics(t *testing.T) {
	rng := hcl.Range{Filename: "x.yml", Start: hcl.Pos{Line: 1, Column: 1}}
	diags := hcl.Diagnostics{
		{Severity: hcl.DiagError, Summary: "Invalid key", Detail: "jobs:a config contains unknown keys: foo", Subject: &rng},
		{Severity: hcl.DiagWarning, Summary: "ignored"},
	}
	errs := FromDiagnostics(KindSyntax, diags)
	require.Len(t, errs, 1)
	assert.Equal(t, "jobs:a config contains unknown keys: foo", errs[0].Error())
	assert.True(t, Is(errs[0], KindSyntax))
}

func TestListFlattenAndJoin(t *testing.T) {
	assert.Nil(t, Join(nil))

	one := New(KindSyntax, "one")
	assert.Same(t, one, Join([]error{one}))

	two := New(KindLogicalGraph, "two")
	nested := Join([]error{one, List{two}})
	flat := Flatten(nested)
	require.Len(t, flat, 2)
	assert.Equal(t, "one; two", nested.Error())
	assert.True(t, errors.Is(nested, two))
}
