package config

import (
	"context"

	"github.com/specialistvlad/ciforge/internal/document"
)

// Loader builds a Model from a resolved document.
type Loader interface {
	Load(ctx context.Context, doc *document.Node) (*Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, doc *document.Node) (*Model, error)

func (f LoaderFunc) Load(ctx context.Context, doc *document.Node) (*Model, error) {
	return f(ctx, doc)
}

// DefaultLoader builds models with Build.
var DefaultLoader Loader = LoaderFunc(func(ctx context.Context, doc *document.Node) (*Model, error) {
	return Build(ctx, doc)
})
