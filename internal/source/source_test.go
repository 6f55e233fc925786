package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMux(t *testing.T) {
	project := ReaderFunc(func(_ context.Context, req Request) ([]byte, error) {
		return []byte("project:" + req.Path), nil
	})
	remote := ReaderFunc(func(_ context.Context, req Request) ([]byte, error) {
		return nil, ErrNotFound
	})

	m := NewMux().Handle(project, KindLocal, KindProject).Handle(remote, KindRemote)
	assert.Equal(t, []Kind{KindLocal, KindProject, KindRemote}, m.Kinds())

	data, err := m.Read(context.Background(), Request{Kind: KindComponent, Path: "templates/a.yml"})
	require.NoError(t, err)
	assert.Equal(t, "project:templates/a.yml", string(data))

	_, err = m.Read(context.Background(), Request{Kind: KindRemote, URL: "https://x/a.yml"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = m.Read(context.Background(), Request{Kind: KindTemplate, Path: "Go.gitlab-ci.yml"})
	assert.ErrorContains(t, err, "no reader configured for template includes")
}

func TestRequestString(t *testing.T) {
	assert.Equal(t, "remote:https://x/a.yml", Request{Kind: KindRemote, URL: "https://x/a.yml"}.String())
	assert.Equal(t, "project:g/p@main:a.yml", Request{Kind: KindProject, Project: "g/p", Ref: "main", Path: "a.yml"}.String())
	assert.Equal(t, "template:Go.gitlab-ci.yml", Request{Kind: KindTemplate, Path: "Go.gitlab-ci.yml"}.String())
}
