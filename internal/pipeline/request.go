package pipeline

import (
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// DefaultConfigPath is the root configuration file of a project.
const DefaultConfigPath = ".gitlab-ci.yml"

// Request describes the pipeline to compile.
type Request struct {
	// Project is the full path of the project the pipeline runs in.
	Project   string
	ProjectID int64
	// Ref is the branch or tag; SHA is the commit files are read at. When
	// SHA is empty, Ref is used.
	Ref           string
	SHA           string
	Tag           bool
	DefaultBranch string
	CommitMessage string
	// User creates the pipeline and is part of the rate limit key.
	User string
	// Source is the event that triggered the pipeline, e.g. push or web.
	Source string

	// ConfigPath is the root file, DefaultConfigPath when empty.
	ConfigPath string
	// Content replaces the root file when set.
	Content []byte
	// Inputs are given to the root file's `spec:inputs`.
	Inputs *document.Node

	GroupVariables   []variables.Variable
	ProjectVariables []variables.Variable
	// Variables are supplied for this run only.
	Variables []variables.Variable

	// Diff answers `changes:` rules. Without it they hold.
	Diff rules.DiffFunc

	PipelineID  int64
	PipelineIID int64
}

func (r Request) configPath() string {
	if r.ConfigPath == "" {
		return DefaultConfigPath
	}
	return r.ConfigPath
}

func (r Request) sha() string {
	if r.SHA == "" {
		return r.Ref
	}
	return r.SHA
}

// Options select how far a compilation goes.
type Options struct {
	// DryRun runs every step but never realizes the graph.
	DryRun bool
	// Lint is a dry run that also reports the merged document.
	Lint bool
}

func (o Options) realize() bool {
	return !o.DryRun && !o.Lint
}
