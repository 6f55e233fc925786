package pipeline

import (
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/glob"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/mask"
	"github.com/specialistvlad/ciforge/internal/needs"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// State is what flows between steps. Each step returns a new State built
// from the one it received.
type State struct {
	Request Request
	Options Options

	// Root is the parsed root file.
	Root *document.File
	// Document is the merged configuration after includes and, once the
	// references step ran, without `!reference` tags.
	Document *document.Node
	Files    []include.File

	Model *config.Model
	Chain variables.Chain
	// Predefined are the pipeline-wide CI_* variables.
	Predefined []variables.Variable
	Workflow   rules.Outcome

	// Jobs are the jobs rules kept, with their instances.
	Jobs []needs.Job
	// Instances are the populated instances by name.
	Instances map[string]*graph.Job
	Needs     *needs.Graph
	Graph     *graph.Graph

	Errors   []error
	Warnings []string

	PipelineID string

	run *run
}

// run holds what is cached for one compilation only.
type run struct {
	globs  *glob.Cache
	masker *mask.Masker
	// keys memoizes cache keys derived from files.
	keys map[string]string
}
