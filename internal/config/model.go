package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/parallel"
	"github.com/specialistvlad/ciforge/internal/rules"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// Model is the typed form of one pipeline configuration.
type Model struct {
	// Stages always starts with .pre and ends with .post.
	Stages    []string
	Workflow  Workflow
	Variables []variables.Variable
	// Jobs are the visible jobs in declaration order.
	Jobs []*Job
}

// Job returns the job named name, or nil.
func (m *Model) Job(name string) *Job {
	for _, j := range m.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// StageIndex returns the position of stage, or -1.
func (m *Model) StageIndex(stage string) int {
	for i, s := range m.Stages {
		if s == stage {
			return i
		}
	}
	return -1
}

// Workflow holds the pipeline-level `workflow:` settings.
type Workflow struct {
	Name  string
	Rules []*rules.Rule
}

// Job is one visible job definition before it is multiplied into instances.
type Job struct {
	Name         string
	Stage        string
	Script       []string
	BeforeScript []string
	AfterScript  []string
	Rules        []*rules.Rule
	When         rules.When
	StartIn      string
	AllowFailure AllowFailure
	// Needs is nil when the job declares no `needs:`, and non-nil (possibly
	// empty) when it does.
	Needs []Need
	// Dependencies is nil when undeclared.
	Dependencies []string
	Variables    []variables.Variable
	// InheritVariables selects the global variables the job sees.
	InheritVariables Inherit
	Tags             []string
	Cache            []Cache
	Parallel         *parallel.Spec
	Environment      *Environment
	Trigger          *Trigger
	Interruptible    *bool
	Timeout          string
	Retry            *Retry
	Coverage         string
	ResourceGroup    string
	// Options holds the keys that are passed through to the job unchanged:
	// image, services, artifacts, run, inputs, id_tokens and hooks.
	Options *document.Node
	Range   hcl.Range
}

// HasNeeds reports whether the job declares `needs:`.
func (j *Job) HasNeeds() bool {
	return j.Needs != nil
}

// AllowFailure is the `allow_failure:` setting of a job.
type AllowFailure struct {
	Enabled   bool
	ExitCodes []int
}

// Need is one entry of a job's `needs:`.
type Need struct {
	Job       string
	Artifacts bool
	Optional  bool
	// Matrix selects instances of a parallel job.
	Matrix []parallel.Entry
	// Project, Ref and Pipeline make the need point outside this pipeline.
	Project  string
	Ref      string
	Pipeline string
	Range    hcl.Range
}

// CrossPipeline reports whether the need points at another pipeline.
func (n Need) CrossPipeline() bool {
	return n.Project != "" || n.Pipeline != ""
}

// Inherit is an `inherit:` selection: everything, nothing, or a list.
type Inherit struct {
	All  bool
	Keys []string
}

// Allows reports whether key is inherited.
func (i Inherit) Allows(key string) bool {
	if i.All {
		return true
	}
	for _, k := range i.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Cache is one `cache:` entry.
type Cache struct {
	Key string
	// KeyFiles and KeyPrefix come from the `key: {files, prefix}` form.
	KeyFiles     []string
	KeyPrefix    string
	Paths        []string
	Untracked    bool
	Unprotect    bool
	When         string
	Policy       string
	FallbackKeys []string
	Range        hcl.Range
}

// Environment is a job's deployment target.
type Environment struct {
	Name           string
	URL            string
	Action         string
	DeploymentTier string
	OnStop         string
	AutoStopIn     string
}

// Trigger starts a downstream pipeline instead of running a script.
type Trigger struct {
	Project  string
	Branch   string
	Strategy string
	// Include is the child pipeline configuration, for parent-child
	// pipelines.
	Include *document.Node
	// ForwardYAMLVariables and ForwardPipelineVariables control which
	// variables the downstream pipeline receives.
	ForwardYAMLVariables     bool
	ForwardPipelineVariables bool
}

// Retry is a job's `retry:` setting.
type Retry struct {
	Max  int
	When []string
}
