package pipeline

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/mask"
)

// Status is the outcome of a compilation.
type Status string

const (
	StatusCreated Status = "created_successfully"
	StatusFailed  Status = "failed"
)

// FailureReason explains a failed compilation.
type FailureReason string

const (
	ReasonConfigError           FailureReason = "config_error"
	ReasonActivityLimitExceeded FailureReason = "activity_limit_exceeded"
	ReasonOther                 FailureReason = "other"
)

// Location points at the source of a message.
type Location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

// Message is one error or warning of a compilation.
type Message struct {
	Content   string     `json:"content" yaml:"content"`
	Kind      cierr.Kind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Locations []Location `json:"locations,omitempty" yaml:"locations,omitempty" hash:"ignore"`
	// Hash identifies the message by its content and kind.
	Hash uint64 `json:"hash" yaml:"hash" hash:"ignore"`
}

func newMessage(content string, kind cierr.Kind, rng *hcl.Range) Message {
	m := Message{Content: content, Kind: kind}
	if rng != nil {
		m.Locations = []Location{{File: rng.Filename, Line: rng.Start.Line, Column: rng.Start.Column}}
	}
	h, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err == nil {
		m.Hash = h
	}
	return m
}

// errorMessage converts err into a masked message.
func errorMessage(err error, m *mask.Masker) Message {
	var ce *cierr.Error
	if errors.As(err, &ce) {
		return newMessage(m.Mask(err.Error()), ce.Kind, ce.Location)
	}
	return newMessage(m.Mask(err.Error()), cierr.KindInternal, nil)
}

// Result is what Compile returns. Graph is set whenever the configuration
// could be assembled, even when the compilation failed, so callers can
// inspect it. It is only realized on success.
type Result struct {
	Status        Status        `json:"status" yaml:"status"`
	FailureReason FailureReason `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	Errors        []Message     `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings      []Message     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Graph         *graph.Graph  `json:"graph,omitempty" yaml:"graph,omitempty"`
	// PipelineID is the id the realizer returned, empty for dry runs.
	PipelineID string `json:"pipeline_id,omitempty" yaml:"pipeline_id,omitempty"`
	// Document is the merged configuration, kept for lint runs.
	Document *document.Node `json:"-" yaml:"-"`
}

// Success reports whether the pipeline was compiled without errors.
func (r *Result) Success() bool {
	return r.Status == StatusCreated
}

// ErrorContents returns the text of every error.
func (r *Result) ErrorContents() []string {
	return contents(r.Errors)
}

// WarningContents returns the text of every warning.
func (r *Result) WarningContents() []string {
	return contents(r.Warnings)
}

func contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// String renders a location as file:line:column.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}
