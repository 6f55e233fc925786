// Package cierr defines the error taxonomy shared by every compilation stage.
//
// Errors are classified by Kind rather than by Go type so that the assembler
// can decide, from a single value, whether a failure aborts the whole
// compilation or only drops one job from the graph.
package cierr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Kind classifies a compilation error.
type Kind string

const (
	KindSyntax         Kind = "syntax"
	KindInclude        Kind = "include"
	KindInterpolation  Kind = "interpolation"
	KindReferenceCycle Kind = "reference_cycle"
	KindRuleEvaluation Kind = "rule_evaluation"
	KindLogicalGraph   Kind = "logical_graph"
	KindLimitExceeded  Kind = "limit_exceeded"
	KindInternal       Kind = "internal"
)

// Error is a classified compilation error with an optional source location.
type Error struct {
	Kind     Kind
	Message  string
	Location *hcl.Range
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At creates an error of the given kind anchored at a source range.
func At(kind Kind, rng hcl.Range, format string, args ...any) *Error {
	e := New(kind, format, args...)
	if rng.Filename != "" || rng.Start.Line > 0 {
		r := rng
		e.Location = &r
	}
	return e
}

// Wrap classifies err. An err that is already an *Error keeps its kind and
// location unless it has none.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	var ce *Error
	if errors.As(err, &ce) {
		return &Error{Kind: ce.Kind, Message: msg + ": " + ce.Message, Location: ce.Location, Err: err}
	}
	return &Error{Kind: kind, Message: msg + ": " + err.Error(), Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFatal reports whether errors of this kind abort the whole compilation.
// Logical graph errors are collected per job instead.
func IsFatal(kind Kind) bool {
	return kind != KindLogicalGraph
}

// FromDiagnostics converts the error diagnostics in diags into errors of the
// given kind. A diagnostic whose Extra holds a Kind keeps that kind.
// Warnings are ignored.
func FromDiagnostics(kind Kind, diags hcl.Diagnostics) []error {
	var errs []error
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg = d.Detail
		}
		e := &Error{Kind: kind, Message: msg}
		if k, ok := d.Extra.(Kind); ok {
			e.Kind = k
		}
		if d.Subject != nil {
			r := *d.Subject
			e.Location = &r
		}
		errs = append(errs, e)
	}
	return errs
}

// List is an ordered collection of errors that is itself an error.
type List []error

func (l List) Error() string {
	msgs := make([]string, 0, len(l))
	for _, err := range l {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the members to errors.Is and errors.As.
func (l List) Unwrap() []error {
	return l
}

// Flatten returns the individual errors of err, expanding Lists.
func Flatten(err error) []error {
	if err == nil {
		return nil
	}
	if l, ok := err.(List); ok {
		var out []error
		for _, e := range l {
			out = append(out, Flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// Join returns nil for an empty slice, the only error for a single one, and
// a List otherwise.
func Join(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return List(errs)
	}
}
