package rules

import (
	"context"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/glob"
	"github.com/specialistvlad/ciforge/internal/variables"
)

// DiffFunc returns the files changed by the triggering event, compared to
// compareTo when set. known is false when no diff is available, for example
// for a new branch; `changes` clauses then hold.
type DiffFunc func(compareTo string) (paths []string, known bool)

// Context is everything a rule can observe.
type Context struct {
	Variables variables.Lookup
	Globs     *glob.Cache
	Project   string
	Ref       string
	Diff      DiffFunc
}

func (ec Context) lookup() variables.Lookup {
	if ec.Variables == nil {
		return func(string) (string, bool) { return "", false }
	}
	return ec.Variables
}

// Matches reports whether every condition of r holds.
func Matches(ctx context.Context, r *Rule, ec Context) (bool, error) {
	lookup := ec.lookup()

	if r.If != nil {
		ok, err := r.If.Evaluate(lookup)
		if err != nil {
			return false, cierr.Wrap(cierr.KindRuleEvaluation, err, "rules:if %s", quote(r.If.Source()))
		}
		if !ok {
			return false, nil
		}
	}

	if r.Changes != nil {
		paths, known := []string(nil), false
		if ec.Diff != nil {
			paths, known = ec.Diff(variables.Expand(r.Changes.CompareTo, lookup))
		}
		if known && !glob.MatchAny(expandAll(r.Changes.Paths, lookup), paths) {
			return false, nil
		}
	}

	if r.Exists != nil {
		if ec.Globs == nil {
			return false, cierr.New(cierr.KindInternal, "rules:exists cannot be evaluated without a file listing")
		}
		project, ref := ec.Project, ec.Ref
		if r.Exists.Project != "" {
			project = variables.Expand(r.Exists.Project, lookup)
			ref = variables.Expand(r.Exists.Ref, lookup)
		}
		ok, err := ec.Globs.ExistsAny(ctx, project, ref, expandAll(r.Exists.Paths, lookup))
		if err != nil {
			return false, cierr.Wrap(cierr.KindInternal, err, "rules:exists")
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// FirstMatch returns the first rule whose conditions hold, or nil.
func FirstMatch(ctx context.Context, list []*Rule, ec Context) (*Rule, error) {
	for _, r := range list {
		ok, err := Matches(ctx, r, ec)
		if err != nil {
			return nil, err
		}
		if ok {
			return r, nil
		}
	}
	return nil, nil
}

// Outcome is the decision for one job or pipeline.
type Outcome struct {
	Included      bool
	When          When
	StartIn       string
	AllowFailure  *bool
	Interruptible *bool
	Variables     []variables.Variable
	// Rule is the clause that decided, nil without rules.
	Rule *Rule
}

// EvaluateJob decides whether a job is part of the pipeline. Without rules
// the job's own `when` applies. With rules, the first matching clause
// supplies `when` (falling back to the job's, then on_success); `never` or
// no match excludes the job.
func EvaluateJob(ctx context.Context, list []*Rule, jobWhen When, jobStartIn string, ec Context) (Outcome, error) {
	if jobWhen == "" {
		jobWhen = WhenOnSuccess
	}
	if len(list) == 0 {
		return Outcome{Included: jobWhen != WhenNever, When: jobWhen, StartIn: jobStartIn}, nil
	}

	r, err := FirstMatch(ctx, list, ec)
	if err != nil || r == nil {
		return Outcome{When: WhenNever}, err
	}

	out := Outcome{
		When:          jobWhen,
		AllowFailure:  r.AllowFailure,
		Interruptible: r.Interruptible,
		Variables:     r.Variables,
		Rule:          r,
	}
	if r.When != "" {
		out.When = r.When
	}
	if out.When == WhenDelayed {
		out.StartIn = r.StartIn
		if out.StartIn == "" {
			out.StartIn = jobStartIn
		}
	}
	out.Included = out.When != WhenNever
	return out, nil
}

// EvaluateWorkflow decides whether the pipeline runs. Without rules it
// always does; otherwise the first matching clause must not be `never`.
func EvaluateWorkflow(ctx context.Context, list []*Rule, ec Context) (Outcome, error) {
	if len(list) == 0 {
		return Outcome{Included: true, When: WhenAlways}, nil
	}
	r, err := FirstMatch(ctx, list, ec)
	if err != nil || r == nil {
		return Outcome{When: WhenNever}, err
	}
	w := r.When
	if w == "" {
		w = WhenAlways
	}
	return Outcome{Included: w != WhenNever, When: w, Variables: r.Variables, Rule: r}, nil
}

// EvaluateInclude decides whether an include is fetched.
func EvaluateInclude(ctx context.Context, list []*Rule, ec Context) (bool, error) {
	out, err := EvaluateWorkflow(ctx, list, ec)
	return out.Included, err
}

func expandAll(list []string, lookup variables.Lookup) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = variables.Expand(s, lookup)
	}
	return out
}
