package variables

import "strings"

// ScopeMatches reports whether an environment scope applies to environment.
// `*` matches any run of characters. A job without an environment only sees
// unscoped variables.
func ScopeMatches(scope, environment string) bool {
	if scope == "" || scope == "*" {
		return true
	}
	if environment == "" {
		return false
	}
	return wildcardMatch(scope, environment)
}

// scopeSpecificity ranks scopes: an exact name beats any pattern, and a
// pattern with more literal characters beats a shorter one.
func scopeSpecificity(scope string) int {
	if scope == "" || scope == "*" {
		return 0
	}
	if !strings.Contains(scope, "*") {
		return 1 << 30
	}
	return len(strings.ReplaceAll(scope, "*", ""))
}

// wildcardMatch is a greedy matcher with single-star backtracking, linear
// in practice and never exponential.
func wildcardMatch(pattern, s string) bool {
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, i
			p++
		case p < len(pattern) && pattern[p] == s[i]:
			p++
			i++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// ScopedTo keeps the variables visible to environment. When several share a
// key, the most specific scope wins; equal specificity keeps the later one.
// The result follows the declaration order of the winners.
func ScopedTo(vars []Variable, environment string) []Variable {
	best := make(map[string]int, len(vars))
	for i, v := range vars {
		if !ScopeMatches(v.EnvironmentScope, environment) {
			continue
		}
		j, ok := best[v.Key]
		if !ok || scopeSpecificity(v.EnvironmentScope) >= scopeSpecificity(vars[j].EnvironmentScope) {
			best[v.Key] = i
		}
	}

	out := make([]Variable, 0, len(best))
	for i, v := range vars {
		if j, ok := best[v.Key]; ok && j == i {
			out = append(out, v)
		}
	}
	return out
}

// Chain holds the pipeline-wide scopes.
type Chain struct {
	Group    []Variable
	Project  []Variable
	Pipeline []Variable
	// YAML holds the global `variables:` a job inherits.
	YAML []Variable
}

// JobContext holds the job-specific scopes.
type JobContext struct {
	Environment string
	Job         []Variable
	Rule        []Variable
	Matrix      []Variable
	Predefined  []Variable
}

// Merge combines the chain and the job scopes without expanding them.
func Merge(chain Chain, job JobContext) *Collection {
	c := NewCollection()
	c.Concat(ScopedTo(chain.Group, job.Environment))
	c.Concat(ScopedTo(chain.Project, job.Environment))
	c.Concat(chain.Pipeline)
	c.Concat(chain.YAML)
	c.Concat(job.Job)
	c.Concat(job.Rule)
	c.Concat(job.Matrix)
	c.Concat(job.Predefined)
	return c
}

// Resolve merges and expands the variables of one job.
func Resolve(chain Chain, job JobContext) *Collection {
	return Merge(chain, job).Expanded()
}
