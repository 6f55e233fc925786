// Package limits holds the global ceilings checked before a pipeline is
// created: the per-(project, user, commit) creation rate and the number of
// jobs active in a project.
//
// Both counters are owned outside the compiler. The interfaces here are the
// boundary; the in-memory implementations serve the CLI and tests.
package limits
