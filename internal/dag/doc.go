// Package dag provides the small directed graph used wherever the compiler
// has to reason about dependencies between named things: `!reference` targets,
// `extends` chains and job `needs`.
//
// An edge from A to B means that B depends on A. The graph reports cycles with
// the exact node path involved and can find the shortest cycle through a given
// node, which is what users see in circular reference errors.
package dag
