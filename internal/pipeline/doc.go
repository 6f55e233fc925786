// Package pipeline compiles a project's configuration into a build graph.
//
// A Compiler runs a fixed chain of steps: rate limiting, loading the root
// file, includes, references, the typed model, workflow rules, populating
// job instances, needs, limits, partitioning and realizing. Each step takes
// the State the previous one returned. Structural problems stop the chain;
// logical problems are collected per job, the affected instances are left
// out of the graph and the result is marked failed.
//
// Every message is masked before it leaves the package, and dry runs and
// lint runs produce the same messages as a real compilation.
package pipeline
