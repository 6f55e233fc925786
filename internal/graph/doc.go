// Package graph defines the build graph: the final, persist-ready shape of
// one compiled pipeline.
//
// # Structure
//
// A Graph holds ordered stages, and each stage holds its job instances in
// declaration order. Instances carry everything a runner needs (scripts,
// resolved variables, tags, cache keys, options) plus their `needs:` edges
// by instance name. The graph is built once per compilation and never
// mutated afterwards.
//
// # Lifecycle
//
//  1. **Assembly:** the pipeline compiler fills the graph from the job
//     instances that survived rules, limits and needs validation.
//  2. **Partitioning:** one partition id is stamped on the graph, every
//     stage and every job.
//  3. **Realization:** a Realizer persists the graph. Lint and dry runs stop
//     before this step, so the graph is returned but never materialized.
//
// # Encoding
//
// Field tags serve both YAML output and the deterministic CBOR encoding
// used by realizers, so the same graph always produces the same bytes.
package graph
