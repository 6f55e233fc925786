// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// graph.Realizer.
//
// # Purpose
//
// The store stands in for the persistence collaborator in the CLI and in
// tests. Every realized graph is kept as its deterministic CBOR encoding, so
// what a caller reads back is exactly what a real backend would have
// received, and byte equality of two entries means the graphs are equal.
//
// # Concurrency Model
//
// Entries are independent and written once, so the store keeps them in a
// sync.Map and hands out ids from an atomic counter.
//
// For pipelines that must survive the process, a different implementation
// backed by a database would be needed.
package inmemorystore
