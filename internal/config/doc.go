// Package config turns a fully resolved configuration document into the
// typed pipeline model.
//
// By the time a document reaches this package its includes are merged, its
// `$[[ ]]` blocks are substituted and its `!reference` tags are replaced.
// Build then applies `extends:` and `default:` inheritance, checks the shape
// of every job and returns a *Model whose jobs are immutable templates: the
// later stages multiply, filter and wire them, but never edit them.
//
// Structural problems are accumulated as hcl.Diagnostics and reported
// together as syntax errors, each prefixed with the path of the offending
// key, e.g. `jobs:rspec:tags config should be an array of strings`.
package config
