// internal/jobname/doc.go

/*
Package jobname provides a structured representation for the names of
multiplied job instances.

A job definition expands into one or more instances. A plain job keeps its
name, e.g. `rspec`. A job with `parallel: N` yields `rspec 1/3`, `rspec 2/3`,
... and a job with `parallel: matrix` yields one instance per combination,
named `deploy: [aws, production]` with values in first-declared-axis order.

This package centralizes formatting and parsing of those names so that the
expander, the needs resolver and the assembler agree on one canonical form.
*/
package jobname
