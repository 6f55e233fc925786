// Package needs turns the `needs:` and `dependencies:` of the jobs that
// survived rule evaluation into edges between concrete job instances, and
// validates them against stage order.
//
// Problems found here are logical graph errors: they are attached to the
// instance that declared the need, so the assembler can drop that instance
// while its siblings still compile.
package needs
