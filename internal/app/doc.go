// Package app wires the compiler to its collaborators from Settings. It
// owns logging setup and the readers a working copy is served through,
// decoupled from any specific entrypoint like the CLI.
package app
