// Package cli implements the ciforge command line. It binds flags, CIFORGE_*
// environment variables and an optional settings file into app.Settings,
// renders compilation results and maps failures to exit codes.
package cli
