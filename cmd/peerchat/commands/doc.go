// Package commands implements the peerchat CLI.
//
// The commands are a thin shell: line parsing and output formatting only.
// Everything stateful lives in the session orchestrator.
package commands
