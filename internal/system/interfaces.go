// Package system provides abstractions for OS process operations to enable testing.
package system

import (
	"context"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Execute runs a command and returns its combined output.
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)

	// ExecuteWithEnv runs a command with extra environment variables
	// (KEY=VALUE) appended to the current environment and returns its
	// standard output. Standard error is folded into the returned error.
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

	// StartBackground starts a long-lived command without waiting for it.
	StartBackground(name string, args ...string) (BackgroundProcess, error)
}

// BackgroundProcess is a command started with StartBackground.
type BackgroundProcess interface {
	// Pid returns the process identifier.
	Pid() int

	// Terminate stops the process and reaps it.
	Terminate() error
}

var defaultExecutor CommandExecutor = &osExecutor{}

// DefaultExecutor returns the default CommandExecutor implementation.
func DefaultExecutor() CommandExecutor {
	return defaultExecutor
}

// SetDefaultExecutor sets the default CommandExecutor (useful for testing).
func SetDefaultExecutor(exec CommandExecutor) {
	defaultExecutor = exec
}

// ResetDefaults restores the default OS implementation.
func ResetDefaults() {
	defaultExecutor = &osExecutor{}
}
