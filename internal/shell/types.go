// Package shell is the execution layer of the bootstrapper. It is the
// only place that physically touches the host: package managers, git,
// docker, and the probes that decide whether a provisioning step is
// already satisfied.
package shell

import (
	"context"
	"time"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g. "apt-get", "git", "docker").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the runner's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (KEY=VALUE). Merged over the
	// process environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Timeout overrides the runner's default timeout when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// Result holds the outcome of a command execution.
type Result struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`
	Error    string `json:"error,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	TimedOut bool `json:"timed_out"`
}

// Runner is the interface for command execution. Steps depend on this
// interface so tests can substitute a fake host.
type Runner interface {
	// Run executes a command and returns a comprehensive result.
	// A non-zero exit code is reported in the result, not as an error;
	// the error return covers failures to execute at all.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// Installed reports whether a binary is present on PATH.
	Installed(binary string) bool
}
