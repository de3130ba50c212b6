package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout applies when a command specifies none.
const DefaultTimeout = 5 * time.Minute

// DirectRunner executes commands directly on the host using os/exec.
type DirectRunner struct {
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// NewDirectRunner creates a runner with the default timeout.
func NewDirectRunner(logger *zap.Logger) *DirectRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectRunner{
		defaultTimeout: DefaultTimeout,
		logger:         logger,
	}
}

// SetDefaultTimeout overrides the timeout used for commands that do
// not carry their own.
func (r *DirectRunner) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		r.defaultTimeout = d
	}
}

// Run executes a command directly on the host.
func (r *DirectRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = mergeEnvironment(cmd.Environment)

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr, combined bytes.Buffer
	execCmd.Stdout = newTeeWriter(&stdout, &combined)
	execCmd.Stderr = newTeeWriter(&stderr, &combined)

	result := &Result{
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	r.logger.Debug("executing command",
		zap.String("command", cmd.CommandString()),
		zap.String("dir", cmd.WorkingDirectory),
		zap.Duration("timeout", timeout))

	err := execCmd.Run()

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Combined = combined.String()

	if err == nil {
		result.Success = true
		result.ExitCode = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		result.Error = fmt.Sprintf("exit status %d", result.ExitCode)
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.Error = fmt.Sprintf("timed out after %s", timeout)
		}
		r.logger.Debug("command failed",
			zap.String("command", cmd.CommandString()),
			zap.Int("exit_code", result.ExitCode),
			zap.Bool("timed_out", result.TimedOut))
		return result, nil
	}

	// The command could not be started at all (binary missing,
	// permission denied, ...).
	return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
}

// Installed reports whether a binary is present on PATH.
func (r *DirectRunner) Installed(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// mergeEnvironment layers command variables over the process
// environment, later entries winning.
func mergeEnvironment(extra []string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	return append(os.Environ(), extra...)
}

// teeWriter duplicates writes into two buffers so stdout/stderr are
// captured both separately and interleaved.
type teeWriter struct {
	primary  *bytes.Buffer
	combined *bytes.Buffer
}

func newTeeWriter(primary, combined *bytes.Buffer) *teeWriter {
	return &teeWriter{primary: primary, combined: combined}
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.combined.Write(p)
	return w.primary.Write(p)
}
