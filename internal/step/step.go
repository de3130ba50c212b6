// Package step implements the sequential provisioning engine. A setup
// run is an ordered list of steps; each step knows how to detect that
// it is already satisfied (skip), how to apply itself, and whether its
// failure should halt the run or merely warn.
package step

import (
	"context"
	"time"
)

// Step is a single provisioning action.
type Step interface {
	// ID identifies the step in reports, logs, and the run journal.
	ID() string

	// Summary is the human-readable one-liner shown while running.
	Summary() string

	// Check reports whether the step is already satisfied. Satisfied
	// steps are skipped, never re-applied. A Check error is treated as
	// "not satisfied" so Run gets a chance to fix the host.
	Check(ctx context.Context) (bool, error)

	// Run applies the step.
	Run(ctx context.Context) error
}

// Optional marks steps whose failure is downgraded to a warning
// instead of halting the run (editor plugins, networking auto-detect).
type Optional interface {
	Optional() bool
}

// Status is the lifecycle state of a step within a run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"    // Run applied successfully
	StatusSkipped Status = "skipped" // Check reported already satisfied
	StatusWarned  Status = "warned"  // Optional step failed
	StatusFailed  Status = "failed"  // Required step failed, run halted
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusSkipped, StatusWarned, StatusFailed:
		return true
	}
	return false
}

// Result records the outcome of a single step.
type Result struct {
	StepID   string        `json:"step_id"`
	Summary  string        `json:"summary"`
	Status   Status        `json:"status"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of a full run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Results    []Result      `json:"results"`
	Failed     bool          `json:"failed"`
}

// Warnings returns the results of optional steps that failed.
func (r *Report) Warnings() []Result {
	var warned []Result
	for _, res := range r.Results {
		if res.Status == StatusWarned {
			warned = append(warned, res)
		}
	}
	return warned
}

// Counts returns totals per terminal status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Progress is emitted over the runner's progress channel as steps
// advance.
type Progress struct {
	StepID  string
	Summary string
	Status  Status
	Index   int // 0-based position in the run
	Total   int
	Err     string
}

// IsOptional reports whether a step opts into warning-only failures.
func IsOptional(s Step) bool {
	if o, ok := s.(Optional); ok {
		return o.Optional()
	}
	return false
}
