package step

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes steps strictly in order. The first failure of a
// required step halts the run; optional-step failures are recorded as
// warnings and the run continues. Steps whose Check reports satisfied
// are skipped, which is what makes a second run over an already
// provisioned machine a sequence of skips.
type Runner struct {
	logger   *zap.Logger
	progress chan<- Progress
	dryRun   bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProgress attaches a progress channel. Sends never block; slow
// consumers lose updates rather than stalling provisioning.
func WithProgress(ch chan<- Progress) RunnerOption {
	return func(r *Runner) { r.progress = ch }
}

// WithDryRun makes the runner report what it would do without calling
// Run on any step. Checks still execute.
func WithDryRun(dry bool) RunnerOption {
	return func(r *Runner) { r.dryRun = dry }
}

// NewRunner creates a step runner.
func NewRunner(logger *zap.Logger, options ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Execute runs the steps and returns the report. The returned error is
// non-nil only when a required step failed or the context was
// cancelled; the report is populated either way.
func (r *Runner) Execute(ctx context.Context, steps []Step) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]Result, 0, len(steps)),
	}

	var failure error

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			failure = err
			report.Failed = true
			break
		}

		r.send(Progress{StepID: s.ID(), Summary: s.Summary(), Status: StatusRunning, Index: i, Total: len(steps)})
		result := r.runStep(ctx, s)
		report.Results = append(report.Results, result)
		r.send(Progress{StepID: s.ID(), Summary: s.Summary(), Status: result.Status, Index: i, Total: len(steps), Err: result.Err})

		if result.Status == StatusFailed {
			failure = fmt.Errorf("step %s failed: %s", s.ID(), result.Err)
			report.Failed = true
			break
		}
	}

	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	return report, failure
}

// runStep drives one step through check and run.
func (r *Runner) runStep(ctx context.Context, s Step) Result {
	start := time.Now()
	result := Result{StepID: s.ID(), Summary: s.Summary()}

	satisfied, err := s.Check(ctx)
	if err != nil {
		// A failing check means we cannot prove the step is done;
		// fall through to Run.
		r.logger.Debug("step check errored",
			zap.String("step", s.ID()),
			zap.Error(err))
	}
	if satisfied {
		result.Status = StatusSkipped
		result.Duration = time.Since(start)
		r.logger.Info("step already satisfied", zap.String("step", s.ID()))
		return result
	}

	if r.dryRun {
		result.Status = StatusDone
		result.Duration = time.Since(start)
		r.logger.Info("dry-run: would apply step", zap.String("step", s.ID()))
		return result
	}

	r.logger.Info("applying step", zap.String("step", s.ID()), zap.String("summary", s.Summary()))

	if err := s.Run(ctx); err != nil {
		result.Err = err.Error()
		result.Duration = time.Since(start)
		if IsOptional(s) {
			result.Status = StatusWarned
			r.logger.Warn("optional step failed",
				zap.String("step", s.ID()),
				zap.Error(err))
		} else {
			result.Status = StatusFailed
			r.logger.Error("step failed",
				zap.String("step", s.ID()),
				zap.Error(err))
		}
		return result
	}

	result.Status = StatusDone
	result.Duration = time.Since(start)
	r.logger.Info("step applied",
		zap.String("step", s.ID()),
		zap.Duration("duration", result.Duration))
	return result
}

func (r *Runner) send(p Progress) {
	if r.progress == nil {
		return
	}
	select {
	case r.progress <- p:
	default:
	}
}
