// Package main: the setup command runs the full provisioning plan.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"buildit/internal/shell"
	"buildit/internal/state"
	"buildit/internal/step"
	"buildit/internal/steps"
)

var (
	setupDryRun bool
	setupSkip   []string
	setupYes    bool
)

// setupCmd provisions the machine
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the development machine",
	Long: `Runs the full provisioning plan: apt packages, tools,
repository clones, the database container stack, and the generated
configuration artifacts.

Steps already satisfied are skipped. A required step failure halts the
run; optional steps (editor plugins, WSL networking auto-detect) only
warn. Every run is recorded in the journal shown by 'buildit status'.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupDryRun, "dry-run", false, "report the plan without applying anything")
	setupCmd.Flags().StringSliceVar(&setupSkip, "skip", nil, "step IDs or prefixes to leave out (e.g. apt:, container:up)")
	setupCmd.Flags().BoolVarP(&setupYes, "yes", "y", false, "do not ask for confirmation")
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := shell.NewDirectRunner(logger)
	plan := filterPlan(steps.Plan(cfg, runner), setupSkip)

	fmt.Printf("Provisioning plan (%d steps):\n", len(plan))
	for _, s := range plan {
		fmt.Printf("  • %-24s %s\n", s.ID(), s.Summary())
	}
	fmt.Println()

	if !setupYes && !setupDryRun {
		fmt.Print("Proceed? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	progress := make(chan step.Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			printProgress(p)
		}
	}()

	runner.SetDefaultTimeout(cfg.CommandTimeout())
	engine := step.NewRunner(logger, step.WithProgress(progress), step.WithDryRun(setupDryRun))

	report, runErr := engine.Execute(ctx, plan)
	close(progress)
	<-done

	recordRun(report)
	printSummary(report)

	if runErr != nil {
		return fmt.Errorf("setup halted: %w", runErr)
	}
	return nil
}

// filterPlan drops steps matching any --skip ID or prefix.
func filterPlan(plan []step.Step, skip []string) []step.Step {
	if len(skip) == 0 {
		return plan
	}
	var kept []step.Step
	for _, s := range plan {
		if !skipped(s.ID(), skip) {
			kept = append(kept, s)
		}
	}
	return kept
}

func skipped(id string, skip []string) bool {
	for _, pattern := range skip {
		if id == pattern || strings.HasPrefix(id, pattern) {
			return true
		}
	}
	return false
}

func printProgress(p step.Progress) {
	switch p.Status {
	case step.StatusRunning:
		fmt.Printf("[%d/%d] %s...\n", p.Index+1, p.Total, p.Summary)
	case step.StatusDone:
		fmt.Printf("      ✓ done\n")
	case step.StatusSkipped:
		fmt.Printf("      - already satisfied\n")
	case step.StatusWarned:
		fmt.Printf("      ⚠ %s\n", p.Err)
	case step.StatusFailed:
		fmt.Printf("      ✗ %s\n", p.Err)
	}
}

// recordRun journals the run; journal trouble never fails setup.
func recordRun(report *step.Report) {
	store, err := state.NewStore(builditHome())
	if err != nil {
		logger.Warn("run journal unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.RecordRun(report, setupDryRun); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func printSummary(report *step.Report) {
	counts := report.Counts()

	fmt.Println("\n" + strings.Repeat("─", 60))
	if report.Failed {
		fmt.Println("✗ SETUP HALTED")
	} else if setupDryRun {
		fmt.Println("DRY RUN COMPLETE")
	} else {
		fmt.Println("✓ SETUP COMPLETE")
	}
	fmt.Printf("  applied: %d  skipped: %d  warned: %d  failed: %d\n",
		counts[step.StatusDone], counts[step.StatusSkipped],
		counts[step.StatusWarned], counts[step.StatusFailed])
	fmt.Printf("  duration: %.1fs  run: %s\n", report.Duration.Seconds(), report.RunID)

	if warnings := report.Warnings(); len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  ⚠ %s: %s\n", w.StepID, w.Err)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
}
