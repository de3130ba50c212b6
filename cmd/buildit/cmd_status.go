// Package main: the status command reads the run journal.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"buildit/internal/state"
	"buildit/internal/step"
)

var statusRuns int

// statusCmd shows the last provisioning run
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last provisioning run",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 1, "number of recent runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := state.NewStore(builditHome())
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer store.Close()

	runs, err := store.Runs(statusRuns)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No provisioning runs recorded. Run 'buildit setup' first.")
		return nil
	}

	for i, run := range runs {
		if i > 0 {
			fmt.Println()
		}
		printRun(store, run)
	}
	return nil
}

func printRun(store *state.Store, run state.RunRecord) {
	verdict := "ok"
	if run.Failed {
		verdict = "FAILED"
	}
	if run.DryRun {
		verdict += " (dry-run)"
	}

	fmt.Printf("Run %s — %s\n", run.RunID, verdict)
	fmt.Printf("  started %s, took %.1fs\n",
		run.StartedAt.Format("2006-01-02 15:04:05"), run.Duration.Seconds())

	results, err := store.StepResults(run.RunID)
	if err != nil {
		fmt.Printf("  (step results unavailable: %v)\n", err)
		return
	}

	fmt.Println(strings.Repeat("─", 60))
	for _, res := range results {
		mark := statusMark(res.Status)
		line := fmt.Sprintf("  %s %-24s %s", mark, res.StepID, res.Status)
		if res.Err != "" {
			line += ": " + res.Err
		}
		fmt.Println(line)
	}
}

func statusMark(s step.Status) string {
	switch s {
	case step.StatusDone:
		return "✓"
	case step.StatusSkipped:
		return "-"
	case step.StatusWarned:
		return "⚠"
	case step.StatusFailed:
		return "✗"
	}
	return "?"
}
