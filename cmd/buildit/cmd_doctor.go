// Package main: the doctor command diagnoses the provisioned machine.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"buildit/internal/doctor"
	"buildit/internal/shell"
)

var doctorHandshake bool

// doctorCmd diagnoses the environment
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the provisioned environment",
	Long: `Checks tool presence, docker responsiveness, database
readiness, and drift of the generated configuration artifacts.

With --handshake, additionally launches the configured ibah MCP server
and performs the protocol handshake to prove the integration works end
to end.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorHandshake, "handshake", false, "verify the ibah MCP server via a live handshake")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := shell.NewDirectRunner(logger)
	results := doctor.New(cfg, runner).Run(ctx, doctor.Options{Handshake: doctorHandshake})

	fmt.Println("Environment diagnosis:")
	for _, r := range results {
		mark := "✓"
		if !r.OK {
			mark = "✗"
		}
		fmt.Printf("  %s %-16s %s\n", mark, r.Name, r.Detail)
	}

	if !doctor.Healthy(results) {
		return fmt.Errorf("environment has problems; run 'buildit setup' to repair")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}
