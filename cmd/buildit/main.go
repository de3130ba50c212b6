// Package main implements the buildit CLI: an idempotent bootstrapper
// for the buildit development machine. It installs system packages,
// clones the project repositories, brings up the database container
// stack, and generates the MCP, settings, and WSL configuration files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"buildit/internal/config"
	"buildit/internal/logging"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "buildit",
	Short: "buildit - development machine bootstrapper",
	Long: `buildit provisions a WSL2 development machine for the buildit
project: system packages, repositories, the database container stack,
and the generated configuration artifacts (MCP config, dev-tool
settings, /etc/wsl.conf, .wslconfig).

Every step is guarded by a presence check, so running setup twice over
an already provisioned machine is a sequence of skips.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Close()
	},
}

// builditHome returns the directory holding the manifest, the run
// journal, and the log files (~/.buildit unless BUILDIT_HOME is set).
func builditHome() string {
	return config.HomeDir()
}

// loadManifest loads the manifest and starts the category file logger.
func loadManifest() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(builditHome(), logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("file logging unavailable", zap.Error(err))
	}

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "manifest path (default ~/.buildit/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
