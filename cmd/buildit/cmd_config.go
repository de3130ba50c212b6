// Package main: manifest management commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"buildit/internal/config"
)

// configCmd manages the machine manifest
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the machine manifest",
}

// configInitCmd writes the default manifest
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default manifest",
	RunE:  runConfigInit,
}

// configShowCmd prints the effective manifest
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective manifest (with env overrides applied)",
	RunE:  runConfigShow,
}

// configSetCmd assigns a single manifest field
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a manifest field by its yaml key (e.g. wsl.networking_mode nat)",
	Long: "Sets one manifest field and saves the file. Settable keys:\n  " +
		strings.Join(config.DefaultConfig().SettableKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// configValidateCmd validates the manifest
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the manifest",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)
}

func manifestPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := manifestPath()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("manifest already exists at %s", path)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("Wrote default manifest to %s\n", path)
	fmt.Println("Edit it, set IBAH_SERVER_URL and IBAH_API_KEY, then run 'buildit setup'.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}

	// The API key stays out of terminal scrollback.
	if cfg.Ibah.APIKey != "" {
		cfg.Ibah.APIKey = "********"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := manifestPath()
	key, value := args[0], args[1]

	// Read the file itself, not the env-overridden view, so override
	// values never get baked into the saved manifest.
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	shown := value
	if strings.Contains(key, "api_key") {
		shown = "********"
	}
	fmt.Printf("Set %s = %s in %s\n", key, shown, path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("manifest invalid: %w", err)
	}
	fmt.Println("Manifest is valid.")
	return nil
}
