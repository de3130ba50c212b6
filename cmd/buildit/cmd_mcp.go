// Package main: MCP artifact commands, for re-rendering or verifying
// the integration without a full setup run.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"buildit/internal/mcp"
	"buildit/internal/render"
	"buildit/internal/steps"
)

// mcpCmd manages the MCP integration artifacts
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the ibah MCP integration",
}

// mcpRenderCmd writes the MCP config and settings files
var mcpRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Write the MCP config and settings files",
	RunE:  runMCPRender,
}

// mcpCheckCmd verifies the configured server with a live handshake
var mcpCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured server with a live handshake",
	RunE:  runMCPCheck,
}

func init() {
	mcpCmd.AddCommand(mcpRenderCmd)
	mcpCmd.AddCommand(mcpCheckCmd)
}

func runMCPRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if !cfg.Ibah.Enabled {
		return fmt.Errorf("ibah integration is disabled in the manifest")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	ctx := context.Background()

	write := &steps.MCPConfigWrite{Store: mcp.NewStore(cfg.Artifacts.MCPConfigPath), Ibah: cfg.Ibah}
	if err := write.Run(ctx); err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", cfg.Artifacts.MCPConfigPath)

	content, err := render.Settings(cfg.Ibah.Tool)
	if err != nil {
		return err
	}
	if _, err := render.WriteFile(cfg.Artifacts.SettingsPath, content, 0644); err != nil {
		return err
	}
	fmt.Printf("✓ %s\n", cfg.Artifacts.SettingsPath)
	return nil
}

func runMCPCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadManifest()
	if err != nil {
		return err
	}
	if !cfg.Ibah.Enabled {
		return fmt.Errorf("ibah integration is disabled in the manifest")
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, cfg.IbahTimeout())
	defer timeout()

	server := mcp.ServerConfig{
		Command: cfg.Ibah.Command,
		Args:    cfg.Ibah.Args,
		Env: map[string]string{
			"IBAH_SERVER_URL": cfg.Ibah.BaseURL,
			"IBAH_API_KEY":    cfg.Ibah.APIKey,
		},
	}

	transport := mcp.NewStdioTransport(server, logger)
	defer transport.Close()

	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to launch server: %w", err)
	}
	result, err := transport.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	fmt.Printf("✓ connected to %s %s (protocol %s)\n",
		result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion)

	if err := transport.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	fmt.Println("✓ server responsive")
	return nil
}
