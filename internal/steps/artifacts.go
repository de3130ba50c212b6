package steps

import (
	"context"
	"fmt"
	"strings"

	"buildit/internal/config"
	"buildit/internal/logging"
	"buildit/internal/mcp"
	"buildit/internal/render"
	"buildit/internal/shell"
)

// MCPConfigWrite merges the ibah server entry into the MCP config
// file. Satisfied when the on-disk entry already matches.
type MCPConfigWrite struct {
	Store *mcp.Store
	Ibah  config.IbahConfig
}

func (s *MCPConfigWrite) ID() string      { return "render:mcp-config" }
func (s *MCPConfigWrite) Summary() string { return "Write MCP config for " + s.Ibah.Tool }

func (s *MCPConfigWrite) server() mcp.ServerConfig {
	return mcp.ServerConfig{
		Command: s.Ibah.Command,
		Args:    s.Ibah.Args,
		Env: map[string]string{
			"IBAH_SERVER_URL": s.Ibah.BaseURL,
			"IBAH_API_KEY":    s.Ibah.APIKey,
		},
	}
}

func (s *MCPConfigWrite) Check(context.Context) (bool, error) {
	cf, err := s.Store.Load()
	if err != nil {
		return false, err
	}
	existing, ok := cf.MCPServers[s.Ibah.Tool]
	return ok && mcp.ServerEqual(existing, s.server()), nil
}

func (s *MCPConfigWrite) Run(context.Context) error {
	log := logging.Get(logging.CategoryMCP)

	changed, err := s.Store.Upsert(s.Ibah.Tool, s.server())
	if err != nil {
		return err
	}
	if changed {
		log.Info("wrote %s entry to %s", s.Ibah.Tool, s.Store.Path())
	}
	return nil
}

// SettingsWrite renders the dev-tool settings file enabling the
// integration.
type SettingsWrite struct {
	Path string
	Tool string
}

func (s *SettingsWrite) ID() string      { return "render:settings" }
func (s *SettingsWrite) Summary() string { return "Enable " + s.Tool + " integration in settings" }

func (s *SettingsWrite) Check(context.Context) (bool, error) {
	content, err := render.Settings(s.Tool)
	if err != nil {
		return false, err
	}
	return render.UpToDate(s.Path, content), nil
}

func (s *SettingsWrite) Run(context.Context) error {
	content, err := render.Settings(s.Tool)
	if err != nil {
		return err
	}
	res, err := render.WriteFile(s.Path, content, 0644)
	if err != nil {
		return err
	}
	if res.Changed {
		logging.Get(logging.CategoryRender).Info("wrote %s", s.Path)
	}
	return nil
}

// WSLConfWrite renders /etc/wsl.conf.
type WSLConfWrite struct {
	Path string
	Cfg  *config.Config
}

func (s *WSLConfWrite) ID() string      { return "render:wsl-conf" }
func (s *WSLConfWrite) Summary() string { return "Write " + s.Path }

func (s *WSLConfWrite) Check(context.Context) (bool, error) {
	return render.UpToDate(s.Path, render.WSLConf(s.Cfg.WSL)), nil
}

func (s *WSLConfWrite) Run(context.Context) error {
	res, err := render.WriteFile(s.Path, render.WSLConf(s.Cfg.WSL), 0644)
	if err != nil {
		return err
	}
	if res.Changed {
		logging.Get(logging.CategoryRender).Info("wrote %s", s.Path)
	}
	return nil
}

// WSLConfigWrite renders the Windows-side .wslconfig. It reads the
// networking mode from the shared manifest at run time so the
// auto-detect step can downgrade it first.
type WSLConfigWrite struct {
	Path string
	Cfg  *config.Config
}

func (s *WSLConfigWrite) ID() string      { return "render:wslconfig" }
func (s *WSLConfigWrite) Summary() string { return "Write " + s.Path }

func (s *WSLConfigWrite) Check(context.Context) (bool, error) {
	return render.UpToDate(s.Path, render.WSLConfig(s.Cfg.WSL)), nil
}

func (s *WSLConfigWrite) Run(context.Context) error {
	res, err := render.WriteFile(s.Path, render.WSLConfig(s.Cfg.WSL), 0644)
	if err != nil {
		return err
	}
	if res.Changed {
		logging.Get(logging.CategoryRender).Info("wrote %s", s.Path)
	}
	return nil
}

// NetworkingAutoDetect probes whether the host supports mirrored
// networking and downgrades the manifest to NAT when it does not.
// Always optional: a failed probe is a warning, never a halt.
type NetworkingAutoDetect struct {
	Runner shell.Runner
	Cfg    *config.Config
}

func (s *NetworkingAutoDetect) ID() string      { return "wsl:networking-detect" }
func (s *NetworkingAutoDetect) Summary() string { return "Detect supported WSL networking mode" }
func (s *NetworkingAutoDetect) Optional() bool  { return true }

func (s *NetworkingAutoDetect) Check(context.Context) (bool, error) {
	// Nothing to detect when mirrored mode is not requested.
	return s.Cfg.WSL.NetworkingMode != "mirrored", nil
}

func (s *NetworkingAutoDetect) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryRender)

	if !s.Runner.Installed("wslinfo") {
		return fmt.Errorf("wslinfo not available, cannot verify mirrored networking support")
	}

	res, err := s.Runner.Run(ctx, shell.Command{
		Binary:    "wslinfo",
		Arguments: []string{"--networking-mode"},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("wslinfo failed: %s", res.Stderr)
	}

	mode := strings.TrimSpace(res.Stdout)
	if mode != "mirrored" {
		log.Warn("host reports %q networking, falling back to nat", mode)
		s.Cfg.WSL.NetworkingMode = "nat"
	}
	return nil
}
