// Package config holds the machine manifest for the buildit bootstrapper.
// The manifest describes everything `buildit setup` provisions: apt
// packages, cloned repositories, the database container stack, the ibah
// knowledge-service integration, and the WSL host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all buildit bootstrap configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace is the root directory repositories are cloned under.
	Workspace string `yaml:"workspace"`

	// Packages to install via apt
	Packages PackagesConfig `yaml:"packages"`

	// Repositories to clone
	Repos []RepoSpec `yaml:"repos"`

	// Database container stack
	Containers ContainersConfig `yaml:"containers"`

	// ibah knowledge-service integration
	Ibah IbahConfig `yaml:"ibah"`

	// WSL host configuration
	WSL WSLConfig `yaml:"wsl"`

	// Command execution tuning
	Exec ExecConfig `yaml:"exec,omitempty"`

	// Paths of the generated artifacts
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PackagesConfig lists system packages and tools to install.
type PackagesConfig struct {
	// Apt packages required for the dev machine. Failure to install
	// any of these halts the run.
	Apt []string `yaml:"apt"`

	// Optional apt packages (editor plugins and similar). Failures are
	// downgraded to warnings.
	Optional []string `yaml:"optional"`

	// Tools installed outside apt, guarded by a binary presence check.
	Tools []ToolSpec `yaml:"tools"`
}

// ToolSpec describes a non-apt tool install.
type ToolSpec struct {
	// Binary is the executable whose presence marks the tool installed.
	Binary string `yaml:"binary"`

	// Installer is the command line that installs the tool.
	Installer []string `yaml:"installer"`

	// Optional downgrades install failure to a warning.
	Optional bool `yaml:"optional"`
}

// RepoSpec describes a repository to clone.
type RepoSpec struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Dest   string `yaml:"dest,omitempty"` // defaults to <workspace>/<name>
	Branch string `yaml:"branch,omitempty"`
}

// ContainersConfig configures the database container stack.
type ContainersConfig struct {
	ComposeFile     string `yaml:"compose_file"`
	Project         string `yaml:"project"`
	DatabaseService string `yaml:"database_service"`

	// Readiness polling for the database service
	ReadyInterval string `yaml:"ready_interval"` // e.g. "2s"
	ReadyAttempts int    `yaml:"ready_attempts"`
}

// IbahConfig configures the ibah knowledge-service MCP integration.
type IbahConfig struct {
	Enabled bool   `yaml:"enabled"`
	Tool    string `yaml:"tool"` // tool name written to the MCP config

	// Server the MCP command talks to
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Command and arguments launching the MCP stdio server
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Handshake timeout for doctor verification
	Timeout string `yaml:"timeout"`
}

// WSLConfig configures the generated WSL host files.
type WSLConfig struct {
	// .wslconfig ([wsl2] section on the Windows side)
	NetworkingMode string `yaml:"networking_mode"` // "mirrored" or "nat"
	DNSTunneling   bool   `yaml:"dns_tunneling"`
	Firewall       bool   `yaml:"firewall"`
	AutoProxy      bool   `yaml:"auto_proxy"`

	// AutoDetect probes whether the host supports mirrored networking
	// and falls back to NAT when it does not. Probe failure is a
	// warning, not a halt.
	AutoDetect bool `yaml:"auto_detect"`

	// /etc/wsl.conf (inside the distro)
	Systemd          bool   `yaml:"systemd"`
	AutomountRoot    string `yaml:"automount_root"`
	AutomountOptions string `yaml:"automount_options"`
}

// ExecConfig tunes command execution.
type ExecConfig struct {
	// Timeout bounds each provisioning command. Empty means 5m.
	Timeout string `yaml:"timeout,omitempty"`
}

// ArtifactsConfig holds the output paths of the generated files.
type ArtifactsConfig struct {
	MCPConfigPath string `yaml:"mcp_config_path"` // .mcp.json
	SettingsPath  string `yaml:"settings_path"`   // dev-tool settings
	WSLConfPath   string `yaml:"wsl_conf_path"`   // /etc/wsl.conf
	WSLConfigPath string `yaml:"wslconfig_path"`  // Windows-side .wslconfig
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	workspace := filepath.Join(home, "src")

	return &Config{
		Name:      "buildit",
		Version:   "0.1.0",
		Workspace: workspace,

		Packages: PackagesConfig{
			Apt: []string{
				"build-essential",
				"curl",
				"git",
				"jq",
				"unzip",
			},
			Optional: []string{},
			Tools: []ToolSpec{
				{Binary: "docker", Installer: []string{"sh", "-c", "curl -fsSL https://get.docker.com | sh"}},
				{Binary: "gh", Installer: []string{"apt-get", "install", "-y", "gh"}, Optional: true},
			},
		},

		Repos: []RepoSpec{
			{Name: "buildit", URL: "https://github.com/buildit/buildit.git"},
		},

		Containers: ContainersConfig{
			ComposeFile:     filepath.Join(workspace, "buildit", "docker-compose.yml"),
			Project:         "buildit",
			DatabaseService: "db",
			ReadyInterval:   "2s",
			ReadyAttempts:   30,
		},

		Ibah: IbahConfig{
			Enabled: true,
			Tool:    "ibah",
			BaseURL: "https://ibah.example.com",
			Command: "npx",
			Args:    []string{"-y", "@ibah/mcp-server"},
			Timeout: "15s",
		},

		WSL: WSLConfig{
			NetworkingMode:   "mirrored",
			DNSTunneling:     true,
			Firewall:         true,
			AutoProxy:        true,
			AutoDetect:       true,
			Systemd:          true,
			AutomountRoot:    "/mnt",
			AutomountOptions: "metadata,umask=22,fmask=11",
		},

		Artifacts: ArtifactsConfig{
			MCPConfigPath: filepath.Join(workspace, "buildit", ".mcp.json"),
			SettingsPath:  filepath.Join(workspace, "buildit", "settings.local.json"),
			WSLConfPath:   "/etc/wsl.conf",
			WSLConfigPath: windowsWSLConfigPath(),
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// windowsWSLConfigPath guesses the Windows-side .wslconfig location as
// seen from inside the distro. Empty when the Windows user profile is
// not mounted (non-WSL hosts).
func windowsWSLConfigPath() string {
	profile := os.Getenv("USERPROFILE")
	if profile == "" {
		return ""
	}
	return filepath.Join(wslifyPath(profile), ".wslconfig")
}

// wslifyPath converts a Windows path (C:\Users\x) to its /mnt mount.
func wslifyPath(p string) string {
	if len(p) < 2 || p[1] != ':' {
		return p
	}
	drive := strings.ToLower(p[:1])
	rest := strings.ReplaceAll(p[2:], `\`, "/")
	return "/mnt/" + drive + rest
}

// Load reads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile reads the manifest file without applying environment
// overrides. Mutating commands use it so override values never get
// baked into the saved file. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("IBAH_SERVER_URL"); url != "" {
		c.Ibah.BaseURL = url
	}
	if key := os.Getenv("IBAH_API_KEY"); key != "" {
		c.Ibah.APIKey = key
	}
	if ws := os.Getenv("BUILDIT_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if compose := os.Getenv("BUILDIT_COMPOSE_FILE"); compose != "" {
		c.Containers.ComposeFile = compose
	}
}

// stringFields maps yaml-style dotted keys to the string fields
// `config set` may assign.
func (c *Config) stringFields() map[string]*string {
	return map[string]*string{
		"name":                        &c.Name,
		"version":                     &c.Version,
		"workspace":                   &c.Workspace,
		"containers.compose_file":     &c.Containers.ComposeFile,
		"containers.project":          &c.Containers.Project,
		"containers.database_service": &c.Containers.DatabaseService,
		"containers.ready_interval":   &c.Containers.ReadyInterval,
		"ibah.tool":                   &c.Ibah.Tool,
		"ibah.base_url":               &c.Ibah.BaseURL,
		"ibah.api_key":                &c.Ibah.APIKey,
		"ibah.command":                &c.Ibah.Command,
		"ibah.timeout":                &c.Ibah.Timeout,
		"wsl.networking_mode":         &c.WSL.NetworkingMode,
		"wsl.automount_root":          &c.WSL.AutomountRoot,
		"wsl.automount_options":       &c.WSL.AutomountOptions,
		"exec.timeout":                &c.Exec.Timeout,
		"artifacts.mcp_config_path":   &c.Artifacts.MCPConfigPath,
		"artifacts.settings_path":     &c.Artifacts.SettingsPath,
		"artifacts.wsl_conf_path":     &c.Artifacts.WSLConfPath,
		"artifacts.wslconfig_path":    &c.Artifacts.WSLConfigPath,
		"logging.level":               &c.Logging.Level,
	}
}

// boolFields maps dotted keys to the boolean fields `config set` may
// assign.
func (c *Config) boolFields() map[string]*bool {
	return map[string]*bool{
		"ibah.enabled":       &c.Ibah.Enabled,
		"wsl.dns_tunneling":  &c.WSL.DNSTunneling,
		"wsl.firewall":       &c.WSL.Firewall,
		"wsl.auto_proxy":     &c.WSL.AutoProxy,
		"wsl.auto_detect":    &c.WSL.AutoDetect,
		"wsl.systemd":        &c.WSL.Systemd,
		"logging.debug_mode": &c.Logging.DebugMode,
	}
}

// Set assigns a manifest field addressed by its yaml-style dotted key,
// e.g. "wsl.networking_mode" or "ibah.base_url".
func (c *Config) Set(key, value string) error {
	if target, ok := c.stringFields()[key]; ok {
		*target = value
		return nil
	}
	if target, ok := c.boolFields()[key]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", key, value)
		}
		*target = b
		return nil
	}
	if key == "containers.ready_attempts" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s expects a number, got %q", key, value)
		}
		c.Containers.ReadyAttempts = n
		return nil
	}
	return fmt.Errorf("unknown manifest key %q (valid keys: %s)", key, strings.Join(c.SettableKeys(), ", "))
}

// SettableKeys returns the dotted keys `config set` accepts, sorted.
func (c *Config) SettableKeys() []string {
	keys := []string{"containers.ready_attempts"}
	for k := range c.stringFields() {
		keys = append(keys, k)
	}
	for k := range c.boolFields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReadyInterval returns the container readiness polling interval.
func (c *Config) ReadyInterval() time.Duration {
	d, err := time.ParseDuration(c.Containers.ReadyInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// CommandTimeout returns the per-command execution timeout.
func (c *Config) CommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exec.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// IbahTimeout returns the ibah handshake timeout.
func (c *Config) IbahTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ibah.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// RepoDest returns the destination directory of a repository.
func (c *Config) RepoDest(r RepoSpec) string {
	if r.Dest != "" {
		return r.Dest
	}
	return filepath.Join(c.Workspace, r.Name)
}

// ValidNetworkingModes lists the supported WSL networking modes.
var ValidNetworkingModes = []string{"mirrored", "nat"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace not configured")
	}

	validMode := false
	for _, m := range ValidNetworkingModes {
		if c.WSL.NetworkingMode == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return fmt.Errorf("invalid networking mode: %s (valid: %v)", c.WSL.NetworkingMode, ValidNetworkingModes)
	}

	if c.Ibah.Enabled {
		if c.Ibah.Tool == "" {
			return fmt.Errorf("ibah integration enabled but tool name not set")
		}
		if c.Ibah.Command == "" {
			return fmt.Errorf("ibah integration enabled but command not set")
		}
		if c.Ibah.BaseURL == "" {
			return fmt.Errorf("ibah integration enabled but base URL not set (set IBAH_SERVER_URL)")
		}
	}

	for _, r := range c.Repos {
		if r.Name == "" || r.URL == "" {
			return fmt.Errorf("repo entries require name and url")
		}
	}

	if c.Containers.ReadyAttempts < 0 {
		return fmt.Errorf("ready_attempts must be non-negative")
	}

	return nil
}

// HomeDir returns the directory holding the manifest, the run journal,
// and the log files. BUILDIT_HOME overrides ~/.buildit.
func HomeDir() string {
	if dir := os.Getenv("BUILDIT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".buildit"
	}
	return filepath.Join(home, ".buildit")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}
