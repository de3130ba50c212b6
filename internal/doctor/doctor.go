// Package doctor diagnoses the provisioned environment: tool presence,
// docker responsiveness, database readiness, drift of the generated
// artifacts, and an optional end-to-end MCP handshake against the
// configured ibah server.
package doctor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"buildit/internal/config"
	"buildit/internal/logging"
	"buildit/internal/mcp"
	"buildit/internal/render"
	"buildit/internal/shell"
)

// CheckResult is the outcome of a single diagnostic check.
type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Options selects which checks run.
type Options struct {
	// Handshake launches the configured MCP server and performs the
	// initialize handshake. Off by default: it spawns a process.
	Handshake bool
}

// Doctor runs the diagnostic suite.
type Doctor struct {
	cfg    *config.Config
	runner shell.Runner
}

// New creates a doctor for the given manifest.
func New(cfg *config.Config, runner shell.Runner) *Doctor {
	return &Doctor{cfg: cfg, runner: runner}
}

// Run executes all checks concurrently and returns results in a fixed
// order. Checks never abort each other; a failing check is a result,
// not an error.
func (d *Doctor) Run(ctx context.Context, opts Options) []CheckResult {
	log := logging.Get(logging.CategoryDoctor)

	checks := d.buildChecks(opts)
	results := make([]CheckResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = c.run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.OK {
			log.Info("check %s: ok (%s)", r.Name, r.Detail)
		} else {
			log.Warn("check %s: FAILED (%s)", r.Name, r.Detail)
		}
	}
	return results
}

// Healthy reports whether every result passed.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

type check struct {
	name string
	fn   func(ctx context.Context) (bool, string)
}

func (c check) run(ctx context.Context) CheckResult {
	ok, detail := c.fn(ctx)
	return CheckResult{Name: c.name, OK: ok, Detail: detail}
}

func (d *Doctor) buildChecks(opts Options) []check {
	checks := []check{
		{name: "binaries", fn: d.checkBinaries},
		{name: "docker", fn: d.checkDocker},
		{name: "mcp-config", fn: d.checkMCPConfig},
		{name: "settings", fn: d.checkSettings},
		{name: "wsl-conf", fn: d.checkWSLConf},
	}

	if d.cfg.Artifacts.WSLConfigPath != "" {
		checks = append(checks, check{name: "wslconfig", fn: d.checkWSLConfig})
	}
	if d.cfg.Containers.ComposeFile != "" {
		checks = append(checks, check{name: "database", fn: d.checkDatabase})
	}
	if opts.Handshake && d.cfg.Ibah.Enabled {
		checks = append(checks, check{name: "ibah-handshake", fn: d.checkHandshake})
	}
	return checks
}

func (d *Doctor) checkBinaries(context.Context) (bool, string) {
	wanted := []string{"git", "curl"}
	for _, tool := range d.cfg.Packages.Tools {
		wanted = append(wanted, tool.Binary)
	}

	var missing []string
	for _, bin := range wanted {
		if !d.runner.Installed(bin) {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return false, "missing: " + strings.Join(missing, ", ")
	}
	return true, fmt.Sprintf("%d binaries present", len(wanted))
}

func (d *Doctor) checkDocker(ctx context.Context) (bool, string) {
	if !shell.DockerAvailable(ctx, d.runner) {
		return false, "docker daemon not reachable"
	}
	return true, "daemon responsive"
}

func (d *Doctor) checkDatabase(ctx context.Context) (bool, string) {
	res, err := d.runner.Run(ctx, shell.Command{
		Binary: "docker",
		Arguments: []string{
			"compose", "-f", d.cfg.Containers.ComposeFile, "-p", d.cfg.Containers.Project,
			"exec", "-T", d.cfg.Containers.DatabaseService, "pg_isready",
		},
	})
	if err != nil || !res.Success {
		return false, d.cfg.Containers.DatabaseService + " not accepting connections"
	}
	return true, "accepting connections"
}

func (d *Doctor) checkMCPConfig(context.Context) (bool, string) {
	if !d.cfg.Ibah.Enabled {
		return true, "integration disabled"
	}

	store := mcp.NewStore(d.cfg.Artifacts.MCPConfigPath)
	cf, err := store.Load()
	if err != nil {
		return false, err.Error()
	}

	entry, ok := cf.MCPServers[d.cfg.Ibah.Tool]
	if !ok {
		return false, d.cfg.Ibah.Tool + " entry missing"
	}
	if entry.Command != d.cfg.Ibah.Command {
		return false, "command drifted from manifest"
	}
	if entry.Env["IBAH_SERVER_URL"] != d.cfg.Ibah.BaseURL {
		return false, "server URL drifted from manifest"
	}
	return true, "entry matches manifest"
}

func (d *Doctor) checkSettings(context.Context) (bool, string) {
	if !d.cfg.Ibah.Enabled {
		return true, "integration disabled"
	}
	content, err := render.Settings(d.cfg.Ibah.Tool)
	if err != nil {
		return false, err.Error()
	}
	if !render.UpToDate(d.cfg.Artifacts.SettingsPath, content) {
		return false, "settings file missing or drifted"
	}
	return true, "up to date"
}

func (d *Doctor) checkWSLConf(context.Context) (bool, string) {
	if !render.UpToDate(d.cfg.Artifacts.WSLConfPath, render.WSLConf(d.cfg.WSL)) {
		return false, "wsl.conf missing or drifted"
	}
	return true, "up to date"
}

func (d *Doctor) checkWSLConfig(context.Context) (bool, string) {
	if !render.UpToDate(d.cfg.Artifacts.WSLConfigPath, render.WSLConfig(d.cfg.WSL)) {
		return false, ".wslconfig missing or drifted"
	}
	return true, "up to date"
}

func (d *Doctor) checkHandshake(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.IbahTimeout())
	defer cancel()

	server := mcp.ServerConfig{
		Command: d.cfg.Ibah.Command,
		Args:    d.cfg.Ibah.Args,
		Env: map[string]string{
			"IBAH_SERVER_URL": d.cfg.Ibah.BaseURL,
			"IBAH_API_KEY":    d.cfg.Ibah.APIKey,
		},
	}

	transport := mcp.NewStdioTransport(server, nil)
	defer transport.Close()

	if err := transport.Connect(ctx); err != nil {
		return false, err.Error()
	}
	result, err := transport.Initialize(ctx)
	if err != nil {
		return false, "handshake failed: " + err.Error()
	}
	return true, fmt.Sprintf("connected to %s %s", result.ServerInfo.Name, result.ServerInfo.Version)
}
