package steps

import (
	"buildit/internal/config"
	"buildit/internal/mcp"
	"buildit/internal/shell"
	"buildit/internal/step"
)

// Plan assembles the ordered step list for a full setup run. The order
// mirrors the original bring-up: packages first, then tools, then
// repositories, then the container stack, then the generated
// configuration artifacts.
func Plan(cfg *config.Config, runner shell.Runner) []step.Step {
	var plan []step.Step

	// System packages. The index refresh is satisfied only when every
	// package the run would install, optional ones included, is
	// already present; otherwise installs could hit a stale index.
	guard := append([]string{}, cfg.Packages.Apt...)
	guard = append(guard, cfg.Packages.Optional...)
	plan = append(plan, &AptUpdate{Runner: runner, Packages: guard})
	for _, pkg := range cfg.Packages.Apt {
		plan = append(plan, &AptInstall{Runner: runner, Pkg: pkg})
	}
	for _, pkg := range cfg.Packages.Optional {
		plan = append(plan, &AptInstall{Runner: runner, Pkg: pkg, Opt: true})
	}

	// Non-apt tools
	for _, tool := range cfg.Packages.Tools {
		plan = append(plan, &ToolInstall{
			Runner:    runner,
			Binary:    tool.Binary,
			Installer: tool.Installer,
			Opt:       tool.Optional,
		})
	}

	// Repositories
	for _, repo := range cfg.Repos {
		plan = append(plan, &RepoClone{Runner: runner, Spec: repo, Dest: cfg.RepoDest(repo)})
	}

	// Database container stack
	if cfg.Containers.ComposeFile != "" {
		plan = append(plan,
			&ComposeUp{Runner: runner, Cfg: cfg.Containers},
			&DatabaseReady{
				Runner:   runner,
				Cfg:      cfg.Containers,
				Interval: cfg.ReadyInterval(),
				Attempts: cfg.Containers.ReadyAttempts,
			},
		)
	}

	// Generated artifacts
	if cfg.Ibah.Enabled {
		plan = append(plan,
			&MCPConfigWrite{Store: mcp.NewStore(cfg.Artifacts.MCPConfigPath), Ibah: cfg.Ibah},
			&SettingsWrite{Path: cfg.Artifacts.SettingsPath, Tool: cfg.Ibah.Tool},
		)
	}
	if cfg.Artifacts.WSLConfPath != "" {
		plan = append(plan, &WSLConfWrite{Path: cfg.Artifacts.WSLConfPath, Cfg: cfg})
	}
	if cfg.Artifacts.WSLConfigPath != "" {
		if cfg.WSL.AutoDetect {
			plan = append(plan, &NetworkingAutoDetect{Runner: runner, Cfg: cfg})
		}
		plan = append(plan, &WSLConfigWrite{Path: cfg.Artifacts.WSLConfigPath, Cfg: cfg})
	}

	return plan
}
