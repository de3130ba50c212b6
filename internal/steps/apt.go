// Package steps defines the concrete provisioning steps a setup run
// executes: apt packages, tool installs, repository clones, the
// database container stack, and the generated configuration artifacts.
// Every step carries its own presence check so re-running setup over an
// already provisioned machine is a sequence of skips.
package steps

import (
	"context"
	"fmt"

	"buildit/internal/logging"
	"buildit/internal/shell"
)

// AptUpdate refreshes the package index. Satisfied when every package
// the run would install is already present, so fully provisioned
// machines skip the refresh entirely.
type AptUpdate struct {
	Runner   shell.Runner
	Packages []string
}

func (s *AptUpdate) ID() string      { return "apt:update" }
func (s *AptUpdate) Summary() string { return "Refresh apt package index" }

func (s *AptUpdate) Check(ctx context.Context) (bool, error) {
	for _, pkg := range s.Packages {
		if !shell.DpkgInstalled(ctx, s.Runner, pkg) {
			return false, nil
		}
	}
	return true, nil
}

func (s *AptUpdate) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryPkg)
	log.Info("running apt-get update")

	res, err := s.Runner.Run(ctx, shell.Command{
		Binary:    "sudo",
		Arguments: []string{"apt-get", "update", "-qq"},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("apt-get update failed: %s", res.Stderr)
	}
	return nil
}

// AptInstall installs a single apt package, guarded by dpkg status.
type AptInstall struct {
	Runner shell.Runner
	Pkg    string
	Opt    bool
}

func (s *AptInstall) ID() string      { return "apt:" + s.Pkg }
func (s *AptInstall) Summary() string { return "Install " + s.Pkg }
func (s *AptInstall) Optional() bool  { return s.Opt }

func (s *AptInstall) Check(ctx context.Context) (bool, error) {
	return shell.DpkgInstalled(ctx, s.Runner, s.Pkg), nil
}

func (s *AptInstall) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryPkg)
	log.Info("installing %s", s.Pkg)

	res, err := s.Runner.Run(ctx, shell.Command{
		Binary:      "sudo",
		Arguments:   []string{"apt-get", "install", "-y", "-qq", s.Pkg},
		Environment: []string{"DEBIAN_FRONTEND=noninteractive"},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("apt-get install %s failed: %s", s.Pkg, res.Stderr)
	}

	log.Info("installed %s", s.Pkg)
	return nil
}

// ToolInstall installs a non-apt tool via its installer command line,
// guarded by a binary presence check.
type ToolInstall struct {
	Runner    shell.Runner
	Binary    string
	Installer []string
	Opt       bool
}

func (s *ToolInstall) ID() string      { return "tool:" + s.Binary }
func (s *ToolInstall) Summary() string { return "Install " + s.Binary }
func (s *ToolInstall) Optional() bool  { return s.Opt }

func (s *ToolInstall) Check(context.Context) (bool, error) {
	return s.Runner.Installed(s.Binary), nil
}

func (s *ToolInstall) Run(ctx context.Context) error {
	if len(s.Installer) == 0 {
		return fmt.Errorf("no installer configured for %s", s.Binary)
	}

	log := logging.Get(logging.CategoryPkg)
	log.Info("installing %s via: %v", s.Binary, s.Installer)

	res, err := s.Runner.Run(ctx, shell.Command{
		Binary:    s.Installer[0],
		Arguments: s.Installer[1:],
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("installer for %s failed: %s", s.Binary, res.Stderr)
	}

	if !s.Runner.Installed(s.Binary) {
		return fmt.Errorf("installer for %s succeeded but binary still missing", s.Binary)
	}
	return nil
}
