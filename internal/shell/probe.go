package shell

import (
	"context"
	"strings"
	"time"
)

// probeTimeout bounds the quick availability checks.
const probeTimeout = 5 * time.Second

// DpkgInstalled reports whether an apt package is installed, via
// `dpkg -s` status output.
func DpkgInstalled(ctx context.Context, r Runner, pkg string) bool {
	res, err := r.Run(ctx, Command{
		Binary:    "dpkg",
		Arguments: []string{"-s", pkg},
		Timeout:   probeTimeout,
	})
	if err != nil {
		return false
	}
	return res.Success && strings.Contains(res.Stdout, "Status: install ok installed")
}

// DockerAvailable reports whether the docker daemon is reachable, not
// merely whether the binary exists.
func DockerAvailable(ctx context.Context, r Runner) bool {
	if !r.Installed("docker") {
		return false
	}
	res, err := r.Run(ctx, Command{
		Binary:    "docker",
		Arguments: []string{"version", "--format", "{{.Server.Version}}"},
		Timeout:   probeTimeout,
	})
	return err == nil && res.Success
}

// InsideWSL reports whether the process runs inside a WSL distro.
// WSL kernels advertise themselves in the osrelease string.
func InsideWSL(ctx context.Context, r Runner) bool {
	res, err := r.Run(ctx, Command{
		Binary:    "uname",
		Arguments: []string{"-r"},
		Timeout:   probeTimeout,
	})
	if err != nil || !res.Success {
		return false
	}
	release := strings.ToLower(res.Stdout)
	return strings.Contains(release, "microsoft") || strings.Contains(release, "wsl")
}
