package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"buildit/internal/config"
	"buildit/internal/logging"
	"buildit/internal/shell"
)

// ComposeUp starts the database container stack, guarded by the
// service already running.
type ComposeUp struct {
	Runner shell.Runner
	Cfg    config.ContainersConfig
}

func (s *ComposeUp) ID() string      { return "container:up" }
func (s *ComposeUp) Summary() string { return "Start " + s.Cfg.Project + " container stack" }

func (s *ComposeUp) Check(ctx context.Context) (bool, error) {
	res, err := s.Runner.Run(ctx, shell.Command{
		Binary: "docker",
		Arguments: []string{
			"compose", "-f", s.Cfg.ComposeFile, "-p", s.Cfg.Project,
			"ps", "--status", "running", "--services",
		},
		Timeout: 15 * time.Second,
	})
	if err != nil || !res.Success {
		return false, err
	}
	for _, svc := range strings.Fields(res.Stdout) {
		if svc == s.Cfg.DatabaseService {
			return true, nil
		}
	}
	return false, nil
}

func (s *ComposeUp) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryContainer)
	log.Info("starting stack %s from %s", s.Cfg.Project, s.Cfg.ComposeFile)

	res, err := s.Runner.Run(ctx, shell.Command{
		Binary: "docker",
		Arguments: []string{
			"compose", "-f", s.Cfg.ComposeFile, "-p", s.Cfg.Project, "up", "-d",
		},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("docker compose up failed: %s", res.Stderr)
	}
	return nil
}

// DatabaseReady polls the database service until it accepts
// connections: a fixed-interval loop with a capped attempt count, the
// engineered form of the original script's wait loop.
type DatabaseReady struct {
	Runner   shell.Runner
	Cfg      config.ContainersConfig
	Interval time.Duration
	Attempts int
}

func (s *DatabaseReady) ID() string { return "container:db-ready" }
func (s *DatabaseReady) Summary() string {
	return "Wait for " + s.Cfg.DatabaseService + " to accept connections"
}

func (s *DatabaseReady) Check(ctx context.Context) (bool, error) {
	return s.probe(ctx), nil
}

func (s *DatabaseReady) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryContainer)

	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 30
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.probe(ctx) {
			log.Info("database ready after %d attempts", i)
			return nil
		}
		log.Debug("database not ready (attempt %d/%d)", i, attempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("database %s not ready after %d attempts", s.Cfg.DatabaseService, attempts)
}

func (s *DatabaseReady) probe(ctx context.Context) bool {
	res, err := s.Runner.Run(ctx, shell.Command{
		Binary: "docker",
		Arguments: []string{
			"compose", "-f", s.Cfg.ComposeFile, "-p", s.Cfg.Project,
			"exec", "-T", s.Cfg.DatabaseService, "pg_isready",
		},
		Timeout: 10 * time.Second,
	})
	return err == nil && res.Success
}
