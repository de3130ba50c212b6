package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"buildit/internal/config"
	"buildit/internal/logging"
	"buildit/internal/shell"
)

// RepoClone clones a repository, guarded by the presence of the
// destination working copy. An existing clone is left exactly as it
// is; setup never fetches or resets on top of local work.
type RepoClone struct {
	Runner shell.Runner
	Spec   config.RepoSpec
	Dest   string
}

func (s *RepoClone) ID() string      { return "repo:" + s.Spec.Name }
func (s *RepoClone) Summary() string { return "Clone " + s.Spec.Name }

func (s *RepoClone) Check(context.Context) (bool, error) {
	info, err := os.Stat(filepath.Join(s.Dest, ".git"))
	if err != nil {
		return false, nil
	}
	return info.IsDir(), nil
}

func (s *RepoClone) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryRepo)
	log.Info("cloning %s into %s", s.Spec.URL, s.Dest)

	if err := os.MkdirAll(filepath.Dir(s.Dest), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	args := []string{"clone"}
	if s.Spec.Branch != "" {
		args = append(args, "--branch", s.Spec.Branch)
	}
	args = append(args, s.Spec.URL, s.Dest)

	res, err := s.Runner.Run(ctx, shell.Command{Binary: "git", Arguments: args})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("git clone %s failed: %s", s.Spec.URL, res.Stderr)
	}

	log.Info("cloned %s", s.Spec.Name)
	return nil
}
