package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildit/internal/config"
	"buildit/internal/mcp"
	"buildit/internal/shell"
	"buildit/internal/step"
)

// fakeRunner is a scriptable host for step tests.
type fakeRunner struct {
	installed map[string]bool
	handler   func(cmd shell.Command) (*shell.Result, error)
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, cmd shell.Command) (*shell.Result, error) {
	f.calls = append(f.calls, cmd.CommandString())
	if f.handler != nil {
		return f.handler(cmd)
	}
	return &shell.Result{Success: true}, nil
}

func (f *fakeRunner) Installed(binary string) bool {
	return f.installed[binary]
}

func (f *fakeRunner) called(substr string) bool {
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func okResult(stdout string) *shell.Result {
	return &shell.Result{Success: true, ExitCode: 0, Stdout: stdout}
}

func failResult(stderr string) *shell.Result {
	return &shell.Result{Success: false, ExitCode: 1, Stderr: stderr}
}

func TestAptInstall_CheckUsesDpkg(t *testing.T) {
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		if cmd.Binary == "dpkg" {
			return okResult("Status: install ok installed"), nil
		}
		return okResult(""), nil
	}}

	s := &AptInstall{Runner: r, Pkg: "git"}
	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)
}

func TestAptInstall_RunInvokesAptGet(t *testing.T) {
	r := &fakeRunner{}
	s := &AptInstall{Runner: r, Pkg: "jq"}

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, r.called("apt-get install -y -qq jq"))
}

func TestAptInstall_RunSurfacesFailure(t *testing.T) {
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		return failResult("no candidate"), nil
	}}
	s := &AptInstall{Runner: r, Pkg: "ghost"}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidate")
}

func TestAptUpdate_SatisfiedWhenAllInstalled(t *testing.T) {
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		return okResult("Status: install ok installed"), nil
	}}
	s := &AptUpdate{Runner: r, Packages: []string{"git", "curl"}}

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)
}

func TestAptUpdate_GuardCoversOptionalPackages(t *testing.T) {
	// Required packages present, optional one missing: the refresh must
	// still run so the optional install does not hit a stale index.
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		if cmd.Binary == "dpkg" && cmd.Arguments[1] == "zsh" {
			return failResult("package 'zsh' is not installed"), nil
		}
		return okResult("Status: install ok installed"), nil
	}}

	cfg := config.DefaultConfig()
	cfg.Packages.Apt = []string{"git"}
	cfg.Packages.Optional = []string{"zsh"}
	cfg.Packages.Tools = nil

	update, ok := Plan(cfg, r)[0].(*AptUpdate)
	require.True(t, ok, "plan must start with the index refresh")

	satisfied, err := update.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestToolInstall_CheckAndVerify(t *testing.T) {
	r := &fakeRunner{installed: map[string]bool{"docker": true}}
	s := &ToolInstall{Runner: r, Binary: "docker", Installer: []string{"sh", "-c", "true"}}

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)

	// Installer ran but binary still missing: the step must fail.
	missing := &fakeRunner{installed: map[string]bool{}}
	bad := &ToolInstall{Runner: missing, Binary: "gh", Installer: []string{"true"}}
	err = bad.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still missing")
}

func TestRepoClone_CheckDetectsWorkingCopy(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "buildit")
	s := &RepoClone{
		Runner: &fakeRunner{},
		Spec:   config.RepoSpec{Name: "buildit", URL: "https://example.com/buildit.git"},
		Dest:   dest,
	}

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, os.MkdirAll(filepath.Join(dest, ".git"), 0755))
	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)
}

func TestRepoClone_RunPassesBranch(t *testing.T) {
	r := &fakeRunner{}
	s := &RepoClone{
		Runner: r,
		Spec:   config.RepoSpec{Name: "ibah", URL: "https://example.com/ibah.git", Branch: "main"},
		Dest:   filepath.Join(t.TempDir(), "ibah"),
	}

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, r.called("git clone --branch main https://example.com/ibah.git"))
}

func TestComposeUp_CheckParsesRunningServices(t *testing.T) {
	cfg := config.ContainersConfig{ComposeFile: "dc.yml", Project: "buildit", DatabaseService: "db"}

	running := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		return okResult("db\ncache\n"), nil
	}}
	s := &ComposeUp{Runner: running, Cfg: cfg}
	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)

	stopped := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		return okResult("cache\n"), nil
	}}
	s = &ComposeUp{Runner: stopped, Cfg: cfg}
	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestDatabaseReady_PollsUntilReady(t *testing.T) {
	attempts := 0
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		attempts++
		if attempts < 3 {
			return failResult("not ready"), nil
		}
		return okResult("accepting connections"), nil
	}}

	s := &DatabaseReady{
		Runner:   r,
		Cfg:      config.ContainersConfig{ComposeFile: "dc.yml", Project: "p", DatabaseService: "db"},
		Interval: time.Millisecond,
		Attempts: 10,
	}

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestDatabaseReady_GivesUpAfterCappedAttempts(t *testing.T) {
	r := &fakeRunner{handler: func(cmd shell.Command) (*shell.Result, error) {
		return failResult("not ready"), nil
	}}

	s := &DatabaseReady{
		Runner:   r,
		Cfg:      config.ContainersConfig{DatabaseService: "db"},
		Interval: time.Millisecond,
		Attempts: 4,
	}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Len(t, r.calls, 4)
}

func TestMCPConfigWrite_CheckAgainstOnDiskEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mcp.json")
	ibah := config.IbahConfig{
		Tool:    "ibah",
		BaseURL: "https://ibah.internal",
		APIKey:  "key",
		Command: "npx",
		Args:    []string{"-y", "@ibah/mcp-server"},
	}

	s := &MCPConfigWrite{Store: mcp.NewStore(path), Ibah: ibah}

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, s.Run(context.Background()))

	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied, "written entry should satisfy the check")

	// Rotated API key must trigger a rewrite.
	s.Ibah.APIKey = "rotated"
	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestMCPConfigWrite_CheckDetectsForeignEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mcp.json")
	s := &MCPConfigWrite{
		Store: mcp.NewStore(path),
		Ibah: config.IbahConfig{
			Tool:    "ibah",
			BaseURL: "https://ibah.internal",
			APIKey:  "key",
			Command: "npx",
		},
	}
	require.NoError(t, s.Run(context.Background()))

	// An extra env key in the on-disk entry is drift too.
	store := mcp.NewStore(path)
	cf, err := store.Load()
	require.NoError(t, err)
	entry := cf.MCPServers["ibah"]
	entry.Env["IBAH_STALE"] = "leftover"
	cf.MCPServers["ibah"] = entry
	require.NoError(t, store.Save(cf))

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied, "extra env key must trigger a rewrite")
}

func TestSettingsWrite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := &SettingsWrite{Path: path, Tool: "ibah"}

	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied)

	require.NoError(t, s.Run(context.Background()))

	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)
}

func TestWSLConfWrite_Idempotent(t *testing.T) {
	cfg := config.DefaultConfig()
	path := filepath.Join(t.TempDir(), "wsl.conf")
	s := &WSLConfWrite{Path: path, Cfg: cfg}

	require.NoError(t, s.Run(context.Background()))
	satisfied, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, satisfied)

	cfg.WSL.Systemd = false
	satisfied, err = s.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, satisfied, "manifest change should invalidate the artifact")
}

func TestNetworkingAutoDetect_FallsBackToNAT(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WSL.NetworkingMode = "mirrored"

	r := &fakeRunner{
		installed: map[string]bool{"wslinfo": true},
		handler: func(cmd shell.Command) (*shell.Result, error) {
			return okResult("nat\n"), nil
		},
	}

	s := &NetworkingAutoDetect{Runner: r, Cfg: cfg}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, "nat", cfg.WSL.NetworkingMode)
}

func TestNetworkingAutoDetect_WarnsWithoutWslinfo(t *testing.T) {
	cfg := config.DefaultConfig()
	s := &NetworkingAutoDetect{Runner: &fakeRunner{}, Cfg: cfg}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, step.IsOptional(s), "probe failure must only warn")
}

func TestPlan_Composition(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workspace = tmp
	cfg.Packages.Apt = []string{"git"}
	cfg.Packages.Optional = []string{"zsh"}
	cfg.Packages.Tools = []config.ToolSpec{{Binary: "docker", Installer: []string{"true"}}}
	cfg.Repos = []config.RepoSpec{{Name: "buildit", URL: "https://example.com/b.git"}}
	cfg.Containers.ComposeFile = filepath.Join(tmp, "dc.yml")
	cfg.Artifacts.MCPConfigPath = filepath.Join(tmp, ".mcp.json")
	cfg.Artifacts.SettingsPath = filepath.Join(tmp, "settings.json")
	cfg.Artifacts.WSLConfPath = filepath.Join(tmp, "wsl.conf")
	cfg.Artifacts.WSLConfigPath = filepath.Join(tmp, ".wslconfig")
	cfg.WSL.AutoDetect = true

	plan := Plan(cfg, &fakeRunner{})

	var ids []string
	for _, s := range plan {
		ids = append(ids, s.ID())
	}

	want := []string{
		"apt:update",
		"apt:git",
		"apt:zsh",
		"tool:docker",
		"repo:buildit",
		"container:up",
		"container:db-ready",
		"render:mcp-config",
		"render:settings",
		"render:wsl-conf",
		"wsl:networking-detect",
		"render:wslconfig",
	}
	assert.Equal(t, want, ids)
}

func TestPlan_SecondRunOverProvisionedHostOnlySkips(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workspace = tmp
	cfg.Packages.Apt = nil
	cfg.Packages.Optional = nil
	cfg.Packages.Tools = nil
	cfg.Repos = []config.RepoSpec{{Name: "buildit", URL: "https://example.com/b.git"}}
	cfg.Containers.ComposeFile = "" // no container stack in this scenario
	cfg.Ibah.BaseURL = "https://ibah.internal"
	cfg.Artifacts.MCPConfigPath = filepath.Join(tmp, ".mcp.json")
	cfg.Artifacts.SettingsPath = filepath.Join(tmp, "settings.json")
	cfg.Artifacts.WSLConfPath = filepath.Join(tmp, "wsl.conf")
	cfg.Artifacts.WSLConfigPath = ""
	cfg.WSL.AutoDetect = false

	// Pre-provision the host: working copy and artifacts in place.
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "buildit", ".git"), 0755))

	runner := &fakeRunner{}
	plan := Plan(cfg, runner)

	first, err := step.NewRunner(nil).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.False(t, first.Failed)

	second, err := step.NewRunner(nil).Execute(context.Background(), Plan(cfg, runner))
	require.NoError(t, err)
	for _, res := range second.Results {
		assert.Equal(t, step.StatusSkipped, res.Status, "step %s should skip on second run", res.StepID)
	}
}
