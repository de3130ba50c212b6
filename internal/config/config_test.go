package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "buildit" {
		t.Errorf("expected Name=buildit, got %s", cfg.Name)
	}
	if cfg.WSL.NetworkingMode != "mirrored" {
		t.Errorf("expected mirrored networking, got %s", cfg.WSL.NetworkingMode)
	}
	if cfg.Containers.ReadyAttempts != 30 {
		t.Errorf("expected ReadyAttempts=30, got %d", cfg.Containers.ReadyAttempts)
	}
	if !cfg.Ibah.Enabled {
		t.Error("expected ibah integration enabled by default")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	// Ensure no env vars interfere
	t.Setenv("IBAH_SERVER_URL", "")
	t.Setenv("IBAH_API_KEY", "")
	t.Setenv("BUILDIT_WORKSPACE", "")
	t.Setenv("BUILDIT_COMPOSE_FILE", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Ibah.BaseURL = "https://ibah.internal"
	cfg.Ibah.APIKey = "ibah-test-key"
	cfg.Repos = append(cfg.Repos, RepoSpec{Name: "ibah", URL: "https://github.com/buildit/ibah.git", Branch: "main"})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Ibah.BaseURL != "https://ibah.internal" {
		t.Errorf("expected BaseURL=https://ibah.internal, got %s", loaded.Ibah.BaseURL)
	}
	if loaded.Ibah.APIKey != "ibah-test-key" {
		t.Errorf("expected APIKey=ibah-test-key, got %s", loaded.Ibah.APIKey)
	}
	if len(loaded.Repos) != 2 {
		t.Fatalf("expected 2 repos, got %d", len(loaded.Repos))
	}
	if loaded.Repos[1].Branch != "main" {
		t.Errorf("expected branch=main, got %s", loaded.Repos[1].Branch)
	}
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("IBAH_SERVER_URL", "")
	t.Setenv("IBAH_API_KEY", "")
	t.Setenv("BUILDIT_WORKSPACE", "")
	t.Setenv("BUILDIT_COMPOSE_FILE", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "buildit" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("IBAH_SERVER_URL", "https://env.ibah")
	os.Setenv("IBAH_API_KEY", "env-key")
	os.Setenv("BUILDIT_WORKSPACE", "/tmp/ws")
	defer os.Unsetenv("IBAH_SERVER_URL")
	defer os.Unsetenv("IBAH_API_KEY")
	defer os.Unsetenv("BUILDIT_WORKSPACE")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Ibah.BaseURL != "https://env.ibah" {
		t.Errorf("expected env BaseURL, got %s", cfg.Ibah.BaseURL)
	}
	if cfg.Ibah.APIKey != "env-key" {
		t.Errorf("expected env APIKey, got %s", cfg.Ibah.APIKey)
	}
	if cfg.Workspace != "/tmp/ws" {
		t.Errorf("expected env workspace, got %s", cfg.Workspace)
	}
}

func TestConfig_HomeDirOverride(t *testing.T) {
	t.Setenv("BUILDIT_HOME", "/tmp/bhome")
	if got := HomeDir(); got != "/tmp/bhome" {
		t.Errorf("expected BUILDIT_HOME to win, got %s", got)
	}
	if got := DefaultPath(); got != filepath.Join("/tmp/bhome", "config.yaml") {
		t.Errorf("DefaultPath should follow BUILDIT_HOME, got %s", got)
	}

	t.Setenv("BUILDIT_HOME", "")
	if got := HomeDir(); !strings.HasSuffix(got, ".buildit") {
		t.Errorf("expected ~/.buildit fallback, got %s", got)
	}
}

func TestConfig_LoadFileIgnoresEnv(t *testing.T) {
	t.Setenv("IBAH_SERVER_URL", "https://env.ibah")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Ibah.BaseURL == "https://env.ibah" {
		t.Error("LoadFile must not apply environment overrides")
	}
}

func TestConfig_Set(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Set("wsl.networking_mode", "nat"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.WSL.NetworkingMode != "nat" {
		t.Errorf("expected nat, got %s", cfg.WSL.NetworkingMode)
	}

	if err := cfg.Set("ibah.enabled", "false"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Ibah.Enabled {
		t.Error("expected ibah disabled")
	}

	if err := cfg.Set("containers.ready_attempts", "5"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Containers.ReadyAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Containers.ReadyAttempts)
	}

	if err := cfg.Set("wsl.systemd", "maybe"); err == nil {
		t.Error("expected error for non-boolean value")
	}
	if err := cfg.Set("containers.ready_attempts", "lots"); err == nil {
		t.Error("expected error for non-numeric value")
	}

	err := cfg.Set("no.such.key", "x")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "wsl.networking_mode") {
		t.Errorf("error should list the settable keys: %v", err)
	}
}

func TestConfig_SettableKeysRoundTrip(t *testing.T) {
	// Every advertised key must be assignable.
	cfg := DefaultConfig()
	for _, key := range cfg.SettableKeys() {
		value := "test"
		if _, ok := cfg.boolFields()[key]; ok {
			value = "true"
		}
		if key == "containers.ready_attempts" {
			value = "7"
		}
		if err := cfg.Set(key, value); err != nil {
			t.Errorf("Set(%s) failed: %v", key, err)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	bad := DefaultConfig()
	bad.WSL.NetworkingMode = "bridged"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for invalid networking mode")
	}

	bad = DefaultConfig()
	bad.Ibah.BaseURL = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for enabled ibah without base URL")
	}

	bad = DefaultConfig()
	bad.Ibah.Enabled = false
	bad.Ibah.BaseURL = ""
	if err := bad.Validate(); err != nil {
		t.Errorf("disabled ibah should not require base URL: %v", err)
	}

	bad = DefaultConfig()
	bad.Repos = []RepoSpec{{Name: "", URL: ""}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for repo without name/url")
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Containers.ReadyInterval = "not-a-duration"
	if got := cfg.ReadyInterval(); got != 2*time.Second {
		t.Errorf("expected 2s fallback, got %v", got)
	}

	cfg.Ibah.Timeout = ""
	if got := cfg.IbahTimeout(); got != 15*time.Second {
		t.Errorf("expected 15s fallback, got %v", got)
	}

	cfg.Exec.Timeout = ""
	if got := cfg.CommandTimeout(); got != 5*time.Minute {
		t.Errorf("expected 5m fallback, got %v", got)
	}
	cfg.Exec.Timeout = "90s"
	if got := cfg.CommandTimeout(); got != 90*time.Second {
		t.Errorf("expected configured 90s, got %v", got)
	}
}

func TestConfig_RepoDest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace = "/home/dev/src"

	r := RepoSpec{Name: "ibah", URL: "https://example.com/ibah.git"}
	if got := cfg.RepoDest(r); got != "/home/dev/src/ibah" {
		t.Errorf("expected workspace join, got %s", got)
	}

	r.Dest = "/opt/ibah"
	if got := cfg.RepoDest(r); got != "/opt/ibah" {
		t.Errorf("expected explicit dest, got %s", got)
	}
}

func TestWslifyPath(t *testing.T) {
	if got := wslifyPath(`C:\Users\dev`); got != "/mnt/c/Users/dev" {
		t.Errorf("unexpected wslify result: %s", got)
	}
	if got := wslifyPath("/already/posix"); got != "/already/posix" {
		t.Errorf("posix paths should pass through: %s", got)
	}
}
