package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store reads and writes the .mcp.json configuration file. Upserts
// preserve server entries this tool does not own, so a user-managed
// .mcp.json survives re-provisioning.
type Store struct {
	path string
}

// NewStore creates a store for the given config file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file. A missing file yields an empty document.
func (s *Store) Load() (*ConfigFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ConfigFile{MCPServers: map[string]ServerConfig{}}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var cf ConfigFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if cf.MCPServers == nil {
		cf.MCPServers = map[string]ServerConfig{}
	}
	return &cf, nil
}

// Upsert merges one server entry into the config file and saves it.
// Returns whether the file content changed.
func (s *Store) Upsert(name string, server ServerConfig) (bool, error) {
	cf, err := s.Load()
	if err != nil {
		return false, err
	}

	if existing, ok := cf.MCPServers[name]; ok && ServerEqual(existing, server) {
		return false, nil
	}

	cf.MCPServers[name] = server
	if err := s.Save(cf); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes the config file atomically. 0600: the env block can
// carry the API key.
func (s *Store) Save(cf *ConfigFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// ServerNames returns the configured server names, sorted.
func (s *Store) ServerNames() ([]string, error) {
	cf, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cf.MCPServers))
	for name := range cf.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ServerEqual reports whether two server entries are equivalent:
// same command, same args, same env with no extra keys either way.
func ServerEqual(a, b ServerConfig) bool {
	if a.Command != b.Command || len(a.Args) != len(b.Args) || len(a.Env) != len(b.Env) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return false
		}
	}
	return true
}
