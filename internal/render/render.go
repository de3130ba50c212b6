// Package render produces the generated configuration artifacts: the
// dev-tool settings file, /etc/wsl.conf, and the Windows-side
// .wslconfig. Artifacts are fixed templates; rendering is
// deterministic and writes are atomic and content-guarded so a second
// run leaves identical files untouched.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// WriteResult reports what a write did.
type WriteResult struct {
	Path    string
	Changed bool
}

// WriteFile writes content atomically (tmp + rename) unless the file
// already holds exactly that content.
func WriteFile(path string, content []byte, perm os.FileMode) (*WriteResult, error) {
	result := &WriteResult{Path: path}

	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return result, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, perm); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	result.Changed = true
	return result, nil
}

// UpToDate reports whether the file already holds the content.
func UpToDate(path string, content []byte) bool {
	existing, err := os.ReadFile(path)
	return err == nil && bytes.Equal(existing, content)
}
