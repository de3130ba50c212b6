package render

import (
	"encoding/json"
	"fmt"

	"buildit/internal/mcp"
)

// Settings renders the dev-tool settings document enabling the named
// integrations.
func Settings(enabled ...string) ([]byte, error) {
	sf := mcp.SettingsFile{Integrations: map[string]mcp.IntegrationSetting{}}
	for _, name := range enabled {
		sf.Integrations[name] = mcp.IntegrationSetting{Enabled: true}
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return append(data, '\n'), nil
}
