// Package mcp manages the MCP (Model Context Protocol) client
// configuration the bootstrapper generates, and provides a stdio
// transport used to verify the configured ibah server end to end.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP protocol revision spoken during the
// initialize handshake.
const ProtocolVersion = "2024-11-05"

// ServerConfig is one entry of the generated .mcp.json document:
// the command to launch, its arguments, and its environment.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ConfigFile is the on-disk shape of .mcp.json.
type ConfigFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// SettingsFile is the dev-tool settings document enabling named
// integrations.
type SettingsFile struct {
	Integrations map[string]IntegrationSetting `json:"integrations"`
}

// IntegrationSetting toggles a single integration.
type IntegrationSetting struct {
	Enabled bool `json:"enabled"`
}

// request is a JSON-RPC 2.0 request frame.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response frame.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// initializeParams is the client half of the initialize handshake.
type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    struct{}   `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server half of the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}
