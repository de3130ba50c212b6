package mcp

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerScript speaks just enough MCP to satisfy the verification
// handshake: one initialize response, then one ping response.
const fakeServerScript = `#!/bin/sh
read req
printf '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake-ibah","version":"1.0.0"}}}\n'
read notif
read req2
printf '{"jsonrpc":"2.0","id":2,"result":{}}\n'
read _
`

func writeFakeServer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}
	path := filepath.Join(t.TempDir(), "fake-server.sh")
	require.NoError(t, os.WriteFile(path, []byte(fakeServerScript), 0755))
	return path
}

func TestStdioTransport_HandshakeAndPing(t *testing.T) {
	script := writeFakeServer(t)
	tr := NewStdioTransport(ServerConfig{Command: script}, nil)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, tr.Connect(ctx))

	result, err := tr.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fake-ibah", result.ServerInfo.Name)
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)

	assert.NoError(t, tr.Ping(ctx))
}

func TestStdioTransport_EmptyCommand(t *testing.T) {
	tr := NewStdioTransport(ServerConfig{}, nil)
	err := tr.Connect(context.Background())
	assert.Error(t, err)
}

func TestStdioTransport_CallBeforeConnect(t *testing.T) {
	tr := NewStdioTransport(ServerConfig{Command: "true"}, nil)
	err := tr.Ping(context.Background())
	assert.Error(t, err)
}

func TestStdioTransport_ConnectTwice(t *testing.T) {
	script := writeFakeServer(t)
	tr := NewStdioTransport(ServerConfig{Command: script}, nil)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	assert.NoError(t, tr.Connect(ctx), "second connect is a no-op")
}
