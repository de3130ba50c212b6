package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// StdioTransport launches an MCP server subprocess and speaks
// newline-delimited JSON-RPC over its stdin/stdout. The bootstrapper
// uses it for one purpose: proving that the generated .mcp.json entry
// actually starts a server that completes the initialize handshake.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	env     map[string]string
	logger  *zap.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	connected bool
	nextID    int
}

// NewStdioTransport creates a transport for a configured server entry.
func NewStdioTransport(server ServerConfig, logger *zap.Logger) *StdioTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{
		command: server.Command,
		args:    server.Args,
		env:     server.Env,
		logger:  logger,
		nextID:  1,
	}
}

// Connect starts the subprocess.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}
	if t.command == "" {
		return fmt.Errorf("empty command for stdio transport")
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = bufio.NewReader(stdout)
	t.connected = true

	t.logger.Debug("mcp server started",
		zap.String("command", t.command),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Initialize performs the MCP initialize handshake and returns the
// server identity.
func (t *StdioTransport) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := initializeParams{ProtocolVersion: ProtocolVersion}
	params.ClientInfo = clientInfo{Name: "buildit", Version: "0.1.0"}

	raw, err := t.call(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed initialize result: %w", err)
	}

	// Notify the server we are ready, per protocol. Errors here do not
	// matter for a verification handshake.
	_ = t.notify("notifications/initialized")

	return &result, nil
}

// Ping checks the server is responsive.
func (t *StdioTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

// Close terminates the subprocess.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	return nil
}

// call sends a request and waits for the matching response. Responses
// are read in-order; the verification flow is strictly sequential so
// out-of-order responses are a protocol error.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID
	t.nextID++

	if err := t.write(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	type readResult struct {
		resp *response
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		resp, err := t.readResponse(id)
		ch <- readResult{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Error != nil {
			return nil, fmt.Errorf("server error %d: %s", r.resp.Error.Code, r.resp.Error.Message)
		}
		return r.resp.Result, nil
	}
}

// notify sends a request without an ID and does not wait.
func (t *StdioTransport) notify(method string) error {
	frame := map[string]interface{}{"jsonrpc": "2.0", "method": method}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

func (t *StdioTransport) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// readResponse reads frames until one matches the request ID, skipping
// server-initiated notifications.
func (t *StdioTransport) readResponse(id int) (*response, error) {
	for {
		line, err := t.stdout.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue // not a frame we understand, keep reading
		}
		if resp.ID == 0 && resp.Result == nil && resp.Error == nil {
			continue // notification
		}
		if resp.ID != id {
			return nil, fmt.Errorf("out-of-order response: got id %d, want %d", resp.ID, id)
		}
		return &resp, nil
	}
}
