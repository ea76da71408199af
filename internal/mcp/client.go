package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// client manages JSON-RPC communication with a single MCP server (stdio or HTTP).
type client struct {
	name       string
	cfg        ServerConfig
	httpClient *http.Client

	// Stdio fields (non-nil when command-based)
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu    sync.Mutex
	ready atomic.Bool
}

func newClient(name string, cfg ServerConfig) *client {
	return &client{
		name: name,
		cfg:  cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// connect starts the MCP server subprocess (or prepares HTTP) and initializes.
func (c *client) connect(ctx context.Context) error {
	switch {
	case c.cfg.Command != "":
		if err := c.startStdio(); err != nil {
			return err
		}
	case c.cfg.URL == "":
		return fmt.Errorf("MCP server %q: no command or url configured", c.name)
	}

	if err := c.initialize(ctx); err != nil {
		c.close()
		return fmt.Errorf("initialize: %w", err)
	}
	c.ready.Store(true)
	return nil
}

// startStdio launches the server process. It is not bound to ctx: the
// process lives until close, not until the discovery call returns.
func (c *client) startStdio() error {
	c.cmd = exec.Command(c.cfg.Command, c.cfg.Args...)
	c.cmd.Stderr = os.Stderr
	if len(c.cfg.Env) > 0 {
		c.cmd.Env = os.Environ()
		for k, v := range c.cfg.Env {
			c.cmd.Env = append(c.cmd.Env, k+"="+v)
		}
	}

	stdinPipe, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	c.stdin = stdinPipe
	c.stdout = bufio.NewReader(stdoutPipe)

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start MCP server: %w", err)
	}
	return nil
}

func (c *client) close() {
	c.ready.Store(false)
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.stdin.Close()
		c.cmd.Process.Kill() //nolint:errcheck
		_ = c.cmd.Wait()
	}
}

// listTools returns the tools exposed by this MCP server.
func (c *client) listTools(ctx context.Context) ([]toolInfo, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

// callTool invokes a named tool on the MCP server. A result flagged isError
// is returned as a Go error carrying the server's text.
func (c *client) callTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.call(ctx, "tools/call", callToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return "", err
	}

	var result callToolResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return string(resp), nil
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	out := strings.Join(parts, "\n")
	if result.IsError {
		return "", errors.New(out)
	}
	if out == "" {
		out = "(no output)"
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// JSON-RPC plumbing
// ---------------------------------------------------------------------------

func (c *client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "metadolphin", "version": "1.0"},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify(ctx, "notifications/initialized")
}

func newRequest(method string, params any) ([]byte, json.RawMessage, error) {
	id, _ := json.Marshal(uuid.NewString())
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      json.RawMessage(id),
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	return data, id, err
}

func (c *client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	data, id, err := newRequest(method, params)
	if err != nil {
		return nil, err
	}
	var resp rpcResponseRaw
	if c.cfg.URL != "" {
		resp, err = c.postHTTP(ctx, data)
	} else {
		resp, err = c.roundTripStdio(ctx, data, id)
	}
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *client) notify(ctx context.Context, method string) error {
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": method})
	if c.cfg.URL != "" {
		req, err := c.httpRequest(ctx, data)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.stdin, "%s\n", data)
	return err
}

// rpcResponseRaw keeps the result undecoded for the caller.
type rpcResponseRaw struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *client) roundTripStdio(ctx context.Context, data []byte, id json.RawMessage) (rpcResponseRaw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.stdin, "%s\n", data); err != nil {
		return rpcResponseRaw{}, fmt.Errorf("write to MCP stdin: %w", err)
	}

	// Read response lines until we get one with our id.
	for {
		if err := ctx.Err(); err != nil {
			return rpcResponseRaw{}, err
		}
		line, err := c.stdout.ReadString('\n')
		if err != nil {
			return rpcResponseRaw{}, fmt.Errorf("read MCP stdout: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var resp rpcResponseRaw
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue // skip non-JSON lines (server log output)
		}
		if !bytes.Equal(resp.ID, id) {
			continue
		}
		return resp, nil
	}
}

func (c *client) httpRequest(ctx context.Context, data []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *client) postHTTP(ctx context.Context, data []byte) (rpcResponseRaw, error) {
	req, err := c.httpRequest(ctx, data)
	if err != nil {
		return rpcResponseRaw{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rpcResponseRaw{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rpcResponseRaw{}, fmt.Errorf("MCP server %q: HTTP %d", c.name, resp.StatusCode)
	}
	var rpcResp rpcResponseRaw
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return rpcResponseRaw{}, fmt.Errorf("decode MCP response: %w", err)
	}
	return rpcResp, nil
}
