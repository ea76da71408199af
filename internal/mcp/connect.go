package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/schema"
	"github.com/crystaldolphin/metadolphin/internal/tools"
)

// Manager owns the connections to the configured MCP servers and exposes
// their tools as a schema.Executor.
//
// Discovery is retried on every Definitions call until at least one server
// has connected, so a server that starts late is picked up by the next
// question.
type Manager struct {
	servers map[string]ServerConfig

	mu      sync.RWMutex // write-held while discovery mutates list
	clients map[string]*client
	list    *tools.ToolList
	exec    *tools.Executor
}

var _ schema.Executor = (*Manager)(nil)

// NewManager returns a Manager configured with the given MCP servers.
func NewManager(servers map[string]config.MCPServerConfig) *Manager {
	cfgs := make(map[string]ServerConfig, len(servers))
	for name, c := range servers {
		cfgs[name] = toServerConfig(c)
	}
	list := tools.NewToolList()
	return &Manager{
		servers: cfgs,
		clients: make(map[string]*client),
		list:    list,
		exec:    tools.NewExecutor(list),
	}
}

// Definitions connects to any server not yet connected and lists every
// discovered tool. It fails only when no tool is available at all.
func (m *Manager) Definitions(ctx context.Context) ([]schema.ToolDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.connectPending(ctx)
	if m.list.Len() == 0 {
		if err == nil {
			err = errors.New("no MCP tools discovered")
		}
		return nil, err
	}
	if err != nil {
		slog.Warn("MCP: some servers unavailable", "err", err)
	}
	return m.list.Definitions(), nil
}

// Execute runs a discovered tool.
func (m *Manager) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exec.Execute(ctx, name, args)
}

// connectPending connects servers in name order so tool-name collisions
// resolve deterministically. Callers hold m.mu.
func (m *Manager) connectPending(ctx context.Context) error {
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		if _, ok := m.clients[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		c := newClient(name, m.servers[name])
		if err := c.connect(ctx); err != nil {
			slog.Error("MCP server connect failed", "server", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		defs, err := c.listTools(ctx)
		if err != nil {
			slog.Error("MCP server tools/list failed", "server", name, "err", err)
			c.close()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, d := range defs {
			if d.Name == "" {
				continue
			}
			params := d.InputSchema
			if len(params) == 0 || !json.Valid(params) {
				params = json.RawMessage(`{"type": "object", "properties": {}}`)
			}
			m.list.Add(&toolWrapper{client: c, name: d.Name, description: d.Description, parameters: params})
			slog.Debug("MCP tool registered", "server", name, "tool", d.Name)
		}
		slog.Info("MCP server connected", "server", name, "tools", len(defs))
		m.clients[name] = c
	}
	return errors.Join(errs...)
}

// Close stops all subprocess-based MCP servers owned by this manager.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		c.close()
	}
}
