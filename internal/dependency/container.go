// Package dependency wires core metadolphin services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/dig"

	"github.com/crystaldolphin/metadolphin/internal/agent"
	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/catalog"
	"github.com/crystaldolphin/metadolphin/internal/channels"
	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/cron"
	"github.com/crystaldolphin/metadolphin/internal/mcp"
	"github.com/crystaldolphin/metadolphin/internal/providers"
	"github.com/crystaldolphin/metadolphin/internal/schema"
	"github.com/crystaldolphin/metadolphin/internal/server"
	"github.com/crystaldolphin/metadolphin/internal/tools"
)

// RevalidateJob is the name of the cron job that retries catalog
// authentication while the session is unvalidated.
const RevalidateJob = "catalog-revalidate"

// Version is the version string served to MCP clients.
type Version string

// Container resolves services on demand, so a command only constructs (and
// only needs credentials for) what it uses: `tools` never builds an LLM
// provider, and `ask` never builds the HTTP server.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	d   *dig.Container
	cfg *config.Config
}

// New registers every constructor for cfg. Nothing is built until a getter
// asks for it. ctx bounds startup work such as catalog auth negotiation.
func New(ctx context.Context, cfg *config.Config, version string) (*Container, error) {
	d := dig.New()

	ctors := []any{
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		func() Version { return Version(version) },
		newProvider,
		newOrchestrator,
		newAssistant,
		newMessageBus,
		newDispatcher,
		newChannelManager,
		newCronService,
		newMCPServer,
		newHTTPServer,
	}
	// In mcp mode the catalog lives behind the remote server, so no Gateway
	// is registered and its optional consumers see nil.
	switch cfg.Tools.Mode {
	case "mcp":
		ctors = append(ctors, newMCPManager, func(m *mcp.Manager) schema.Executor { return m })
	case "local", "":
		ctors = append(ctors, newGateway, newLocalExecutor)
	default:
		return nil, fmt.Errorf("unknown tools.mode %q (want local or mcp)", cfg.Tools.Mode)
	}

	for _, ctor := range ctors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}
	return &Container{d: d, cfg: cfg}, nil
}

func resolve[T any](c *Container) (T, error) {
	var out T
	err := c.d.Invoke(func(v T) { out = v })
	return out, err
}

func (c *Container) Config() *config.Config { return c.cfg }

// Catalog returns the gateway, or nil in mcp mode.
func (c *Container) Catalog() (*catalog.Gateway, error) {
	var gw *catalog.Gateway
	err := c.d.Invoke(func(p catalogParams) { gw = p.Gateway })
	return gw, err
}

func (c *Container) Executor() (schema.Executor, error) { return resolve[schema.Executor](c) }
func (c *Container) Assistant() (*agent.Assistant, error) {
	return resolve[*agent.Assistant](c)
}
func (c *Container) MessageBus() (*bus.MessageBus, error) { return resolve[*bus.MessageBus](c) }
func (c *Container) Dispatcher() (*agent.Dispatcher, error) {
	return resolve[*agent.Dispatcher](c)
}
func (c *Container) Channels() (*channels.Manager, error) { return resolve[*channels.Manager](c) }
func (c *Container) Cron() (*cron.Service, error)         { return resolve[*cron.Service](c) }
func (c *Container) MCPServer() (*mcp.Server, error)      { return resolve[*mcp.Server](c) }
func (c *Container) HTTPServer() (*server.Server, error)  { return resolve[*server.Server](c) }

// Close releases MCP client connections if any were opened.
func (c *Container) Close() {
	_ = c.d.Invoke(func(p mcpParams) {
		if p.Manager != nil {
			p.Manager.Close()
		}
	})
}

type mcpParams struct {
	dig.In
	Manager *mcp.Manager `optional:"true"`
}

// catalogParams lets consumers take the gateway only when tools run locally.
type catalogParams struct {
	dig.In
	Gateway *catalog.Gateway `optional:"true"`
}

func newGateway(ctx context.Context, cfg *config.Config) (*catalog.Gateway, error) {
	if cfg.Catalog.BaseURL == "" {
		return nil, fmt.Errorf("catalog.baseUrl is not set: edit %s or set ALATION_BASE_URL", config.ConfigPath())
	}
	return catalog.New(ctx, catalog.OptionsFromConfig(cfg.Catalog)), nil
}

func newLocalExecutor(gw *catalog.Gateway) schema.Executor {
	return tools.NewExecutor(tools.NewCatalogRegistry(gw).AllTools())
}

func newMCPManager(cfg *config.Config) (*mcp.Manager, error) {
	if len(cfg.Tools.MCPServers) == 0 {
		return nil, fmt.Errorf("tools.mode is mcp but no tools.mcpServers are configured")
	}
	return mcp.NewManager(cfg.Tools.MCPServers), nil
}

func newProvider(ctx context.Context, cfg *config.Config) (schema.LLMProvider, error) {
	p := providers.Params{
		ProviderName: cfg.Agent.Provider,
		DefaultModel: cfg.Agent.Model,
		Region:       cfg.Providers.Bedrock.Region,
		Profile:      cfg.Providers.Bedrock.Profile,
	}
	if pc := cfg.Providers.ByName(cfg.Agent.Provider); pc != nil {
		p.APIKey = pc.APIKey
		p.APIBase = pc.APIBase
		p.ExtraHeaders = pc.ExtraHeaders
	}
	return providers.New(ctx, p)
}

func newOrchestrator(p schema.LLMProvider, cfg *config.Config) *agent.Orchestrator {
	return agent.NewOrchestrator(p, agent.Settings{
		Model:          cfg.Agent.Model,
		MaxTokens:      cfg.Agent.MaxTokens,
		Temperature:    cfg.Agent.Temperature,
		MaxRounds:      cfg.Agent.MaxToolRounds,
		SoftLimitRound: cfg.Agent.SoftLimitRound,
	})
}

func newAssistant(o *agent.Orchestrator, exec schema.Executor, cfg *config.Config) *agent.Assistant {
	return agent.NewAssistant(o, exec, agent.AssistantOptions{
		DiscoveryRetries: cfg.Tools.DiscoveryRetries,
		CallBudget:       cfg.Catalog.CallBudget,
	})
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newDispatcher(b *bus.MessageBus, a *agent.Assistant, cfg *config.Config) *agent.Dispatcher {
	return agent.NewDispatcher(b, a, cfg.Agent.HistoryLimit)
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus) *channels.Manager {
	return channels.FromConfig(cfg, b)
}

func newCronService(cfg *config.Config, p catalogParams) (*cron.Service, error) {
	svc := cron.NewService()
	if p.Gateway == nil || cfg.Catalog.RevalidateSchedule == "" {
		return svc, nil
	}
	if err := svc.AddJob(RevalidateJob, cfg.Catalog.RevalidateSchedule, "", p.Gateway.Revalidate); err != nil {
		return nil, err
	}
	return svc, nil
}

func newMCPServer(exec schema.Executor, v Version) *mcp.Server {
	return mcp.NewServer(exec, string(v))
}

func newHTTPServer(cfg *config.Config, a *agent.Assistant, exec schema.Executor, m *mcp.Server, p catalogParams) *server.Server {
	opts := server.Options{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Answerer:     a,
		Tools:        exec,
		MCP:          m,
		HistoryLimit: cfg.Agent.HistoryLimit,
	}
	if p.Gateway != nil {
		opts.Catalog = p.Gateway
	}
	return server.New(opts)
}
