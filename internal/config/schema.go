// Package config defines the configuration schema for metadolphin.
//
// The file on disk is JSON with camelCase keys. Every key can be overridden
// from the environment as METADOLPHIN_<SECTION>_<KEY>, e.g.
// METADOLPHIN_CATALOG_BASEURL.
package config

// CatalogConfig configures the catalog gateway.
type CatalogConfig struct {
	BaseURL                string  `json:"baseUrl" mapstructure:"baseUrl"`
	APIToken               string  `json:"apiToken" mapstructure:"apiToken"`
	UserID                 string  `json:"userId" mapstructure:"userId"`
	CacheEnabled           bool    `json:"cacheEnabled" mapstructure:"cacheEnabled"`
	CacheTTLSeconds        int     `json:"cacheTtlSeconds" mapstructure:"cacheTtlSeconds"`
	RequestTimeoutSeconds  int     `json:"requestTimeoutSeconds" mapstructure:"requestTimeoutSeconds"`
	AuthTimeoutSeconds     int     `json:"authTimeoutSeconds" mapstructure:"authTimeoutSeconds"`
	ExchangeTimeoutSeconds int     `json:"exchangeTimeoutSeconds" mapstructure:"exchangeTimeoutSeconds"`
	RetryBackoffMs         int     `json:"retryBackoffMs" mapstructure:"retryBackoffMs"`
	CallBudget             int     `json:"callBudget" mapstructure:"callBudget"`
	RequestsPerSecond      float64 `json:"requestsPerSecond" mapstructure:"requestsPerSecond"`
	RevalidateSchedule     string  `json:"revalidateSchedule" mapstructure:"revalidateSchedule"`
}

func defaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		CacheEnabled:           true,
		CacheTTLSeconds:        300,
		RequestTimeoutSeconds:  15,
		AuthTimeoutSeconds:     10,
		ExchangeTimeoutSeconds: 15,
		RetryBackoffMs:         500,
		CallBudget:             150,
		RequestsPerSecond:      20,
		RevalidateSchedule:     "@every 5m",
	}
}

// AgentConfig holds model and orchestration settings.
type AgentConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // "bedrock" | "anthropic" | "openai"
	Model          string  `json:"model" mapstructure:"model"`
	MaxTokens      int     `json:"maxTokens" mapstructure:"maxTokens"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxToolRounds  int     `json:"maxToolRounds" mapstructure:"maxToolRounds"`
	SoftLimitRound int     `json:"softLimitRound" mapstructure:"softLimitRound"`
	HistoryLimit   int     `json:"historyLimit" mapstructure:"historyLimit"`
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Provider:       "bedrock",
		Model:          "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		MaxTokens:      4096,
		Temperature:    0,
		MaxToolRounds:  50,
		SoftLimitRound: 25,
		HistoryLimit:   10,
	}
}

// ProviderConfig holds credentials for one HTTP LLM provider.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey" mapstructure:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty" mapstructure:"apiBase"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty" mapstructure:"extraHeaders"`
}

// BedrockConfig selects the AWS region and shared-config profile.
type BedrockConfig struct {
	Region  string `json:"region" mapstructure:"region"`
	Profile string `json:"profile,omitempty" mapstructure:"profile"`
}

// ProvidersConfig holds credentials for all supported LLM providers.
type ProvidersConfig struct {
	Bedrock   BedrockConfig  `json:"bedrock" mapstructure:"bedrock"`
	Anthropic ProviderConfig `json:"anthropic" mapstructure:"anthropic"`
	OpenAI    ProviderConfig `json:"openai" mapstructure:"openai"`
}

func defaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{Bedrock: BedrockConfig{Region: "us-east-1"}}
}

// ByName returns the HTTP provider config for name, or nil.
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case "anthropic":
		return &p.Anthropic
	case "openai":
		return &p.OpenAI
	}
	return nil
}

// SlackDMConfig controls direct-message behaviour in Slack.
type SlackDMConfig struct {
	Enabled   bool     `json:"enabled" mapstructure:"enabled"`
	Policy    string   `json:"policy" mapstructure:"policy"` // "open" or "allowlist"
	AllowFrom []string `json:"allowFrom" mapstructure:"allowFrom"`
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	Enabled         bool          `json:"enabled" mapstructure:"enabled"`
	BotToken        string        `json:"botToken" mapstructure:"botToken"`
	AppToken        string        `json:"appToken" mapstructure:"appToken"`
	ReplyInThread   bool          `json:"replyInThread" mapstructure:"replyInThread"`
	ReactEmoji      string        `json:"reactEmoji" mapstructure:"reactEmoji"`
	GroupPolicy     string        `json:"groupPolicy" mapstructure:"groupPolicy"` // "mention" | "open" | "allowlist"
	GroupAllowFrom  []string      `json:"groupAllowFrom" mapstructure:"groupAllowFrom"`
	MaxMessageChars int           `json:"maxMessageChars" mapstructure:"maxMessageChars"`
	DM              SlackDMConfig `json:"dm" mapstructure:"dm"`
}

func defaultSlackConfig() SlackConfig {
	return SlackConfig{
		ReplyInThread:   true,
		ReactEmoji:      "eyes",
		GroupPolicy:     "mention",
		GroupAllowFrom:  []string{},
		MaxMessageChars: 3800,
		DM:              SlackDMConfig{Enabled: true, Policy: "open", AllowFrom: []string{}},
	}
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{Host: "0.0.0.0", Port: 18790}
}

// MCPServerConfig describes one MCP server connection (stdio or HTTP).
type MCPServerConfig struct {
	Command string            `json:"command,omitempty" mapstructure:"command"`
	Args    []string          `json:"args,omitempty" mapstructure:"args"`
	Env     map[string]string `json:"env,omitempty" mapstructure:"env"`
	URL     string            `json:"url,omitempty" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// ToolsConfig selects where catalog tools run.
type ToolsConfig struct {
	Mode             string                     `json:"mode" mapstructure:"mode"` // "local" | "mcp"
	MCPServers       map[string]MCPServerConfig `json:"mcpServers" mapstructure:"mcpServers"`
	DiscoveryRetries int                        `json:"discoveryRetries" mapstructure:"discoveryRetries"`
}

func defaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		Mode:             "local",
		MCPServers:       map[string]MCPServerConfig{},
		DiscoveryRetries: 2,
	}
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // "debug" | "info" | "warn" | "error"
	Format string `json:"format" mapstructure:"format"` // "text" | "json"
}

// Config is the root configuration object.
type Config struct {
	Catalog   CatalogConfig   `json:"catalog" mapstructure:"catalog"`
	Agent     AgentConfig     `json:"agent" mapstructure:"agent"`
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`
	Slack     SlackConfig     `json:"slack" mapstructure:"slack"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Catalog:   defaultCatalogConfig(),
		Agent:     defaultAgentConfig(),
		Providers: defaultProvidersConfig(),
		Slack:     defaultSlackConfig(),
		Server:    defaultServerConfig(),
		Tools:     defaultToolsConfig(),
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}
