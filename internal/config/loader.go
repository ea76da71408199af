package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "METADOLPHIN"

// envAliases binds the conventional variable names used by existing
// deployments alongside the METADOLPHIN_ form.
var envAliases = map[string]string{
	"catalog.baseUrl":            "ALATION_BASE_URL",
	"catalog.apiToken":           "ALATION_API_TOKEN",
	"catalog.userId":             "ALATION_USER_ID",
	"slack.botToken":             "SLACK_BOT_TOKEN",
	"slack.appToken":             "SLACK_APP_TOKEN",
	"providers.bedrock.region":   "AWS_REGION",
	"providers.anthropic.apiKey": "ANTHROPIC_API_KEY",
	"providers.openai.apiKey":    "OPENAI_API_KEY",
}

// ConfigPath returns the default configuration file path: ~/.metadolphin/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the metadolphin data directory: ~/.metadolphin.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metadolphin"
	}
	return filepath.Join(home, ".metadolphin")
}

// Load reads the config file at path and applies environment overrides.
// If path is empty, ConfigPath() is used. A missing file yields defaults;
// an unparsable one logs a warning and yields defaults.
//
// Map keys (mcpServers names, extraHeaders) are case-folded by viper.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	v := newViper()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !json.Valid(data) {
			slog.Warn("config: failed to parse, using defaults", "path", path)
			break
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			slog.Warn("config: failed to parse, using defaults", "path", path, "err", err)
			v = newViper()
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")

	var defaults map[string]any
	raw, _ := json.Marshal(DefaultConfig())
	_ = json.Unmarshal(raw, &defaults)
	setDefaults(v, "", defaults)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias)
	}
	return v
}

// setDefaults registers every leaf of m so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok && len(nested) > 0 {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// Save writes cfg to path as indented JSON.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// Append a trailing newline for POSIX compliance.
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
