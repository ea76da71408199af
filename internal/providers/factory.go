package providers

import (
	"context"
	"fmt"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// Params are the raw values needed to construct any schema.LLMProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	ProviderName string // "bedrock", "anthropic" or "openai"
	DefaultModel string

	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string

	Region  string // bedrock only
	Profile string // bedrock only
}

// New creates the appropriate schema.LLMProvider for the given params.
//
//   - bedrock (or an SDK spec matched by model) → BedrockProvider
//   - otherwise → HTTPProvider (OpenAI chat completions or Anthropic Messages)
func New(ctx context.Context, p Params) (schema.LLMProvider, error) {
	spec := FindByName(p.ProviderName)
	if spec == nil {
		spec = FindByModel(p.DefaultModel)
	}
	if spec == nil {
		return nil, fmt.Errorf("unknown provider %q for model %q", p.ProviderName, p.DefaultModel)
	}
	if spec.SDK {
		return NewBedrockProvider(ctx, p.Region, p.Profile, p.DefaultModel)
	}
	if p.APIKey == "" {
		return nil, fmt.Errorf("provider %s: no API key configured (set %s)", spec.Name, spec.EnvKey)
	}
	return NewHTTPProvider(p.APIKey, p.APIBase, p.DefaultModel, spec.Name, p.ExtraHeaders), nil
}
