package providers

import "strings"

// ProviderSpec is the metadata record for one LLM provider.
type ProviderSpec struct {
	Name        string   // config field name, e.g. "anthropic"
	Keywords    []string // model-name keywords for matching (lowercase)
	EnvKey      string   // conventional env var for the API key
	DisplayName string   // shown in `metadolphin status`

	DefaultAPIBase string // fallback base URL when none is configured

	// AnthropicWire selects the Messages API wire format instead of
	// OpenAI chat completions.
	AnthropicWire bool

	// SDK marks providers served by the anthropic SDK rather than direct HTTP.
	SDK bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// PROVIDERS is the registry. Order = match priority.
var PROVIDERS = []ProviderSpec{
	{
		Name:        "bedrock",
		Keywords:    []string{"us.anthropic", "anthropic.claude", "bedrock"},
		EnvKey:      "AWS_REGION",
		DisplayName: "Amazon Bedrock",
		SDK:         true,
	},
	{
		Name:           "anthropic",
		Keywords:       []string{"anthropic", "claude"},
		EnvKey:         "ANTHROPIC_API_KEY",
		DisplayName:    "Anthropic",
		DefaultAPIBase: "https://api.anthropic.com/v1",
		AnthropicWire:  true,
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		EnvKey:         "OPENAI_API_KEY",
		DisplayName:    "OpenAI",
		DefaultAPIBase: "https://api.openai.com/v1",
	},
}

// FindByModel matches a provider by model-name keyword (case-insensitive).
// An explicit "provider/" prefix wins over keywords.
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	if prefix, _, ok := strings.Cut(modelLower, "/"); ok {
		if s := FindByName(prefix); s != nil {
			return s
		}
	}
	for i := range PROVIDERS {
		for _, kw := range PROVIDERS[i].Keywords {
			if strings.Contains(modelLower, kw) {
				return &PROVIDERS[i]
			}
		}
	}
	return nil
}

// FindByName returns the ProviderSpec whose Name equals name.
func FindByName(name string) *ProviderSpec {
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}

// stripProviderPrefix removes a leading "provider/" that names a known provider.
func stripProviderPrefix(model string) string {
	if prefix, rest, ok := strings.Cut(model, "/"); ok && FindByName(strings.ToLower(prefix)) != nil {
		return rest
	}
	return model
}
