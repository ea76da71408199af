package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// HTTPProvider makes direct HTTP calls to an OpenAI-compatible chat
// completions endpoint, or to the Anthropic Messages API.
type HTTPProvider struct {
	apiKey        string
	apiBase       string
	defaultModel  string
	extraHeaders  map[string]string
	anthropicWire bool
	httpClient    *http.Client
}

// NewHTTPProvider constructs a provider from raw config values.
// The caller extracts these from config.Config to avoid an import cycle.
func NewHTTPProvider(
	apiKey, apiBase, defaultModel, providerName string,
	extraHeaders map[string]string,
) *HTTPProvider {
	spec := FindByName(providerName)
	if spec == nil {
		spec = FindByModel(defaultModel)
	}

	effectiveBase := apiBase
	if effectiveBase == "" {
		if spec != nil && spec.DefaultAPIBase != "" {
			effectiveBase = spec.DefaultAPIBase
		} else {
			effectiveBase = "https://api.openai.com/v1"
		}
	}
	effectiveBase = strings.TrimRight(effectiveBase, "/")

	anthropicWire := (spec != nil && spec.AnthropicWire) ||
		strings.Contains(strings.ToLower(effectiveBase), "anthropic.com")

	return &HTTPProvider{
		apiKey:        apiKey,
		apiBase:       effectiveBase,
		defaultModel:  defaultModel,
		extraHeaders:  extraHeaders,
		anthropicWire: anthropicWire,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *HTTPProvider) DefaultModel() string { return p.defaultModel }

// Chat implements schema.LLMProvider. Transport failures and non-200
// responses are returned as errors.
func (p *HTTPProvider) Chat(
	ctx context.Context,
	messages schema.Messages,
	tools []schema.ToolDefinition,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	model = stripProviderPrefix(model)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	if p.anthropicWire {
		return p.chatAnthropic(ctx, messages, tools, model, maxTokens, opts)
	}
	return p.chatOpenAI(ctx, messages, tools, model, maxTokens, opts)
}

// ---------------------------------------------------------------------------
// OpenAI-compatible path
// ---------------------------------------------------------------------------

func (p *HTTPProvider) chatOpenAI(
	ctx context.Context,
	messages schema.Messages,
	tools []schema.ToolDefinition,
	model string,
	maxTokens int,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	body := map[string]any{
		"model":       model,
		"messages":    convertMessagesToOpenAI(messages),
		"max_tokens":  maxTokens,
		"temperature": opts.Temperature,
	}
	if len(tools) > 0 {
		body["tools"] = convertToolsToOpenAI(tools)
		body["tool_choice"] = openAIToolChoice(opts.ToolChoice)
	}

	raw, err := p.post(ctx, "/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return schema.LLMResponse{}, err
	}
	return parseOpenAIResponse(raw)
}

func openAIToolChoice(c schema.ToolChoice) string {
	if c == schema.ToolChoiceAny {
		return "required"
	}
	return "auto"
}

// ---------------------------------------------------------------------------
// Anthropic Messages API path
// ---------------------------------------------------------------------------

func (p *HTTPProvider) chatAnthropic(
	ctx context.Context,
	messages schema.Messages,
	tools []schema.ToolDefinition,
	model string,
	maxTokens int,
	opts schema.ChatOptions,
) (schema.LLMResponse, error) {
	body := map[string]any{
		"model":       model,
		"messages":    convertMessagesToAnthropic(messages),
		"max_tokens":  maxTokens,
		"temperature": opts.Temperature,
	}
	if len(tools) > 0 {
		body["tools"] = convertToolsToAnthropic(tools)
		body["tool_choice"] = map[string]any{"type": anthropicToolChoice(opts.ToolChoice)}
	}

	raw, err := p.post(ctx, "/messages", body, map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return schema.LLMResponse{}, err
	}
	return parseAnthropicResponse(raw)
}

func anthropicToolChoice(c schema.ToolChoice) string {
	if c == schema.ToolChoiceAny {
		return "any"
	}
	return "auto"
}

func (p *HTTPProvider) post(ctx context.Context, path string, body map[string]any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}
	return raw, nil
}

// ---------------------------------------------------------------------------
// Request conversion
// ---------------------------------------------------------------------------

func convertToolsToOpenAI(tools []schema.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  inputSchema(t.InputSchema),
			},
		})
	}
	return out
}

func convertToolsToAnthropic(tools []schema.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": inputSchema(t.InputSchema),
		})
	}
	return out
}

// inputSchema decodes a tool's JSON schema, falling back to an empty object schema.
func inputSchema(raw json.RawMessage) map[string]any {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil || params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}

// convertMessagesToOpenAI flattens a tool-results turn into one "tool"
// message per result followed by a user message carrying the note.
func convertMessagesToOpenAI(messages schema.Messages) []map[string]any {
	out := make([]map[string]any, 0, len(messages.Messages))
	for _, m := range messages.Messages {
		switch m.Role {
		case schema.RoleUser:
			out = append(out, map[string]any{"role": "user", "content": m.Text()})

		case schema.RoleAssistant:
			wire := map[string]any{"role": "assistant", "content": nil}
			if text := m.Text(); text != "" {
				wire["content"] = text
			}
			if len(m.ToolCalls) > 0 {
				calls := make([]map[string]any, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					calls[i] = tc.ToWireMap()
				}
				wire["tool_calls"] = calls
			}
			out = append(out, wire)

		case schema.RoleTool:
			for _, r := range m.ToolResults {
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": r.CallID,
					"name":         r.Name,
					"content":      r.Text,
				})
			}
			if note := m.Text(); note != "" {
				out = append(out, map[string]any{"role": "user", "content": note})
			}
		}
	}
	return out
}

// convertMessagesToAnthropic maps a tool-results turn onto a single user
// message: one tool_result block per call, then the note as a text block.
func convertMessagesToAnthropic(messages schema.Messages) []map[string]any {
	var out []map[string]any
	for _, m := range messages.Messages {
		switch m.Role {
		case schema.RoleUser:
			out = append(out, map[string]any{"role": "user", "content": m.Text()})

		case schema.RoleAssistant:
			var blocks []any
			if text := m.Text(); text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": text})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				blocks = []any{map[string]any{"type": "text", "text": ""}}
			}
			out = append(out, map[string]any{"role": "assistant", "content": blocks})

		case schema.RoleTool:
			blocks := make([]any, 0, len(m.ToolResults)+1)
			for _, r := range m.ToolResults {
				block := map[string]any{
					"type":        "tool_result",
					"tool_use_id": r.CallID,
					"content":     r.Text,
				}
				if r.IsError {
					block["is_error"] = true
				}
				blocks = append(blocks, block)
			}
			if note := m.Text(); note != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": note})
			}
			out = append(out, map[string]any{"role": "user", "content": blocks})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Response parsers
// ---------------------------------------------------------------------------

// openAIRespBody is the subset of the OpenAI chat completion response we care about.
type openAIRespBody struct {
	Choices []struct {
		Message struct {
			Content   any `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseOpenAIResponse(raw []byte) (schema.LLMResponse, error) {
	var body openAIRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse OpenAI response: %w", err)
	}
	if len(body.Choices) == 0 {
		return schema.LLMResponse{}, fmt.Errorf("empty choices in response")
	}

	msg := body.Choices[0].Message

	var content *string
	if c, ok := msg.Content.(string); ok && c != "" {
		content = &c
	}

	var toolCalls []schema.ToolCallRequest
	for _, tc := range msg.ToolCalls {
		args, err := repairJSON(tc.Function.Arguments)
		if err != nil {
			slog.Warn("failed to parse tool arguments", "tool", tc.Function.Name, "err", err)
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, schema.ToolCallRequest{
			Id:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	finish := body.Choices[0].FinishReason
	if finish == "" {
		finish = "stop"
	}

	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: map[string]int{
			"input_tokens":  body.Usage.PromptTokens,
			"output_tokens": body.Usage.CompletionTokens,
		},
	}, nil
}

// anthropicRespBody models the Anthropic Messages API response.
type anthropicRespBody struct {
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text"`  // type=text
		ID    string         `json:"id"`    // type=tool_use
		Name  string         `json:"name"`  // type=tool_use
		Input map[string]any `json:"input"` // type=tool_use
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseAnthropicResponse(raw []byte) (schema.LLMResponse, error) {
	var body anthropicRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return schema.LLMResponse{}, fmt.Errorf("parse Anthropic response: %w", err)
	}

	var contentStr string
	var toolCalls []schema.ToolCallRequest

	for _, block := range body.Content {
		switch block.Type {
		case "text":
			contentStr += block.Text
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, schema.ToolCallRequest{
				Id:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	var content *string
	if contentStr != "" {
		content = &contentStr
	}

	return schema.LLMResponse{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason(body.StopReason),
		Usage: map[string]int{
			"input_tokens":  body.Usage.InputTokens,
			"output_tokens": body.Usage.OutputTokens,
		},
	}, nil
}

// finishReason maps an Anthropic stop_reason onto the OpenAI vocabulary.
func finishReason(stop string) string {
	switch stop {
	case "tool_use":
		return "tool_calls"
	case "", "end_turn":
		return "stop"
	}
	return stop
}

// ---------------------------------------------------------------------------
// JSON repair
// ---------------------------------------------------------------------------

// repairJSON attempts to unmarshal JSON, retrying after stripping trailing
// garbage characters. This handles some LLMs that emit truncated tool arguments.
func repairJSON(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}

	// Attempt 1: trim trailing non-JSON characters.
	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return out, nil
	}

	// Attempt 2: find the last complete JSON object.
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return out, nil
		}
	}

	return map[string]any{}, fmt.Errorf("cannot repair JSON: %s", raw)
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
