package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

type captured struct {
	path    string
	headers http.Header
	body    map[string]any
}

func captureServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.path = r.URL.Path
		c.headers = r.Header.Clone()
		_ = json.Unmarshal(raw, &c.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

var searchDef = schema.ToolDefinition{
	Name:        "search_table",
	Description: "find a table",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"table_name":{"type":"string"}},"required":["table_name"]}`),
}

func conversation() schema.Messages {
	msgs := schema.NewMessages()
	msgs.AddUser("where is ORDERS?")
	msgs.AddAssistant(nil, []schema.ToolCall{
		{ID: "c1", Name: "search_table", Arguments: map[string]any{"table_name": "ORDERS"}},
		{ID: "c2", Name: "list_data_sources"},
	})
	msgs.AddToolResults([]schema.ToolResult{
		{CallID: "c1", Name: "search_table", Text: "Found 1 table(s)"},
		{CallID: "c2", Name: "list_data_sources", Text: "ERROR: boom", IsError: true},
	}, "Be concise.")
	return msgs
}

func TestHTTPProvider_OpenAIWire(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{
		"choices": [{"message": {"content": null, "tool_calls": [
			{"id": "c3", "function": {"name": "get_lineage", "arguments": "{\"table_name\": \"ORDERS\"}"}}
		]}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3}
	}`)
	p := NewHTTPProvider("sk-test", srv.URL, "gpt-4o", "openai", map[string]string{"X-Team": "data"})

	resp, err := p.Chat(context.Background(), conversation(), []schema.ToolDefinition{searchDef},
		schema.NewChatOptions("", 1024, 0, schema.ToolChoiceAny))
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.headers.Get("Authorization"))
	assert.Equal(t, "data", got.headers.Get("X-Team"))
	assert.Equal(t, "required", got.body["tool_choice"])
	assert.Equal(t, "gpt-4o", got.body["model"])

	msgs := got.body["messages"].([]any)
	require.Len(t, msgs, 5, "user, assistant, two tool messages, note")
	assert.Equal(t, "tool", msgs[2].(map[string]any)["role"])
	assert.Equal(t, "c2", msgs[3].(map[string]any)["tool_call_id"])
	assert.Equal(t, map[string]any{"role": "user", "content": "Be concise."}, msgs[4])

	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "get_lineage", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]any{"table_name": "ORDERS"}, resp.ToolCalls[0].Arguments)
	assert.Nil(t, resp.Content)
	assert.Equal(t, 12, resp.Usage["input_tokens"])
}

func TestHTTPProvider_AutoChoiceAndNoTools(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{"choices": [{"message": {"content": "hi"}}]}`)
	p := NewHTTPProvider("k", srv.URL, "gpt-4o", "openai", nil)

	_, err := p.Chat(context.Background(), conversation(), []schema.ToolDefinition{searchDef},
		schema.NewChatOptions("", 0, 0, schema.ToolChoiceAuto))
	require.NoError(t, err)
	assert.Equal(t, "auto", got.body["tool_choice"])

	resp, err := p.Chat(context.Background(), conversation(), nil,
		schema.NewChatOptions("", 0, 0, schema.ToolChoiceAny))
	require.NoError(t, err)
	assert.NotContains(t, got.body, "tools")
	assert.NotContains(t, got.body, "tool_choice")
	assert.Equal(t, "hi", resp.Text())
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestHTTPProvider_AnthropicWire(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK, `{
		"content": [{"type": "text", "text": "ORDERS lives in PUBLIC."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 7}
	}`)
	p := NewHTTPProvider("ak", srv.URL, "claude-sonnet-4-5", "anthropic", nil)

	resp, err := p.Chat(context.Background(), conversation(), []schema.ToolDefinition{searchDef},
		schema.NewChatOptions("anthropic/claude-sonnet-4-5", 512, 0, schema.ToolChoiceAny))
	require.NoError(t, err)

	assert.Equal(t, "/messages", got.path)
	assert.Equal(t, "ak", got.headers.Get("x-api-key"))
	assert.Equal(t, "claude-sonnet-4-5", got.body["model"], "provider prefix stripped")
	assert.Equal(t, map[string]any{"type": "any"}, got.body["tool_choice"])

	tools := got.body["tools"].([]any)
	assert.Contains(t, tools[0].(map[string]any), "input_schema")

	msgs := got.body["messages"].([]any)
	require.Len(t, msgs, 3)
	results := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, "tool_result", results[0].(map[string]any)["type"])
	assert.NotContains(t, results[0].(map[string]any), "is_error")
	assert.Equal(t, true, results[1].(map[string]any)["is_error"])
	assert.Equal(t, map[string]any{"type": "text", "text": "Be concise."}, results[2])

	assert.Equal(t, "ORDERS lives in PUBLIC.", resp.Text())
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusTooManyRequests, `{}`)
	p := NewHTTPProvider("k", srv.URL, "gpt-4o", "openai", nil)

	_, err := p.Chat(context.Background(), conversation(), nil, schema.ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429: rate limit exceeded")
}

func TestRepairJSON(t *testing.T) {
	out, err := repairJSON(`{"table_name": "ORDERS"`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"table_name": "ORDERS"}, out)

	out, err = repairJSON("")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = repairJSON("not json")
	assert.Error(t, err)
}

func TestFindByModel(t *testing.T) {
	assert.Equal(t, "bedrock", FindByModel("us.anthropic.claude-sonnet-4-5-20250929-v1:0").Name)
	assert.Equal(t, "anthropic", FindByModel("claude-3-5-haiku").Name)
	assert.Equal(t, "openai", FindByModel("openai/gpt-4o").Name)
	assert.Nil(t, FindByModel("llama3"))
}

func TestNew_RequiresAPIKeyForHTTP(t *testing.T) {
	_, err := New(context.Background(), Params{ProviderName: "openai", DefaultModel: "gpt-4o"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	p, err := New(context.Background(), Params{ProviderName: "anthropic", DefaultModel: "claude-x", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPProvider{}, p)

	_, err = New(context.Background(), Params{ProviderName: "mystery", DefaultModel: "llama3"})
	assert.Error(t, err)
}

func TestConvertMessagesToAnthropic_UserTurnAfterToolResultsStaysSeparate(t *testing.T) {
	msgs := conversation()
	msgs.AddUser("Answer now.")

	out := convertMessagesToAnthropic(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, "user", out[2]["role"])
	assert.Equal(t, map[string]any{"role": "user", "content": "Answer now."}, out[3])
}
