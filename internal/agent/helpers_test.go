package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

type chatCall struct {
	messages schema.Messages
	tools    []schema.ToolDefinition
	opts     schema.ChatOptions
}

type step func(call chatCall) (schema.LLMResponse, error)

// scriptedProvider answers the i-th Chat call with steps[i], and every call
// past the script with fallback.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	fallback step
	calls    []chatCall
}

func (p *scriptedProvider) Chat(_ context.Context, messages schema.Messages, tools []schema.ToolDefinition, opts schema.ChatOptions) (schema.LLMResponse, error) {
	p.mu.Lock()
	call := chatCall{messages: messages.Clone(), tools: tools, opts: opts}
	p.calls = append(p.calls, call)
	i := len(p.calls) - 1
	next := p.fallback
	if i < len(p.steps) {
		next = p.steps[i]
	}
	p.mu.Unlock()

	if next == nil {
		return text("done"), nil
	}
	return next(call)
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

func (p *scriptedProvider) recorded() []chatCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chatCall(nil), p.calls...)
}

func text(s string) schema.LLMResponse {
	return schema.LLMResponse{Content: &s, FinishReason: "end_turn"}
}

func toolCalls(calls ...schema.ToolCallRequest) schema.LLMResponse {
	return schema.LLMResponse{ToolCalls: calls, FinishReason: "tool_use"}
}

func reply(r schema.LLMResponse) step {
	return func(chatCall) (schema.LLMResponse, error) { return r, nil }
}

func fail(err error) step {
	return func(chatCall) (schema.LLMResponse, error) { return schema.LLMResponse{}, err }
}

func searchCall(id, table string) schema.ToolCallRequest {
	return schema.ToolCallRequest{Id: id, Name: "search_table", Arguments: map[string]any{"table_name": table}}
}

// fakeExecutor serves a fixed tool list and delegates execution to run.
type fakeExecutor struct {
	defs    []schema.ToolDefinition
	defsErr []error // per Definitions call; nil entries succeed

	run func(ctx context.Context, name string, args map[string]any) (string, error)

	mu        sync.Mutex
	defsCalls int
	executed  []string
}

func (f *fakeExecutor) Definitions(context.Context) ([]schema.ToolDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.defsCalls
	f.defsCalls++
	if i < len(f.defsErr) && f.defsErr[i] != nil {
		return nil, f.defsErr[i]
	}
	return f.defs, nil
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.executed = append(f.executed, name)
	f.mu.Unlock()
	if f.run == nil {
		return "`ORDERS` in `PUBLIC`", nil
	}
	return f.run(ctx, name, args)
}

func catalogDefs() []schema.ToolDefinition {
	return []schema.ToolDefinition{{
		Name:        "search_table",
		Description: "Find a table by name",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"table_name":{"type":"string"}},"required":["table_name"]}`),
	}}
}

// countUser counts the user turns whose text equals s.
func countUser(m schema.Messages, s string) int {
	n := 0
	for _, msg := range m.Messages {
		if msg.Role == schema.RoleUser && msg.Text() == s {
			n++
		}
	}
	return n
}
