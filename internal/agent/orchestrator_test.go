package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/metadolphin/internal/metrics"
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

func newConversation() schema.Messages {
	m := schema.NewMessages()
	m.AddUser("Who owns ORDERS?")
	return m
}

func TestGenerate_FirstRoundForcesToolUse(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		reply(text("`ORDERS` is owned by `data-eng`.")),
	}}
	exec := &fakeExecutor{}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, exec, catalogDefs())
	require.NoError(t, err)

	assert.Equal(t, "`ORDERS` is owned by `data-eng`.", res.Text)
	assert.Equal(t, metrics.OutcomeDone, res.Outcome)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, []string{"search_table"}, res.ToolsUsed)

	calls := p.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, schema.ToolChoiceAny, calls[0].opts.ToolChoice)
	assert.Equal(t, schema.ToolChoiceAuto, calls[1].opts.ToolChoice)
	assert.Equal(t, "test-model", calls[0].opts.Model)
	assert.Equal(t, DefaultMaxTokens, calls[0].opts.MaxTokens)

	// prompt, assistant tool call, tool results, final answer
	require.Equal(t, 4, conv.Len())
	results := conv.Messages[2]
	assert.Equal(t, schema.RoleTool, results.Role)
	assert.Equal(t, resultsNote, results.Text())
	assert.Equal(t, []schema.ToolResult{{CallID: "t1", Name: "search_table", Text: "`ORDERS` in `PUBLIC`"}}, results.ToolResults)
	assert.Equal(t, schema.RoleAssistant, conv.Messages[3].Role)
}

func TestGenerate_HallucinationGuard(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(text("ORDERS is owned by Alice."))}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, &fakeExecutor{}, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, RefusalMessage, res.Text)
	assert.Equal(t, metrics.OutcomeHallucinationBlocked, res.Outcome)
	assert.Len(t, p.recorded(), 1)
}

func TestGenerate_FailedToolStillCountsAsGrounding(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		reply(text("The catalog could not be reached.")),
	}}
	exec := &fakeExecutor{run: func(context.Context, string, map[string]any) (string, error) {
		return "", errors.New("connection refused")
	}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, exec, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, "The catalog could not be reached.", res.Text)

	got := conv.Messages[2].ToolResults
	require.Len(t, got, 1)
	assert.True(t, got[0].IsError)
	assert.Equal(t,
		"ERROR: Tool 'search_table' failed: connection refused. Do NOT guess the answer. "+
			"Tell the user the data could not be retrieved from the catalog.",
		got[0].Text)
}

func TestGenerate_WithoutToolsAnswersDirectly(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(text("hello"))}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, &fakeExecutor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text)

	calls := p.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, schema.ToolChoiceAuto, calls[0].opts.ToolChoice)
	assert.Empty(t, calls[0].tools)
}

func TestGenerate_SoftNudgeOnceThenForcedStop(t *testing.T) {
	round := 0
	p := &scriptedProvider{fallback: func(call chatCall) (schema.LLMResponse, error) {
		if call.tools == nil {
			return text("Partial answer from gathered data."), nil
		}
		round++
		return toolCalls(searchCall(fmt.Sprintf("t%d", round), "ORDERS")), nil
	}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{MaxRounds: 6, SoftLimitRound: 3}).
		Generate(context.Background(), &conv, &fakeExecutor{}, catalogDefs())
	require.NoError(t, err)

	assert.Equal(t, "Partial answer from gathered data.", res.Text)
	assert.Equal(t, metrics.OutcomeForcedStop, res.Outcome)
	assert.Equal(t, 7, res.Rounds)

	calls := p.recorded()
	require.Len(t, calls, 7, "six tool rounds plus the final tool-less call")
	for i, c := range calls[:6] {
		assert.NotEmpty(t, c.tools, "round %d offers tools", i+1)
	}
	assert.Nil(t, calls[6].tools)

	assert.Zero(t, countUser(calls[1].messages, nudgeText), "no nudge before the soft limit")
	last := calls[2].messages.Messages[calls[2].messages.Len()-1]
	assert.Equal(t, nudgeText, last.Text(), "nudge precedes round 3")
	assert.Equal(t, schema.ToolChoiceAuto, calls[2].opts.ToolChoice)
	assert.Equal(t, 1, countUser(conv, nudgeText), "nudge appears exactly once")
}

func TestGenerate_ForcedStopFallback(t *testing.T) {
	tests := map[string]step{
		"final call fails":      fail(errors.New("throttled")),
		"final call empty":      reply(text("   ")),
		"final call tools only": reply(toolCalls(searchCall("x", "ORDERS"))),
	}
	for name, final := range tests {
		t.Run(name, func(t *testing.T) {
			p := &scriptedProvider{fallback: func(call chatCall) (schema.LLMResponse, error) {
				if call.tools == nil {
					return final(call)
				}
				return toolCalls(searchCall("t", "ORDERS")), nil
			}}
			conv := newConversation()

			res, err := NewOrchestrator(p, Settings{MaxRounds: 2}).
				Generate(context.Background(), &conv, &fakeExecutor{}, catalogDefs())
			require.NoError(t, err)
			assert.Equal(t, ForcedStopMessage, res.Text)
			assert.Equal(t, metrics.OutcomeForcedStop, res.Outcome)
		})
	}
}

func TestGenerate_ParallelToolCalls(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(3)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	exec := &fakeExecutor{run: func(_ context.Context, name string, args map[string]any) (string, error) {
		arrived.Done()
		select {
		case <-all:
		case <-time.After(5 * time.Second):
			return "", errors.New("calls were serialised")
		}
		if args["table_name"] == "BAD" {
			return "", errors.New("boom")
		}
		return fmt.Sprintf("found `%s`", args["table_name"]), nil
	}}

	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("a", "ORDERS"), searchCall("b", "BAD"), searchCall("c", "USERS"))),
		reply(text("answer")),
	}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, exec, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Text)

	results := conv.Messages[2].ToolResults
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].CallID, results[1].CallID, results[2].CallID})
	assert.Equal(t, "found `ORDERS`", results[0].Text)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Text, "boom")
	assert.Equal(t, "found `USERS`", results[2].Text)
}

func TestGenerate_ModelErrorPropagates(t *testing.T) {
	cause := errors.New("bedrock unavailable")
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		fail(cause),
	}}
	conv := newConversation()

	_, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, &fakeExecutor{}, catalogDefs())
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "round 2")
	assert.Equal(t, 3, conv.Len(), "turns gathered before the failure are kept")
}

func TestGenerate_NilExecutorOffersNoTools(t *testing.T) {
	p := &scriptedProvider{steps: []step{reply(text("plain"))}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, nil, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Text)
	assert.Empty(t, p.recorded()[0].tools)
}

func TestSettingsFrom(t *testing.T) {
	s := SettingsFrom(Settings{})
	assert.Equal(t, DefaultMaxRounds, s.MaxRounds)
	assert.Equal(t, DefaultSoftLimitRound, s.SoftLimitRound)
	assert.Equal(t, DefaultMaxTokens, s.MaxTokens)

	s = SettingsFrom(Settings{MaxRounds: 10, SoftLimitRound: 10})
	assert.Equal(t, 5, s.SoftLimitRound)

	s = SettingsFrom(Settings{MaxRounds: 10})
	assert.Equal(t, 5, s.SoftLimitRound, "default soft limit above the ceiling is halved")

	s = SettingsFrom(Settings{MaxRounds: 40, SoftLimitRound: 12, Model: "m"})
	assert.Equal(t, Settings{Model: "m", MaxTokens: DefaultMaxTokens, MaxRounds: 40, SoftLimitRound: 12}, s)
}

func TestGenerate_FinalAnswerIsReturnedVerbatim(t *testing.T) {
	answer := "<think>check owner</think>\n`ORDERS` is owned by `data-eng`.\n"
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		reply(text(answer)),
	}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, &fakeExecutor{}, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, answer, res.Text)
}

func TestGenerate_PanickingToolBecomesErrorResult(t *testing.T) {
	exec := &fakeExecutor{run: func(_ context.Context, _ string, args map[string]any) (string, error) {
		if args["table_name"] == "BAD" {
			panic("nil catalog client")
		}
		return "found", nil
	}}
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("a", "BAD"), searchCall("b", "ORDERS"))),
		reply(text("partial answer")),
	}}
	conv := newConversation()

	res, err := NewOrchestrator(p, Settings{}).Generate(context.Background(), &conv, exec, catalogDefs())
	require.NoError(t, err)
	assert.Equal(t, "partial answer", res.Text)

	results := conv.Messages[2].ToolResults
	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Text, "ERROR: Tool 'search_table' failed: panic:")
	assert.Equal(t, schema.ToolResult{CallID: "b", Name: "search_table", Text: "found"}, results[1])
}
