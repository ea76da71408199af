package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/catalog"
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

func newAssistant(p schema.LLMProvider, exec schema.Executor, opts AssistantOptions) *Assistant {
	if opts.RetryPause == 0 {
		opts.RetryPause = time.Millisecond
	}
	return NewAssistant(NewOrchestrator(p, Settings{}), exec, opts)
}

func TestAnswer_NoToolsRefusesWithoutCallingModel(t *testing.T) {
	p := &scriptedProvider{}
	down := errors.New("mcp down")
	exec := &fakeExecutor{defs: catalogDefs(), defsErr: []error{down, down, down}}

	resp, err := newAssistant(p, exec, AssistantOptions{DiscoveryRetries: 2}).
		Answer(context.Background(), "Who owns ORDERS?", "")
	require.NoError(t, err)

	assert.Equal(t, UnavailableMessage, resp.Answer)
	assert.Equal(t, "Who owns ORDERS?", resp.Question)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 3, exec.defsCalls, "first attempt plus two retries")
	assert.Empty(t, p.recorded())
}

func TestAnswer_EmptyListingCountsAsUnavailable(t *testing.T) {
	p := &scriptedProvider{}
	exec := &fakeExecutor{}

	resp, err := newAssistant(p, exec, AssistantOptions{}).Answer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, UnavailableMessage, resp.Answer)
	assert.Equal(t, 1, exec.defsCalls)
}

func TestAnswer_DiscoveryRecovers(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		reply(text("`ORDERS` lives in `PUBLIC`.")),
	}}
	exec := &fakeExecutor{defs: catalogDefs(), defsErr: []error{errors.New("starting")}}

	resp, err := newAssistant(p, exec, AssistantOptions{DiscoveryRetries: 2}).
		Answer(context.Background(), "Where is ORDERS?", "")
	require.NoError(t, err)
	assert.Equal(t, "`ORDERS` lives in `PUBLIC`.", resp.Answer)
	assert.Equal(t, 2, exec.defsCalls)
}

func TestAnswer_PromptCarriesHistoryAndQuestion(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"), searchCall("t2", "ORDERS_V2"))),
		reply(toolCalls(searchCall("t3", "ORDERS"))),
		reply(text("done")),
	}}
	exec := &fakeExecutor{defs: catalogDefs()}

	resp, err := newAssistant(p, exec, AssistantOptions{}).
		Answer(context.Background(), "And its owner?", "User: where is ORDERS?\nAssistant: in `PUBLIC`")
	require.NoError(t, err)

	_, err = uuid.Parse(resp.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"search_table"}, resp.Sources, "sources are distinct tool names")

	first := p.recorded()[0].messages
	require.Equal(t, 1, first.Len())
	prompt := first.Messages[0].Text()
	assert.Contains(t, prompt, "Chat History:\nUser: where is ORDERS?\nAssistant: in `PUBLIC`")
	assert.Contains(t, prompt, "Question:\nAnd its owner?")
}

func TestAnswer_ModelErrorIsReturned(t *testing.T) {
	p := &scriptedProvider{steps: []step{fail(errors.New("AccessDeniedException"))}}
	exec := &fakeExecutor{defs: catalogDefs()}

	_, err := newAssistant(p, exec, AssistantOptions{}).Answer(context.Background(), "q", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
}

func TestAnswer_AttachesCallBudget(t *testing.T) {
	var remaining int64
	exec := &fakeExecutor{defs: catalogDefs(), run: func(ctx context.Context, _ string, _ map[string]any) (string, error) {
		remaining = catalog.RemainingCalls(ctx)
		return "ok", nil
	}}
	p := &scriptedProvider{steps: []step{
		reply(toolCalls(searchCall("t1", "ORDERS"))),
		reply(text("done")),
	}}

	_, err := newAssistant(p, exec, AssistantOptions{CallBudget: 150}).Answer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.EqualValues(t, 150, remaining)
}

func TestFormatHistory(t *testing.T) {
	turns := []bus.Turn{
		{Text: "one"},
		{Text: "two", FromBot: true},
		{Text: "three"},
	}
	assert.Equal(t, "User: one\nAssistant: two\nUser: three", FormatHistory(turns, 0))
	assert.Equal(t, "Assistant: two\nUser: three", FormatHistory(turns, 2))
	assert.Empty(t, FormatHistory(nil, 10))
}

func TestBuildPrompt(t *testing.T) {
	out, err := BuildPrompt("", "Which tables have TXN_DTTM?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "You are a data catalog assistant."))
	assert.Contains(t, out, "Question:\nWhich tables have TXN_DTTM?")
	assert.NotContains(t, out, "{{")
}

func TestNewResponse(t *testing.T) {
	r := NewResponse("q", "a", []string{"search_table", "get_lineage", "search_table"})
	assert.Equal(t, []string{"search_table", "get_lineage"}, r.Sources)
	assert.NotEqual(t, r.ID, NewResponse("q", "a", nil).ID)
	assert.NotNil(t, NewResponse("q", "a", nil).Sources)
}
