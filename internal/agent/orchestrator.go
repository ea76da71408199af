package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/metadolphin/internal/metrics"
	"github.com/crystaldolphin/metadolphin/internal/schema"
	"github.com/crystaldolphin/metadolphin/internal/shared/llmutils"
)

const (
	DefaultMaxRounds      = 50
	DefaultSoftLimitRound = 25
	DefaultMaxTokens      = 4096
)

const (
	nudgeText = "You are running low on tool calls. " +
		"Please provide your best answer NOW using the data you have already gathered. " +
		"If you could not find the exact resource, explain what you found and what is missing."

	resultsNote = "Above are the tool results. " +
		"Only show the information that is RELEVANT to the user's question. " +
		"Do NOT dump all tool output. Be concise."

	toolErrorFormat = "ERROR: Tool '%s' failed: %v. Do NOT guess the answer. " +
		"Tell the user the data could not be retrieved from the catalog."

	// RefusalMessage replaces an answer the model gave without consulting any tool.
	RefusalMessage = "I was unable to look up the requested information from the data catalog. Please try again."

	// ForcedStopMessage is returned when the round ceiling is hit and the final
	// tool-less call produces nothing.
	ForcedStopMessage = "I encountered an issue processing your request (too many tool calls). " +
		"Please try rephrasing your question."
)

// Settings configures an Orchestrator.
type Settings struct {
	Model          string
	MaxTokens      int
	Temperature    float64
	MaxRounds      int
	SoftLimitRound int
}

// SettingsFrom normalises s: zero values take the defaults, and a soft limit
// that is not below the ceiling moves to half of it.
func SettingsFrom(s Settings) Settings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = DefaultMaxRounds
	}
	if s.SoftLimitRound <= 0 {
		s.SoftLimitRound = DefaultSoftLimitRound
	}
	if s.SoftLimitRound >= s.MaxRounds {
		s.SoftLimitRound = s.MaxRounds / 2
	}
	return s
}

// Result is the outcome of one Generate call.
type Result struct {
	Text      string
	Rounds    int
	ToolsUsed []string // tool names in call order, repeats included
	Outcome   string   // one of the metrics.Outcome* values
}

// Orchestrator drives the model through rounds of tool calls until it
// answers, or until the round ceiling forces a final tool-less call.
type Orchestrator struct {
	provider schema.LLMProvider
	settings Settings
}

func NewOrchestrator(provider schema.LLMProvider, settings Settings) *Orchestrator {
	settings = SettingsFrom(settings)
	if settings.Model == "" {
		settings.Model = provider.DefaultModel()
	}
	return &Orchestrator{provider: provider, settings: settings}
}

// Generate runs the round loop over conversation, which it only appends to.
//
// Round 1 forces a tool call when tools are offered. The nudge turn is added
// once, right before round SoftLimitRound. An answer given without any tool
// call while tools were offered is replaced by RefusalMessage. Errors from
// the model are returned unchanged in meaning; tool failures never are.
func (o *Orchestrator) Generate(ctx context.Context, conversation *schema.Messages, exec schema.Executor, tools []schema.ToolDefinition) (Result, error) {
	if exec == nil {
		tools = nil
	}
	var (
		res       Result
		toolsUsed bool
	)

	for round := 1; ; round++ {
		res.Rounds = round
		if round > o.settings.MaxRounds {
			res.Text = o.forceStop(ctx, conversation)
			res.Outcome = metrics.OutcomeForcedStop
			metrics.RecordGeneration(round, res.Outcome)
			return res, nil
		}

		choice := schema.ToolChoiceAuto
		switch {
		case round == 1 && len(tools) > 0:
			choice = schema.ToolChoiceAny
			slog.Debug("Forcing tool use on first round")
		case round == o.settings.SoftLimitRound:
			conversation.AddUser(nudgeText)
			slog.Info("Injected soft-limit nudge", "round", round)
		}

		resp, err := o.provider.Chat(ctx, *conversation, tools, o.options(choice))
		if err != nil {
			metrics.RecordGeneration(round, metrics.OutcomeModelError)
			return res, fmt.Errorf("model call in round %d: %w", round, err)
		}

		if resp.HasToolCalls() && len(tools) > 0 {
			toolsUsed = true
			calls := make([]schema.ToolCall, 0, len(resp.ToolCalls))
			for _, tc := range resp.ToolCalls {
				calls = append(calls, schema.ToolCall{ID: tc.Id, Name: tc.Name, Arguments: tc.Arguments})
				res.ToolsUsed = append(res.ToolsUsed, tc.Name)
			}
			conversation.AddAssistant(resp.Content, calls)
			slog.Info("Tool round", "round", round, "calls", llmutils.ToolHint(resp.ToolCalls))

			conversation.AddToolResults(o.runTools(ctx, exec, resp.ToolCalls), resultsNote)
			continue
		}

		conversation.AddAssistant(resp.Content, nil)
		if len(tools) > 0 && !toolsUsed {
			slog.Error("Hallucination guard: model answered without calling any tool, blocking response", "round", round)
			res.Text = RefusalMessage
			res.Outcome = metrics.OutcomeHallucinationBlocked
			metrics.RecordGeneration(round, res.Outcome)
			return res, nil
		}

		res.Text = resp.Text()
		res.Outcome = metrics.OutcomeDone
		metrics.RecordGeneration(round, res.Outcome)
		slog.Info("Model answered", "rounds", round, "length", len(res.Text))
		return res, nil
	}
}

func (o *Orchestrator) options(choice schema.ToolChoice) schema.ChatOptions {
	return schema.NewChatOptions(o.settings.Model, o.settings.MaxTokens, o.settings.Temperature, choice)
}

// runTools executes every call of one round concurrently. Each goroutine owns
// its result slot and never returns an error, so one failing call cannot
// cancel its siblings.
func (o *Orchestrator) runTools(ctx context.Context, exec schema.Executor, calls []schema.ToolCallRequest) []schema.ToolResult {
	results := make([]schema.ToolResult, len(calls))
	if len(calls) > 1 {
		slog.Debug("Executing tools in parallel", "count", len(calls))
	}

	var g errgroup.Group
	for i, tc := range calls {
		g.Go(func() error {
			out := schema.ToolResult{CallID: tc.Id, Name: tc.Name}
			text, err := execute(ctx, exec, tc)
			if err != nil {
				slog.Error("Tool execution failed", "tool", tc.Name, "err", err)
				out.Text = fmt.Sprintf(toolErrorFormat, tc.Name, err)
				out.IsError = true
			} else {
				slog.Debug("Tool succeeded", "tool", tc.Name, "result", llmutils.Truncate(text, 300))
				out.Text = text
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// execute runs one call, turning a panic inside the tool into its error.
func execute(ctx context.Context, exec schema.Executor, tc schema.ToolCallRequest) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "tool", tc.Name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return exec.Execute(ctx, tc.Name, tc.Arguments)
}

// forceStop makes one last call without tools so the model has to answer
// from what it already gathered.
func (o *Orchestrator) forceStop(ctx context.Context, conversation *schema.Messages) string {
	slog.Error("Tool use exceeded the round ceiling, forcing stop", "maxRounds", o.settings.MaxRounds)

	resp, err := o.provider.Chat(ctx, *conversation, nil, o.options(schema.ToolChoiceAuto))
	if err != nil {
		slog.Error("Final tool-less call failed", "err", err)
		return ForcedStopMessage
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return ForcedStopMessage
	}
	conversation.AddAssistant(resp.Content, nil)
	return text
}
