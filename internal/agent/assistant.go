package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crystaldolphin/metadolphin/internal/catalog"
	"github.com/crystaldolphin/metadolphin/internal/schema"
	"github.com/crystaldolphin/metadolphin/internal/shared/llmutils"
)

// UnavailableMessage is returned, without calling the model, when no tools
// could be discovered. Answering without them would mean answering from memory.
const UnavailableMessage = "I'm unable to connect to the metadata catalog right now, " +
	"so I can't look up accurate information. " +
	"Please try again in a moment. If the problem persists, " +
	"check that the MCP server is running."

// AssistantOptions configures an Assistant.
type AssistantOptions struct {
	DiscoveryRetries int           // extra discovery attempts after the first
	RetryPause       time.Duration // pause between discovery attempts
	CallBudget       int           // upstream catalog calls per question; <= 0 is unbounded
}

// Assistant answers one question at a time: it discovers tools, renders the
// prompt and hands the conversation to the Orchestrator.
type Assistant struct {
	orchestrator *Orchestrator
	exec         schema.Executor
	opts         AssistantOptions
}

func NewAssistant(orchestrator *Orchestrator, exec schema.Executor, opts AssistantOptions) *Assistant {
	if opts.DiscoveryRetries < 0 {
		opts.DiscoveryRetries = 0
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = time.Second
	}
	return &Assistant{orchestrator: orchestrator, exec: exec, opts: opts}
}

// Answer answers question given the flattened thread history. Only
// model-invocation failures are returned as errors.
func (a *Assistant) Answer(ctx context.Context, question, history string) (Response, error) {
	slog.Info("Answering question", "question", llmutils.Truncate(question, 120))

	tools := a.discover(ctx)
	if len(tools) == 0 {
		slog.Error("No tools available, refusing to answer")
		return NewResponse(question, UnavailableMessage, nil), nil
	}

	prompt, err := BuildPrompt(history, question)
	if err != nil {
		return Response{}, err
	}
	conversation := schema.NewMessages()
	conversation.AddUser(prompt)

	ctx = catalog.WithCallBudget(ctx, a.opts.CallBudget)
	res, err := a.orchestrator.Generate(ctx, &conversation, a.exec, tools)
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}
	return NewResponse(question, res.Text, res.ToolsUsed), nil
}

// discover fetches the tool definitions, retrying a failed or empty listing.
func (a *Assistant) discover(ctx context.Context) []schema.ToolDefinition {
	attempts := a.opts.DiscoveryRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		defs, err := a.exec.Definitions(ctx)
		switch {
		case err != nil:
			slog.Error("Failed to fetch tools", "attempt", attempt, "of", attempts, "err", err)
		case len(defs) == 0:
			slog.Warn("Tool listing is empty", "attempt", attempt, "of", attempts)
		default:
			slog.Debug("Tools loaded", "count", len(defs))
			return defs
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.opts.RetryPause):
			}
		}
	}
	return nil
}
