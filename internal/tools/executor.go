package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/metadolphin/internal/metrics"
	"github.com/crystaldolphin/metadolphin/internal/schema"
	"github.com/crystaldolphin/metadolphin/internal/shared/llmutils"
)

// Executor runs tools from a ToolList in-process. It implements
// schema.Executor for the local tool mode and backs the MCP server.
type Executor struct {
	list *ToolList
}

var _ schema.Executor = (*Executor)(nil)

// NewExecutor wraps list. A nil list yields an executor with no tools.
func NewExecutor(list *ToolList) *Executor {
	if list == nil {
		list = NewToolList()
	}
	return &Executor{list: list}
}

// Definitions lists the available tools. It never fails for a local list.
func (e *Executor) Definitions(context.Context) ([]schema.ToolDefinition, error) {
	return e.list.Definitions(), nil
}

// Execute runs the named tool. Unknown tools and tool-level Go errors are
// returned as errors; domain failures arrive as "Error: " text from the tool.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t := e.list.Get(name)
	if t == nil {
		metrics.RecordToolCall(name, true)
		return "", fmt.Errorf("tool %q not found", name)
	}
	slog.Info("tool invoked", "tool", name, "args", llmutils.ArgsPreview(args, 200))

	out, err := t.Execute(ctx, args)
	metrics.RecordToolCall(name, err != nil || strings.HasPrefix(out, "Error:"))
	if err != nil {
		slog.Error("tool failed", "tool", name, "err", err)
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
