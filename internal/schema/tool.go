// Package schema contains the core contracts shared across metadolphin packages.
// Concrete implementations live in their respective packages; this package is the
// single canonical source of truth for every interface definition.
package schema

import (
	"context"
	"encoding/json"
)

// Tool is the interface all LLM-callable tools must satisfy.
// Catalog tools and MCP-wrapped tools both implement this interface.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema (as raw JSON bytes) for this tool's parameters.
	Parameters() json.RawMessage
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// ToolDefinition is the wire description of a tool: {name, description, inputSchema}.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	InputSchema json.RawMessage `json:"inputSchema" yaml:"-"`
}

// DefinitionOf builds the wire description of t.
func DefinitionOf(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}
}

// Executor runs tools by name. The orchestrator reaches the catalog only
// through an Executor, whether the tools are in-process or behind MCP.
type Executor interface {
	// Definitions lists the tools currently available.
	Definitions(ctx context.Context) ([]ToolDefinition, error)
	// Execute runs the named tool and returns its single text payload.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}
