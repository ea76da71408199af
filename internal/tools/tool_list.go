package tools

import (
	"sort"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// ToolList holds a named set of tools. Unlike Registry it can be extended
// at runtime, e.g. with tools discovered from an MCP server.
type ToolList struct {
	tools map[string]schema.Tool
}

func NewToolList(ts ...schema.Tool) *ToolList {
	list := ToolList{tools: make(map[string]schema.Tool, len(ts))}
	for _, t := range ts {
		list.tools[t.Name()] = t
	}

	return &list
}

// Get returns the tool with the given name, or nil if not found.
func (r *ToolList) Get(name string) schema.Tool {
	return r.tools[name]
}

// Add registers a new tool, replacing any existing tool with the same name.
func (r *ToolList) Add(t schema.Tool) schema.Tool {
	r.tools[t.Name()] = t

	return t
}

// Len reports the number of tools in the list.
func (r *ToolList) Len() int { return len(r.tools) }

// Definitions returns every tool's wire description, sorted by name so the
// model sees a stable tool order across requests.
func (r *ToolList) Definitions() []schema.ToolDefinition {
	list := make([]schema.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, schema.DefinitionOf(t))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
