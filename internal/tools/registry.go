package tools

import (
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// ToolName is the canonical name of a built-in tool.
type ToolName string

const (
	ToolListDataSources   ToolName = "list_data_sources"
	ToolListSchemas       ToolName = "list_schemas"
	ToolListTables        ToolName = "list_tables"
	ToolGetTableMetadata  ToolName = "get_table_metadata"
	ToolGetColumnMetadata ToolName = "get_column_metadata"
	ToolGetLineage        ToolName = "get_lineage"
	ToolSearchTable       ToolName = "search_table"
	ToolSearchSchema      ToolName = "search_schema"
	ToolSearchColumns     ToolName = "search_columns"
)

// CatalogToolNames lists the catalog tools, search tools first.
var CatalogToolNames = []ToolName{
	ToolSearchTable,
	ToolSearchSchema,
	ToolSearchColumns,
	ToolListDataSources,
	ToolListSchemas,
	ToolListTables,
	ToolGetTableMetadata,
	ToolGetColumnMetadata,
	ToolGetLineage,
}

// Registry holds a set of named tools and exposes them for execution.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	tools map[string]schema.Tool
}

// NewCatalogRegistry builds the registry of the nine catalog tools.
func NewCatalogRegistry(c Catalog) *Registry {
	b := NewRegistryBuilder()
	for _, t := range CatalogTools(c) {
		b.WithTool(t)
	}
	return b.Build()
}

// GetTool returns the tool with the given name, or nil.
func (r *Registry) GetTool(name ToolName) schema.Tool {
	return r.tools[string(name)]
}

// AllTools returns a mutable copy of the registered tools.
func (r *Registry) AllTools() *ToolList {
	list := &ToolList{tools: make(map[string]schema.Tool, len(r.tools))}
	for k, t := range r.tools {
		list.tools[k] = t
	}
	return list
}

// Len reports the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }
