package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crystaldolphin/metadolphin/internal/catalog"
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// Catalog is the read-only view of the metadata gateway the tools need.
// *catalog.Gateway satisfies it.
type Catalog interface {
	Validated() bool
	ListDataSources(ctx context.Context) []catalog.DataSource
	ListSchemas(ctx context.Context, dsID int64) []catalog.Schema
	ListTables(ctx context.Context, dsID int64, schemaName string) []catalog.Table
	GetTableMetadata(ctx context.Context, dsID int64, schemaName, table string) (catalog.TableDetail, bool)
	GetColumnMetadata(ctx context.Context, dsID int64, schemaName, table string) []catalog.Column
	GetLineage(ctx context.Context, dsID int64, schemaName, table string) catalog.Lineage
	SearchTable(ctx context.Context, name string) []catalog.TableMatch
	SearchSchema(ctx context.Context, keyword string) []catalog.Schema
	SearchColumns(ctx context.Context, column, tableFilter string) []catalog.Column
}

const accessHint = " The catalog credentials could not be validated, so this may be a permission problem rather than a missing object."

// catalogTool adapts one gateway query to schema.Tool. run never fails:
// every problem is rendered as an "Error: " text the model can reason about.
type catalogTool struct {
	name        ToolName
	description string
	params      json.RawMessage
	run         func(ctx context.Context, args map[string]any) string
}

func (t *catalogTool) Name() string                { return string(t.name) }
func (t *catalogTool) Description() string         { return t.description }
func (t *catalogTool) Parameters() json.RawMessage { return t.params }

func (t *catalogTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	return t.run(ctx, params), nil
}

// CatalogTools returns the nine catalog tools backed by c.
func CatalogTools(c Catalog) []schema.Tool {
	ct := catalogTools{c: c}
	return []schema.Tool{
		ct.listDataSources(),
		ct.listSchemas(),
		ct.listTables(),
		ct.getTableMetadata(),
		ct.getColumnMetadata(),
		ct.getLineage(),
		ct.searchTable(),
		ct.searchSchema(),
		ct.searchColumns(),
	}
}

type catalogTools struct {
	c Catalog
}

// notFound builds an empty-result error, adding the access hint while the
// catalog session is unvalidated.
func (ct catalogTools) notFound(format string, a ...any) string {
	msg := errText(format, a...)
	if !ct.c.Validated() {
		msg += accessHint
	}
	return msg
}

const tableParams = `{
	"type": "object",
	"properties": {
		"data_source_id": {"type": "integer", "description": "The catalog data source ID"},
		"schema_name": {"type": "string", "description": "Name of the schema"},
		"table_name": {"type": "string", "description": "Name of the table"}
	},
	"required": ["data_source_id", "schema_name", "table_name"]
}`

// tableArgs validates the (data_source_id, schema_name, table_name) triple.
// A non-empty problem is the error text to return to the model.
func tableArgs(args map[string]any) (dsID int64, schemaName, table, problem string) {
	dsID, err := intArg(args, "data_source_id")
	if err != nil {
		return 0, "", "", errText("data_source_id must be an integer")
	}
	schemaName, table = stringArg(args, "schema_name"), stringArg(args, "table_name")
	if schemaName == "" || table == "" {
		return 0, "", "", errText("schema_name and table_name are required")
	}
	return dsID, schemaName, table, ""
}

func (ct catalogTools) listDataSources() *catalogTool {
	return &catalogTool{
		name:        ToolListDataSources,
		description: "List all available data sources in the catalog with their ID, name, database type and description.",
		params:      json.RawMessage(`{"type": "object", "properties": {}}`),
		run: func(ctx context.Context, _ map[string]any) string {
			list := ct.c.ListDataSources(ctx)
			if len(list) == 0 {
				return ct.notFound("No data sources found or access denied")
			}
			return formatDataSources(list)
		},
	}
}

func (ct catalogTools) listSchemas() *catalogTool {
	return &catalogTool{
		name:        ToolListSchemas,
		description: "List all schemas in a specific data source. Use the data_source_id from list_data_sources.",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"data_source_id": {"type": "integer", "description": "The catalog data source ID (from list_data_sources)"}
			},
			"required": ["data_source_id"]
		}`),
		run: func(ctx context.Context, args map[string]any) string {
			dsID, err := intArg(args, "data_source_id")
			if err != nil {
				return errText("data_source_id must be an integer")
			}
			list := ct.c.ListSchemas(ctx, dsID)
			if len(list) == 0 {
				return ct.notFound("No schemas found for data source %d or access denied", dsID)
			}
			return formatSchemas(list, dsID)
		},
	}
}

func (ct catalogTools) listTables() *catalogTool {
	return &catalogTool{
		name:        ToolListTables,
		description: "List all tables in a specific schema with their type.",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"data_source_id": {"type": "integer", "description": "The catalog data source ID"},
				"schema_name": {"type": "string", "description": "Name of the schema"}
			},
			"required": ["data_source_id", "schema_name"]
		}`),
		run: func(ctx context.Context, args map[string]any) string {
			dsID, err := intArg(args, "data_source_id")
			if err != nil {
				return errText("data_source_id must be an integer")
			}
			schemaName := stringArg(args, "schema_name")
			if schemaName == "" {
				return errText("schema_name is required")
			}
			list := ct.c.ListTables(ctx, dsID, schemaName)
			if len(list) == 0 {
				return ct.notFound("No tables found in `%s` or access denied", schemaName)
			}
			return formatTables(list, schemaName)
		},
	}
}

func (ct catalogTools) getTableMetadata() *catalogTool {
	return &catalogTool{
		name: ToolGetTableMetadata,
		description: "Get detailed metadata for a specific table: description, owner, steward, " +
			"certification, trust status and last update time.",
		params: json.RawMessage(tableParams),
		run: func(ctx context.Context, args map[string]any) string {
			dsID, schemaName, table, problem := tableArgs(args)
			if problem != "" {
				return problem
			}
			detail, ok := ct.c.GetTableMetadata(ctx, dsID, schemaName, table)
			if !ok {
				return ct.notFound("Table `%s`.`%s` not found or access denied", schemaName, table)
			}
			return formatTableDetail(detail)
		},
	}
}

func (ct catalogTools) getColumnMetadata() *catalogTool {
	return &catalogTool{
		name:        ToolGetColumnMetadata,
		description: "Get column definitions for a table: column name, data type and description.",
		params:      json.RawMessage(tableParams),
		run: func(ctx context.Context, args map[string]any) string {
			dsID, schemaName, table, problem := tableArgs(args)
			if problem != "" {
				return problem
			}
			cols := ct.c.GetColumnMetadata(ctx, dsID, schemaName, table)
			if len(cols) == 0 {
				return ct.notFound("No columns found for `%s`.`%s`. "+
					"The table may not exist in this schema, or access is denied. "+
					"Ask the user to verify the exact schema and table name.", schemaName, table)
			}
			return formatColumns(cols, fmt.Sprintf("Columns for `%s`.`%s`:", schemaName, table))
		},
	}
}

func (ct catalogTools) getLineage() *catalogTool {
	return &catalogTool{
		name: ToolGetLineage,
		description: "Get data lineage for a table: upstream and downstream tables and any recorded " +
			"transformation logic. Missing lineage is reported as unknown, never inferred.",
		params: json.RawMessage(tableParams),
		run: func(ctx context.Context, args map[string]any) string {
			dsID, schemaName, table, problem := tableArgs(args)
			if problem != "" {
				return problem
			}
			l := ct.c.GetLineage(ctx, dsID, schemaName, table)
			if !l.Upstream.Known() && !l.Downstream.Known() && !known(l.TransformationContext) {
				return ct.notFound("Lineage not available for `%s`.`%s`", schemaName, table)
			}
			return formatLineage(l, table)
		},
	}
}

func (ct catalogTools) searchTable() *catalogTool {
	return &catalogTool{
		name: ToolSearchTable,
		description: "Search for a table by name across ALL data sources. This is the fastest way to " +
			"find a table when you know its name but not its data source or schema. " +
			"Use this BEFORE browsing data sources manually.",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_name": {"type": "string", "description": "The table name to search for, e.g. ACCT_CONFORMED_SPEND_1ST_PARTY"}
			},
			"required": ["table_name"]
		}`),
		run: func(ctx context.Context, args map[string]any) string {
			name := stringArg(args, "table_name")
			if name == "" {
				return errText("table_name is required")
			}
			list := ct.c.SearchTable(ctx, name)
			if len(list) == 0 {
				return ct.notFound("No tables matching `%s` found across any data source. "+
					"The table may exist under a different name, or the API token may not have access to it. "+
					"Ask the user for the exact table name as it appears in the catalog, the data source name, "+
					"or the catalog URL (e.g. /table/12345/).", name)
			}
			return formatTableMatches(list)
		},
	}
}

func (ct catalogTools) searchSchema() *catalogTool {
	return &catalogTool{
		name: ToolSearchSchema,
		description: "Search for schemas whose name contains a keyword (case-insensitive) across ALL data sources. " +
			"Use this when you know a database or schema name but not which data source it belongs to.",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"keyword": {"type": "string", "description": "Keyword to search for in schema names"}
			},
			"required": ["keyword"]
		}`),
		run: func(ctx context.Context, args map[string]any) string {
			keyword := stringArg(args, "keyword")
			if keyword == "" {
				return errText("keyword is required")
			}
			list := ct.c.SearchSchema(ctx, keyword)
			if len(list) == 0 {
				return ct.notFound("No schemas matching `%s` found across any data source. "+
					"Ask the user for the exact schema or database name, or which data source it belongs to.", keyword)
			}
			return formatSchemaMatches(list)
		},
	}
}

func (ct catalogTools) searchColumns() *catalogTool {
	return &catalogTool{
		name: ToolSearchColumns,
		description: "Search for columns by name across the catalog, optionally restricted to tables " +
			"whose qualified name contains table_name.",
		params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"column_name": {"type": "string", "description": "The column name to search for, e.g. TXN_DTTM"},
				"table_name": {"type": "string", "description": "Optional table name to filter results"}
			},
			"required": ["column_name"]
		}`),
		run: func(ctx context.Context, args map[string]any) string {
			column := stringArg(args, "column_name")
			if column == "" {
				return errText("column_name is required")
			}
			cols := ct.c.SearchColumns(ctx, column, stringArg(args, "table_name"))
			if len(cols) == 0 {
				return ct.notFound("No columns matching `%s` found", column)
			}
			return formatColumns(cols, fmt.Sprintf("Columns matching `%s`:", column))
		},
	}
}
