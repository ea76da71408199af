package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

const (
	columnEndpoint = "/integration/v2/column/"

	// maxColumnMatches caps SearchColumns results.
	maxColumnMatches = 30
)

// GetColumnMetadata returns the normalised columns of a table. With a
// resolvable table id it tries the column endpoint, the legacy attribute
// endpoint and the table detail's embedded columns; otherwise it falls back
// to name-based column queries.
func (g *Gateway) GetColumnMetadata(ctx context.Context, dsID int64, schema, table string) []Column {
	key := cacheKey("columns", dsID, schema, table)
	if cols, ok := cachedValue[[]Column](g, key); ok {
		return cols
	}

	records := func(endpoint string, params url.Values) strategy[[]record] {
		return strategy[[]record]{
			name: strings.Trim(endpoint, "/"),
			run: func(ctx context.Context) ([]record, bool) {
				raw, err := g.get(ctx, endpoint, params, "")
				if err != nil {
					return nil, false
				}
				rs := decodeList(raw)
				return rs, len(rs) > 0
			},
		}
	}

	var strategies []strategy[[]record]
	if id, ok := g.tableID(ctx, dsID, schema, table); ok {
		byID := url.Values{"table_id": {strconv.FormatInt(id, 10)}}
		strategies = append(strategies,
			records(columnEndpoint, byID),
			records("/api/v1/attribute/", byID),
			strategy[[]record]{
				name: "catalog/table detail",
				run: func(ctx context.Context) ([]record, bool) {
					raw, err := g.get(ctx, fmt.Sprintf("/catalog/table/%d/", id), nil, "")
					if err != nil {
						return nil, false
					}
					detail, ok := decodeObject(raw)
					if !ok {
						return nil, false
					}
					cols := detail.list("columns")
					return cols, len(cols) > 0
				},
			},
		)
	}
	for _, name := range []string{schema + "." + table, table} {
		strategies = append(strategies,
			records(columnEndpoint, url.Values{"ds_id": {dsParam(dsID)}, "table_name": {name}}))
	}

	found, ok := firstOf(ctx, "columns:"+key, strategies...)
	if !ok {
		slog.Warn("catalog: no columns found after trying all approaches", "schema", schema, "table", table)
		return nil
	}
	cols := make([]Column, 0, len(found))
	for _, r := range found {
		cols = append(cols, parseColumn(r))
	}
	g.responses.set(key, cols)
	return cols
}

// SearchColumns finds columns by name. A non-empty tableFilter keeps only
// columns whose qualified key contains it, case-insensitively.
func (g *Gateway) SearchColumns(ctx context.Context, column, tableFilter string) []Column {
	slog.Info("catalog: searching columns", "column", column, "table_filter", tableFilter)

	raw, err := g.get(ctx, columnEndpoint, url.Values{"name": {column}}, "")
	if err != nil {
		return nil
	}

	filter := strings.ToLower(tableFilter)
	var out []Column
	for _, r := range decodeList(raw) {
		key, _ := scalar(r["key"])
		if filter != "" && !strings.Contains(strings.ToLower(key), filter) {
			continue
		}
		c := parseColumn(r)
		c.Key = r.text("key")
		out = append(out, c)
		if len(out) == maxColumnMatches {
			break
		}
	}
	slog.Info("catalog: column search done", "column", column, "count", len(out))
	return out
}

func parseColumn(r record) Column {
	return Column{
		Name:        r.text("name", "title"),
		DataType:    r.text("column_type", "data_type", "type"),
		Description: r.stripped("description"),
		Title:       r.text("title"),
		Nullable:    r.text("nullable"),
	}
}
