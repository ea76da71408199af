package catalog

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

const tableEndpoint = "/integration/v2/table/"

func dsParam(dsID int64) string { return strconv.FormatInt(dsID, 10) }

// ListTables lists the tables of a schema.
func (g *Gateway) ListTables(ctx context.Context, dsID int64, schema string) []Table {
	params := url.Values{"ds_id": {dsParam(dsID)}, "schema_name": {schema}}
	raw, err := g.get(ctx, tableEndpoint, params, cacheKey("tables", dsID, schema))
	if err != nil {
		slog.Warn("catalog: no tables found", "ds_id", dsID, "schema", schema)
		return nil
	}
	records := decodeList(raw)
	out := make([]Table, 0, len(records))
	for _, r := range records {
		out = append(out, Table{
			Name:       r.text("name"),
			Type:       r.text("table_type"),
			RowCount:   r.text("number_of_rows"),
			Popularity: r.text("popularity"),
		})
	}
	return out
}

// GetTableMetadata returns the governance detail of a table.
func (g *Gateway) GetTableMetadata(ctx context.Context, dsID int64, schema, table string) (TableDetail, bool) {
	params := url.Values{"ds_id": {dsParam(dsID)}, "schema_name": {schema}, "name": {table}}
	raw, err := g.get(ctx, tableEndpoint, params, cacheKey("table_meta", dsID, schema, table))
	if err != nil {
		return TableDetail{}, false
	}
	records := decodeList(raw)
	if len(records) == 0 {
		slog.Warn("catalog: table not found", "ds_id", dsID, "schema", schema, "table", table)
		return TableDetail{}, false
	}

	r := records[0]
	trust := r.object("trust_flags")
	return TableDetail{
		Name:          r.text("name"),
		Description:   r.stripped("description"),
		Owner:         r.text("owner"),
		Steward:       r.text("steward"),
		Certification: trust.text("certification"),
		TrustStatus:   trust.text("endorsement"),
		LastUpdated:   r.text("ts_updated"),
	}, true
}

// tableID resolves a table's catalog id, consulting the dedicated identity
// cache first. The strategies narrow progressively less: exact schema, any
// schema in the data source, then any data source.
func (g *Gateway) tableID(ctx context.Context, dsID int64, schema, table string) (int64, bool) {
	key := cacheKey("table_id", dsID, schema, table)
	if id, ok := g.tableIDs.get(key); ok {
		slog.Debug("catalog: table id cache hit", "key", key)
		return id, true
	}

	firstID := func(params url.Values) strategy[int64] {
		return strategy[int64]{
			name: "table?" + params.Encode(),
			run: func(ctx context.Context) (int64, bool) {
				raw, err := g.get(ctx, tableEndpoint, params, "")
				if err != nil {
					return 0, false
				}
				records := decodeList(raw)
				if len(records) == 0 {
					return 0, false
				}
				return records[0].id()
			},
		}
	}

	crossSource := strategy[int64]{
		name: "cross-data-source",
		run: func(ctx context.Context) (int64, bool) {
			raw, err := g.get(ctx, tableEndpoint, url.Values{"name": {table}}, "")
			if err != nil {
				return 0, false
			}
			records := decodeList(raw)
			for _, r := range records {
				name, _ := scalar(r["name"])
				if strings.EqualFold(name, table) {
					if id, ok := r.id(); ok {
						slog.Info("catalog: table found via cross-data-source search",
							"table_id", id, "ds_id", r.text("ds_id"), "schema", r.text("schema_name"))
						return id, true
					}
				}
			}
			if len(records) == 0 {
				return 0, false
			}
			return records[0].id()
		},
	}

	id, ok := firstOf(ctx, "table_id:"+key,
		firstID(url.Values{"ds_id": {dsParam(dsID)}, "schema_name": {schema}, "name": {table}}),
		firstID(url.Values{"ds_id": {dsParam(dsID)}, "name": {table}}),
		crossSource,
	)
	if !ok {
		slog.Warn("catalog: table not found via any API", "schema", schema, "table", table)
		return 0, false
	}
	g.tableIDs.set(key, id)
	return id, true
}
