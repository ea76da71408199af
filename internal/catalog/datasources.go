package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
)

// ListDataSources merges the v1 and v2 listings, which can differ in what a
// token is allowed to see. Duplicates are dropped by id.
func (g *Gateway) ListDataSources(ctx context.Context) []DataSource {
	seen := make(map[int64]bool)
	var out []DataSource

	versions := []struct {
		endpoint, key string
		nameKeys      []string
		typeKeys      []string
	}{
		{"/integration/v1/datasource/", "data_sources_v1", []string{"title"}, []string{"dbtype"}},
		{"/integration/v2/datasource/", "data_sources_v2", []string{"title", "name"}, []string{"dbtype", "db_type"}},
	}
	for _, v := range versions {
		raw, err := g.get(ctx, v.endpoint, nil, v.key)
		if err != nil {
			continue
		}
		for _, r := range decodeList(raw) {
			id, ok := r.id()
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, DataSource{
				ID:          id,
				Name:        r.text(v.nameKeys...),
				Type:        r.text(v.typeKeys...),
				Description: r.stripped("description"),
			})
		}
	}

	if len(out) == 0 {
		slog.Warn("catalog: no data sources retrieved (v1 + v2)")
	}
	slog.Info("catalog: listed data sources", "count", len(out))
	return out
}

// GetDataSource returns one data source by id.
func (g *Gateway) GetDataSource(ctx context.Context, id int64) (DataSource, bool) {
	raw, err := g.get(ctx, fmt.Sprintf("/integration/v1/datasource/%d/", id), nil, fmt.Sprintf("ds_%d", id))
	if err != nil {
		return DataSource{}, false
	}
	r, ok := decodeObject(raw)
	if !ok {
		return DataSource{}, false
	}
	dsID, ok := r.id()
	if !ok {
		dsID = id
	}
	return DataSource{
		ID:          dsID,
		Name:        r.text("title"),
		Type:        r.text("dbtype"),
		Description: r.stripped("description"),
		URI:         r.text("uri"),
	}, true
}

func (g *Gateway) schemaRecords(ctx context.Context, dsID int64) []record {
	params := url.Values{"ds_id": {strconv.FormatInt(dsID, 10)}}
	raw, err := g.get(ctx, "/integration/v2/schema/", params, fmt.Sprintf("schemas_%d", dsID))
	if err != nil {
		return nil
	}
	return decodeList(raw)
}

// ListSchemas lists the schemas of a data source.
func (g *Gateway) ListSchemas(ctx context.Context, dsID int64) []Schema {
	records := g.schemaRecords(ctx, dsID)
	if len(records) == 0 {
		slog.Warn("catalog: no schemas found", "ds_id", dsID)
		return nil
	}
	out := make([]Schema, 0, len(records))
	for _, r := range records {
		out = append(out, Schema{
			Name:        r.text("name"),
			Description: r.stripped("description"),
		})
	}
	return out
}

// SearchSchema scans every visible data source for schemas whose name
// contains keyword, case-insensitively.
func (g *Gateway) SearchSchema(ctx context.Context, keyword string) []Schema {
	slog.Info("catalog: searching schemas", "keyword", keyword)
	needle := strings.ToLower(keyword)

	var out []Schema
	for _, ds := range g.ListDataSources(ctx) {
		for _, r := range g.schemaRecords(ctx, ds.ID) {
			name, _ := scalar(r["name"])
			if !strings.Contains(strings.ToLower(name), needle) {
				continue
			}
			out = append(out, Schema{
				Name:           name,
				Description:    r.stripped("description"),
				DataSourceID:   ds.ID,
				DataSourceName: ds.Name,
			})
		}
	}
	slog.Info("catalog: schema search done", "keyword", keyword, "count", len(out))
	return out
}
