package catalog

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// tableMatches accumulates search_table hits, dropping repeats by table id.
type tableMatches struct {
	seen map[int64]bool
	list []TableMatch
}

func (m *tableMatches) add(r record, fromSearchAPI bool) {
	id, hasID := r.id()
	if hasID {
		if m.seen[id] {
			return
		}
		m.seen[id] = true
	} else if fromSearchAPI {
		return
	}

	match := TableMatch{
		Name:         r.text("name"),
		DataSourceID: r.text("ds_id"),
		Schema:       r.text("schema_name"),
		TableID:      id,
		Type:         r.text("table_type"),
		Description:  r.stripped("description"),
		URL:          r.text("url"),
	}
	if fromSearchAPI {
		match.Name = r.text("name", "title")
	} else if match.Schema == Unknown {
		match.Schema = schemaFromKey(r.text("key"))
	}
	m.list = append(m.list, match)
}

// schemaFromKey extracts the schema from a qualified key of the form
// "ds.DB.SCHEMA.TABLE", yielding "DB.SCHEMA".
func schemaFromKey(key string) string {
	parts := strings.Split(key, ".")
	if key == Unknown || len(parts) < 3 {
		return Unknown
	}
	return strings.Join(parts[1:len(parts)-1], ".")
}

// SearchTable looks a table up by name across every data source. Strategies,
// in order, stopping at the first that yields anything:
//
//  1. name filter as given, then upper-cased, then lower-cased
//  2. exact name within each visible data source
//  3. the free-text search endpoints
//  4. a substring search on the table endpoint
func (g *Gateway) SearchTable(ctx context.Context, name string) []TableMatch {
	slog.Info("catalog: searching table across all data sources", "table", name)
	acc := &tableMatches{seen: make(map[int64]bool)}

	query := func(endpoint string, params url.Values, fromSearchAPI bool) int {
		raw, err := g.get(ctx, endpoint, params, "")
		if err != nil {
			return 0
		}
		before := len(acc.list)
		for _, r := range decodeList(raw) {
			acc.add(r, fromSearchAPI)
		}
		return len(acc.list) - before
	}

	found := func() ([]TableMatch, bool) { return acc.list, len(acc.list) > 0 }

	results, _ := firstOf(ctx, "search_table:"+name,
		strategy[[]TableMatch]{
			name: "name variants",
			run: func(ctx context.Context) ([]TableMatch, bool) {
				tried := map[string]bool{}
				for _, v := range []string{name, strings.ToUpper(name), strings.ToLower(name)} {
					if tried[v] {
						continue
					}
					tried[v] = true
					if query(tableEndpoint, url.Values{"name": {v}}, false) > 0 {
						break
					}
				}
				return found()
			},
		},
		strategy[[]TableMatch]{
			name: "per data source",
			run: func(ctx context.Context) ([]TableMatch, bool) {
				for _, ds := range g.ListDataSources(ctx) {
					query(tableEndpoint, url.Values{"ds_id": {dsParam(ds.ID)}, "name": {name}}, false)
				}
				return found()
			},
		},
		strategy[[]TableMatch]{
			name: "search api",
			run: func(ctx context.Context) ([]TableMatch, bool) {
				combos := []struct {
					endpoint string
					params   url.Values
				}{
					{"/integration/v1/search/", url.Values{"q": {name}, "otype": {"table"}, "limit": {"10"}}},
					{"/integration/v1/search/", url.Values{"q": {name}, "limit": {"10"}}},
					{"/search/", url.Values{"q": {name}, "otype": {"table"}, "limit": {"10"}}},
				}
				for _, c := range combos {
					if query(c.endpoint, c.params, true) > 0 {
						break
					}
				}
				return found()
			},
		},
		strategy[[]TableMatch]{
			name: "substring",
			run: func(ctx context.Context) ([]TableMatch, bool) {
				query(tableEndpoint, url.Values{"search": {name}}, false)
				return found()
			},
		},
	)

	slog.Info("catalog: table search done", "table", name, "count", len(results))
	return results
}
