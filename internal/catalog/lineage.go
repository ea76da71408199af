package catalog

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

// GetLineage returns the declared upstream and downstream tables of a table.
// Every field is Unknown when the table cannot be resolved or the catalog
// has no lineage for it.
func (g *Gateway) GetLineage(ctx context.Context, dsID int64, schema, table string) Lineage {
	id, ok := g.tableID(ctx, dsID, schema, table)
	if !ok {
		slog.Warn("catalog: cannot get lineage, table not found", "table", table)
		return unknownLineage()
	}

	params := url.Values{"oid": {strconv.FormatInt(id, 10)}, "otype": {"table"}}
	raw, err := g.get(ctx, "/integration/v2/lineage/", params, cacheKey("lineage", dsID, schema, table))
	if err != nil {
		slog.Warn("catalog: lineage not available", "table", table)
		return unknownLineage()
	}
	r, ok := decodeObject(raw)
	if !ok || len(r) == 0 {
		slog.Warn("catalog: lineage not available", "table", table)
		return unknownLineage()
	}

	return Lineage{
		Upstream:              refs(r.list("upstream")),
		Downstream:            refs(r.list("downstream")),
		// raw SQL: StripHTML would eat comparisons such as qty<10
		TransformationContext: r.text("sql"),
	}
}

func refs(items []record) TableRefs {
	if len(items) == 0 {
		return nil
	}
	out := make(TableRefs, 0, len(items))
	for _, it := range items {
		out = append(out, it.text("key"))
	}
	return out
}
