package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDataSources_MergesVersions(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v1/datasource/?": `[
			{"id": 1, "title": "Snowflake Prod", "dbtype": "snowflake", "description": "<b>Main</b> warehouse"},
			{"id": 2, "title": "", "dbtype": "postgresql"}
		]`,
		"/integration/v2/datasource/?": `[
			{"id": 2, "title": "dup", "dbtype": "ignored"},
			{"id": 3, "name": "Redshift", "db_type": "redshift"}
		]`,
	}))

	got := g.ListDataSources(context.Background())
	require.Len(t, got, 3)
	assert.Equal(t, DataSource{ID: 1, Name: "Snowflake Prod", Type: "snowflake", Description: "Main warehouse"}, got[0])
	assert.Equal(t, DataSource{ID: 2, Name: Unknown, Type: "postgresql", Description: Unknown}, got[1])
	assert.Equal(t, DataSource{ID: 3, Name: "Redshift", Type: "redshift", Description: Unknown}, got[2])
}

func TestListDataSources_AllFail(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/datasource/?": `{"unexpected": "shape"}`,
	}))
	// the probe default answers v1 with [], v2 is not a list
	assert.Empty(t, g.ListDataSources(context.Background()))
}

func TestGetDataSource(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v1/datasource/5/?": `{"id": 5, "title": "Lake", "dbtype": "hive", "uri": "hive://lake"}`,
	}))

	ds, ok := g.GetDataSource(context.Background(), 5)
	require.True(t, ok)
	assert.Equal(t, DataSource{ID: 5, Name: "Lake", Type: "hive", Description: Unknown, URI: "hive://lake"}, ds)

	_, ok = g.GetDataSource(context.Background(), 6)
	assert.False(t, ok)
}

func TestListSchemas(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/schema/?ds_id=1": `[{"name": "PUBLIC", "description": "<p>default</p>"}, {"name": "RAW"}]`,
	}))

	got := g.ListSchemas(context.Background(), 1)
	assert.Equal(t, []Schema{
		{Name: "PUBLIC", Description: "default"},
		{Name: "RAW", Description: Unknown},
	}, got)
	assert.Empty(t, g.ListSchemas(context.Background(), 2))
}

func TestListTables_UnknownForMissingFields(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&schema_name=PUBLIC": `[
			{"name": "ORDERS", "table_type": "TABLE", "number_of_rows": 1200, "popularity": null},
			{"name": "V_ORDERS"}
		]`,
	}))

	got := g.ListTables(context.Background(), 1, "PUBLIC")
	assert.Equal(t, []Table{
		{Name: "ORDERS", Type: "TABLE", RowCount: "1200", Popularity: Unknown},
		{Name: "V_ORDERS", Type: Unknown, RowCount: Unknown, Popularity: Unknown},
	}, got)
}

func TestGetTableMetadata(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&name=ORDERS&schema_name=PUBLIC": `[{
			"name": "ORDERS", "description": "All orders. Updated nightly.",
			"owner": "data-eng", "trust_flags": {"endorsement": "endorsed"},
			"ts_updated": "2025-01-02T03:04:05Z"
		}]`,
	}))

	got, ok := g.GetTableMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	require.True(t, ok)
	assert.Equal(t, TableDetail{
		Name:          "ORDERS",
		Description:   "All orders. Updated nightly.",
		Owner:         "data-eng",
		Steward:       Unknown,
		Certification: Unknown,
		TrustStatus:   "endorsed",
		LastUpdated:   "2025-01-02T03:04:05Z",
	}, got)

	_, ok = g.GetTableMetadata(context.Background(), 1, "PUBLIC", "MISSING")
	assert.False(t, ok)
}

func TestTableID_StopsAtFirstSuccessfulStrategy(t *testing.T) {
	g, rec := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&name=ORDERS&schema_name=public": `[]`,
		"/integration/v2/table/?ds_id=1&name=ORDERS":                    `[{"id": 77, "schema_name": "PUBLIC"}]`,
		"/integration/v2/table/?name=ORDERS":                            `[{"id": 99}]`,
	}))

	id, ok := g.tableID(context.Background(), 1, "public", "ORDERS")
	require.True(t, ok)
	assert.EqualValues(t, 77, id)
	assert.Zero(t, rec.count("/integration/v2/table/?name=ORDERS"), "cross-source strategy must not run")

	// identity cache
	rec.reset()
	id, ok = g.tableID(context.Background(), 1, "public", "ORDERS")
	require.True(t, ok)
	assert.EqualValues(t, 77, id)
	assert.Empty(t, rec.all())
}

func TestTableID_CrossSourcePrefersExactName(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?name=orders": `[{"id": 1, "name": "ORDERS_V2"}, {"id": 2, "name": "ORDERS"}]`,
	}))

	id, ok := g.tableID(context.Background(), 9, "X", "orders")
	require.True(t, ok)
	assert.EqualValues(t, 2, id)
}

func TestTableID_NotFound(t *testing.T) {
	g, _ := newTestGateway(t, routes(nil))
	_, ok := g.tableID(context.Background(), 1, "S", "T")
	assert.False(t, ok)
	assert.Zero(t, g.tableIDs.len())
}

func TestGetLineage(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&name=ORDERS&schema_name=PUBLIC": `[{"id": 10}]`,
		"/integration/v2/lineage/?oid=10&otype=table": `{
			"upstream": [{"key": "1.PUBLIC.RAW_ORDERS"}],
			"downstream": [],
			"sql": "INSERT INTO ORDERS SELECT * FROM RAW_ORDERS WHERE qty<10"
		}`,
	}))

	got := g.GetLineage(context.Background(), 1, "PUBLIC", "ORDERS")
	assert.Equal(t, TableRefs{"1.PUBLIC.RAW_ORDERS"}, got.Upstream)
	assert.False(t, got.Downstream.Known())
	assert.Equal(t, "INSERT INTO ORDERS SELECT * FROM RAW_ORDERS WHERE qty<10", got.TransformationContext)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"upstream_tables": ["1.PUBLIC.RAW_ORDERS"],
		"downstream_tables": "unknown",
		"transformation_context": "INSERT INTO ORDERS SELECT * FROM RAW_ORDERS WHERE qty<10"
	}`, string(b))
}

func TestGetLineage_UnknownWhenTableMissing(t *testing.T) {
	g, _ := newTestGateway(t, routes(nil))
	got := g.GetLineage(context.Background(), 1, "PUBLIC", "NOPE")
	assert.Equal(t, unknownLineage(), got)
	assert.Equal(t, Unknown, got.TransformationContext)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "PII field", StripHTML("<p>PII field</p>"))
	assert.Equal(t, "a b", StripHTML("<p>a</p><p>b</p>"))
	assert.Equal(t, "Tom & Jerry", StripHTML("Tom &amp; Jerry"))
	assert.Equal(t, "spaced out", StripHTML("  spaced \n\t out  "))
	assert.Equal(t, Unknown, StripHTML(""))
	assert.Equal(t, Unknown, StripHTML("<br/>"))

	long := StripHTML(strings.Repeat("x", 250))
	assert.Equal(t, strings.Repeat("x", 200)+"...", long)
}

func TestTableID_NamesWithSeparatorsDoNotShareCacheEntries(t *testing.T) {
	g, rec := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&name=DATA_X&schema_name=SALES": `[{"id": 11}]`,
		"/integration/v2/table/?ds_id=1&name=X&schema_name=SALES_DATA": `[{"id": 22}]`,
	}))
	ctx := context.Background()

	id, ok := g.tableID(ctx, 1, "SALES", "DATA_X")
	require.True(t, ok)
	assert.EqualValues(t, 11, id)

	id, ok = g.tableID(ctx, 1, "SALES_DATA", "X")
	require.True(t, ok)
	assert.EqualValues(t, 22, id)
	assert.Equal(t, 2, rec.count("/integration/v2/table/"))
	assert.Equal(t, 2, g.tableIDs.len())

	assert.NotEqual(t,
		cacheKey("table_id", 1, "SALES", "DATA_X"),
		cacheKey("table_id", 1, "SALES_DATA", "X"))
	assert.NotEqual(t,
		cacheKey("lineage", 1, "A_B", "C"),
		cacheKey("lineage", 1, "A", "B_C"))
}

func TestTableID_IdentityCacheExpires(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGateway(t, routes(map[string]string{
		"/integration/v2/table/?ds_id=1&name=ORDERS&schema_name=PUBLIC": `[{"id": 10}]`,
	}), func(o *Options) {
		o.Now = clock.Now
		o.CacheTTL = time.Minute
	})
	ctx := context.Background()

	_, ok := g.tableID(ctx, 1, "PUBLIC", "ORDERS")
	require.True(t, ok)
	clock.Advance(time.Minute - time.Second)
	_, ok = g.tableID(ctx, 1, "PUBLIC", "ORDERS")
	require.True(t, ok)
	assert.Equal(t, 1, rec.count("/integration/v2/table/"))

	clock.Advance(time.Second)
	id, ok := g.tableID(ctx, 1, "PUBLIC", "ORDERS")
	require.True(t, ok)
	assert.EqualValues(t, 10, id)
	assert.Equal(t, 2, rec.count("/integration/v2/table/"), "expired id is resolved upstream again")
}
