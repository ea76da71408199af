package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersByID = "/integration/v2/table/?ds_id=1&name=ORDERS&schema_name=PUBLIC"

func TestGetColumnMetadata_ModernEndpoint(t *testing.T) {
	g, rec := newTestGateway(t, routes(map[string]string{
		ordersByID: `[{"id": 10}]`,
		"/integration/v2/column/?table_id=10": `[
			{"name": "ID", "column_type": "NUMBER", "data_type": "ignored", "nullable": false},
			{"title": "Customer Email", "data_type": "VARCHAR", "description": "<p>PII field</p>"},
			{"name": "RAW", "type": "VARIANT", "title": ""}
		]`,
	}))

	got := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	assert.Equal(t, []Column{
		{Name: "ID", DataType: "NUMBER", Description: Unknown, Title: Unknown, Nullable: "false"},
		{Name: "Customer Email", DataType: "VARCHAR", Description: "PII field", Title: "Customer Email", Nullable: Unknown},
		{Name: "RAW", DataType: "VARIANT", Description: Unknown, Title: Unknown, Nullable: Unknown},
	}, got)
	assert.Zero(t, rec.count("/api/v1/attribute/"))

	rec.reset()
	again := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	assert.Equal(t, got, again)
	assert.Empty(t, rec.all(), "second lookup is served from cache")
}

func TestGetColumnMetadata_LegacyAttributeEndpoint(t *testing.T) {
	g, rec := newTestGateway(t, routes(map[string]string{
		ordersByID:                            `[{"id": 10}]`,
		"/integration/v2/column/?table_id=10": `[]`,
		"/api/v1/attribute/?table_id=10":      `[{"name": "ID", "data_type": "INT"}]`,
	}))

	got := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	require.Len(t, got, 1)
	assert.Equal(t, "INT", got[0].DataType)
	assert.Zero(t, rec.count("/catalog/table/"))
}

func TestGetColumnMetadata_EmbeddedColumns(t *testing.T) {
	g, _ := newTestGateway(t, routes(map[string]string{
		ordersByID:              `[{"id": 10}]`,
		"/catalog/table/10/?": `{"name": "ORDERS", "columns": [{"name": "ID", "type": "INT"}]}`,
	}))

	got := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	require.Len(t, got, 1)
	assert.Equal(t, Column{Name: "ID", DataType: "INT", Description: Unknown, Title: Unknown, Nullable: Unknown}, got[0])
}

func TestGetColumnMetadata_NameFallbackWithoutTableID(t *testing.T) {
	g, rec := newTestGateway(t, routes(map[string]string{
		"/integration/v2/column/?ds_id=1&table_name=ORDERS": `[{"name": "ID", "column_type": "INT"}]`,
	}))

	got := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	require.Len(t, got, 1)
	assert.Equal(t, 1, rec.count("/integration/v2/column/?ds_id=1&table_name=PUBLIC.ORDERS"))
	assert.Zero(t, rec.count("/integration/v2/column/?table_id="))
}

func TestGetColumnMetadata_NothingFound(t *testing.T) {
	g, _ := newTestGateway(t, routes(nil))
	assert.Empty(t, g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS"))
	assert.Zero(t, g.Status().CachedResponses)
}

func TestGetColumnMetadata_TruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("word ", 100)
	g, _ := newTestGateway(t, routes(map[string]string{
		ordersByID:                            `[{"id": 10}]`,
		"/integration/v2/column/?table_id=10": fmt.Sprintf(`[{"name": "ID", "description": %q}]`, long),
	}))

	got := g.GetColumnMetadata(context.Background(), 1, "PUBLIC", "ORDERS")
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0].Description, "..."))
	assert.Len(t, []rune(got[0].Description), 203)
}

func TestSearchColumns_FilterAndCap(t *testing.T) {
	var items []string
	for i := range 40 {
		items = append(items, fmt.Sprintf(`{"id": %d, "name": "TXN_DTTM", "column_type": "TIMESTAMP", "key": "1.DB.PUBLIC.ACCT_SPEND_%d.TXN_DTTM"}`, i, i))
	}
	items = append(items, `{"id": 99, "name": "TXN_DTTM", "key": "1.DB.PUBLIC.OTHER.TXN_DTTM"}`)

	g, _ := newTestGateway(t, routes(map[string]string{
		"/integration/v2/column/?name=TXN_DTTM": "[" + strings.Join(items, ",") + "]",
	}))

	all := g.SearchColumns(context.Background(), "TXN_DTTM", "")
	assert.Len(t, all, maxColumnMatches)

	filtered := g.SearchColumns(context.Background(), "TXN_DTTM", "other")
	require.Len(t, filtered, 1)
	assert.Equal(t, "1.DB.PUBLIC.OTHER.TXN_DTTM", filtered[0].Key)
	assert.Equal(t, Unknown, filtered[0].DataType)

	assert.Empty(t, g.SearchColumns(context.Background(), "TXN_DTTM", "nomatch"))
}

func TestGetColumnMetadata_CachedColumnsExpire(t *testing.T) {
	clock := newFakeClock()
	g, rec := newTestGateway(t, routes(map[string]string{
		ordersByID:                            `[{"id": 10}]`,
		"/integration/v2/column/?table_id=10": `[{"name": "ID", "data_type": "NUMBER"}]`,
	}), func(o *Options) {
		o.Now = clock.Now
		o.CacheTTL = time.Minute
	})
	ctx := context.Background()

	first := g.GetColumnMetadata(ctx, 1, "PUBLIC", "ORDERS")
	require.Len(t, first, 1)
	rec.reset()

	clock.Advance(time.Minute)
	again := g.GetColumnMetadata(ctx, 1, "PUBLIC", "ORDERS")
	assert.Equal(t, first, again)
	assert.Equal(t, 1, rec.count(ordersByID), "table id is resolved again")
	assert.Equal(t, 1, rec.count("/integration/v2/column/?table_id=10"), "columns are fetched again")
}
