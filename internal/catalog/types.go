package catalog

import "encoding/json"

// Unknown marks every datum the catalog did not return. Fields are never
// left empty: a missing value is always this literal.
const Unknown = "unknown"

// Credential is the auth header installed on every catalog request.
type Credential struct {
	Scheme string // header name: "TOKEN" or "api-access-token"
	Value  string
}

// DataSource is a registered database connection.
type DataSource struct {
	ID          int64  `json:"data_source_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URI         string `json:"uri,omitempty"`
}

// Schema is a schema within a data source. DataSourceID and DataSourceName
// are only populated by SearchSchema.
type Schema struct {
	Name           string `json:"schema_name"`
	Description    string `json:"schema_description"`
	DataSourceID   int64  `json:"data_source_id,omitempty"`
	DataSourceName string `json:"data_source_name,omitempty"`
}

// Table is one row of a schema's table listing.
type Table struct {
	Name       string `json:"table_name"`
	Type       string `json:"table_type"`
	RowCount   string `json:"row_count"`
	Popularity string `json:"popularity"`
}

// TableDetail is the governance view of a single table.
type TableDetail struct {
	Name          string `json:"table_name"`
	Description   string `json:"table_description"`
	Owner         string `json:"owner"`
	Steward       string `json:"steward"`
	Certification string `json:"certification"`
	TrustStatus   string `json:"trust_status"`
	LastUpdated   string `json:"last_updated"`
}

// Column is a normalised column record. Key is the fully-qualified column
// key and is only populated by SearchColumns.
type Column struct {
	Name        string `json:"column_name"`
	DataType    string `json:"data_type"`
	Description string `json:"description"`
	Title       string `json:"title"`
	Nullable    string `json:"nullable"`
	Key         string `json:"table_key,omitempty"`
}

// TableRefs is a list of lineage table keys. A nil list means the catalog
// had nothing to say and renders as "unknown".
type TableRefs []string

// Known reports whether the catalog returned any references.
func (r TableRefs) Known() bool { return len(r) > 0 }

func (r TableRefs) MarshalJSON() ([]byte, error) {
	if !r.Known() {
		return json.Marshal(Unknown)
	}
	return json.Marshal([]string(r))
}

// Lineage holds the declared upstream and downstream tables of a table.
type Lineage struct {
	Upstream              TableRefs `json:"upstream_tables"`
	Downstream            TableRefs `json:"downstream_tables"`
	TransformationContext string    `json:"transformation_context"`
}

func unknownLineage() Lineage {
	return Lineage{TransformationContext: Unknown}
}

// TableMatch is one search_table hit.
type TableMatch struct {
	Name         string `json:"table_name"`
	DataSourceID string `json:"data_source_id"`
	Schema       string `json:"schema_name"`
	TableID      int64  `json:"table_id"`
	Type         string `json:"table_type"`
	Description  string `json:"description"`
	URL          string `json:"url"`
}

// Status is a point-in-time view of the gateway for health checks.
type Status struct {
	Scheme          string `json:"scheme" yaml:"scheme"`
	Validated       bool   `json:"validated" yaml:"validated"`
	CachedResponses int    `json:"cachedResponses" yaml:"cachedResponses"`
	CachedTableIDs  int    `json:"cachedTableIds" yaml:"cachedTableIds"`
}
