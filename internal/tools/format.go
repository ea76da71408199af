package tools

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/metadolphin/internal/catalog"
)

// Output is Slack mrkdwn. Every catalog identifier is wrapped in backticks
// so the model passes names through verbatim.

const (
	descLimit    = 120
	columnLimit  = 150
	contextLimit = 200
)

func errText(format string, a ...any) string {
	return "Error: " + fmt.Sprintf(format, a...)
}

// trunc keeps the first sentence of text and caps it at limit runes.
func trunc(text string, limit int) string {
	if text == "" || text == catalog.Unknown {
		return catalog.Unknown
	}
	if i := strings.Index(text, ". "); i >= 0 {
		text = text[:i+1]
	}
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit-3]) + "..."
	}
	return text
}

func known(s string) bool { return s != "" && s != catalog.Unknown }

func formatDataSources(list []catalog.DataSource) string {
	lines := []string{fmt.Sprintf("Found %d data source(s):\n", len(list))}
	for _, ds := range list {
		lines = append(lines, fmt.Sprintf("• `%s` (ID: %d) — Type: `%s` — %s",
			ds.Name, ds.ID, ds.Type, trunc(ds.Description, descLimit)))
	}
	return strings.Join(lines, "\n")
}

func formatSchemas(list []catalog.Schema, dsID int64) string {
	lines := []string{fmt.Sprintf("Found %d schema(s) in data source %d:\n", len(list), dsID)}
	for _, s := range list {
		lines = append(lines, fmt.Sprintf("• `%s` — %s", s.Name, trunc(s.Description, descLimit)))
	}
	return strings.Join(lines, "\n")
}

func formatTables(list []catalog.Table, schemaName string) string {
	lines := []string{fmt.Sprintf("Found %d table(s) in `%s`:\n", len(list), schemaName)}
	for _, t := range list {
		entry := fmt.Sprintf("• `%s`", t.Name)
		if known(t.Type) {
			entry += fmt.Sprintf(" (%s)", t.Type)
		}
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

func formatTableDetail(d catalog.TableDetail) string {
	return strings.Join([]string{
		fmt.Sprintf("*Table:* `%s`\n", d.Name),
		"• *Description:* " + d.Description,
		fmt.Sprintf("• *Owner:* `%s`", d.Owner),
		fmt.Sprintf("• *Steward:* `%s`", d.Steward),
		"• *Certification:* " + d.Certification,
		"• *Trust Status:* " + d.TrustStatus,
		"• *Last Updated:* " + d.LastUpdated,
	}, "\n")
}

// formatColumns renders one card per column: name and type, then the
// description on its own line when there is one.
func formatColumns(cols []catalog.Column, heading string) string {
	if len(cols) == 0 {
		return "No columns found."
	}
	var lines []string
	if heading != "" {
		lines = append(lines, heading, "")
	}
	for _, c := range cols {
		entry := fmt.Sprintf("• `%s` — `%s`", c.Name, c.DataType)
		if desc := trunc(c.Description, columnLimit); known(desc) {
			entry += fmt.Sprintf("\n  _%s_", desc)
		}
		lines = append(lines, entry)
	}
	lines = append(lines, fmt.Sprintf("\n_%d column(s) total_", len(cols)))
	return strings.Join(lines, "\n")
}

func formatLineage(l catalog.Lineage, table string) string {
	lines := []string{fmt.Sprintf("*Lineage for* `%s`:\n", table)}
	refs := func(r catalog.TableRefs) {
		if !r.Known() {
			lines = append(lines, "  "+catalog.Unknown)
			return
		}
		for _, t := range r {
			lines = append(lines, fmt.Sprintf("  • `%s`", t))
		}
	}
	lines = append(lines, "*Upstream Tables:*")
	refs(l.Upstream)
	lines = append(lines, "\n*Downstream Tables:*")
	refs(l.Downstream)
	lines = append(lines, "\n*Transformation Context:* "+trunc(l.TransformationContext, contextLimit))
	return strings.Join(lines, "\n")
}

func formatTableMatches(list []catalog.TableMatch) string {
	lines := []string{fmt.Sprintf("Found %d table(s):\n", len(list))}
	for _, t := range list {
		entry := fmt.Sprintf("• `%s` — Schema: `%s` (DS ID: %s)", t.Name, t.Schema, t.DataSourceID)
		if desc := trunc(t.Description, descLimit); known(desc) {
			entry += fmt.Sprintf("\n  _%s_", desc)
		}
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

func formatSchemaMatches(list []catalog.Schema) string {
	lines := []string{fmt.Sprintf("Found %d schema(s):\n", len(list))}
	for _, s := range list {
		lines = append(lines, fmt.Sprintf("• `%s` in `%s` (DS ID: %d) — %s",
			s.Name, s.DataSourceName, s.DataSourceID, trunc(s.Description, descLimit)))
	}
	return strings.Join(lines, "\n")
}
