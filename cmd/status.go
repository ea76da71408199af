package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/metadolphin/internal/catalog"
	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/providers"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and catalog authentication status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "Output format: text or yaml")
}

// statusReport is the yaml form of `metadolphin status`.
type statusReport struct {
	Config    string          `yaml:"config"`
	Provider  string          `yaml:"provider"`
	Model     string          `yaml:"model"`
	ToolsMode string          `yaml:"toolsMode"`
	Slack     bool            `yaml:"slack"`
	CatalogAt string          `yaml:"catalogUrl"`
	Catalog   *catalog.Status `yaml:"catalog,omitempty"`
	Error     string          `yaml:"error,omitempty"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	c, _, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	cfg := c.Config()
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	report := statusReport{
		Config:    path,
		Provider:  cfg.Agent.Provider,
		Model:     cfg.Agent.Model,
		ToolsMode: cfg.Tools.Mode,
		Slack:     cfg.Slack.Enabled,
		CatalogAt: cfg.Catalog.BaseURL,
	}
	if gw, err := c.Catalog(); err != nil {
		report.Error = err.Error()
	} else if gw != nil {
		st := gw.Status()
		report.Catalog = &st
	}

	if statusFormat == "yaml" {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	}
	printStatus(os.Stdout, report, cfg)
	return nil
}

func printStatus(w io.Writer, r statusReport, cfg *config.Config) {
	fmt.Fprintf(w, "%s metadolphin Status\n\n", logo)

	_, statErr := os.Stat(r.Config)
	fmt.Fprintf(w, "Config:    %s %s\n", r.Config, yesNo(statErr == nil))
	fmt.Fprintf(w, "Model:     %s (%s)\n", r.Model, r.Provider)
	fmt.Fprintf(w, "Tools:     %s\n", r.ToolsMode)
	fmt.Fprintf(w, "Slack:     %s\n\n", yesNo(r.Slack))

	fmt.Fprintln(w, "Providers:")
	for _, spec := range providers.PROVIDERS {
		label := spec.Label()
		if spec.SDK {
			fmt.Fprintf(w, "  %-16s region %s\n", label, cfg.Providers.Bedrock.Region)
			continue
		}
		if p := cfg.Providers.ByName(spec.Name); p != nil && p.APIKey != "" {
			fmt.Fprintf(w, "  %-16s ✓\n", label)
		} else {
			fmt.Fprintf(w, "  %-16s (not set)\n", label)
		}
	}

	fmt.Fprintln(w, "\nCatalog:")
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "  %s\n", r.Error)
	case r.Catalog == nil:
		fmt.Fprintln(w, "  served by MCP")
	default:
		fmt.Fprintf(w, "  %-16s %s\n", "URL", r.CatalogAt)
		fmt.Fprintf(w, "  %-16s %s %s\n", "Authenticated", yesNo(r.Catalog.Validated), r.Catalog.Scheme)
		fmt.Fprintf(w, "  %-16s %d responses, %d table ids\n", "Cache", r.Catalog.CachedResponses, r.Catalog.CachedTableIDs)
	}
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
