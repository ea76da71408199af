package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/metadolphin/internal/schema"
)

var (
	toolsFormat string
	toolsArgs   string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the catalog tools",
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name>",
	Short: "Run one catalog tool and print its output",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsCall,
}

func init() {
	toolsCmd.Flags().StringVarP(&toolsFormat, "format", "f", "text", "Output format: text, json or yaml")
	toolsCallCmd.Flags().StringVar(&toolsArgs, "args", "{}", "Tool arguments as a JSON object")
	toolsCmd.AddCommand(toolsCallCmd)
}

func runToolsList(_ *cobra.Command, _ []string) error {
	c, ctx, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	exec, err := c.Executor()
	if err != nil {
		return err
	}
	defs, err := exec.Definitions(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	return writeDefinitions(os.Stdout, defs, toolsFormat)
}

func writeDefinitions(w io.Writer, defs []schema.ToolDefinition, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(defs)
	case "text", "":
		for _, d := range defs {
			fmt.Fprintf(w, "%-22s %s\n", d.Name, d.Description)
		}
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
}

func runToolsCall(_ *cobra.Command, args []string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(toolsArgs), &params); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	c, ctx, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	exec, err := c.Executor()
	if err != nil {
		return err
	}
	out, err := exec.Execute(ctx, args[0], params)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
