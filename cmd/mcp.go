package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the catalog tools as an MCP server on stdio",
	RunE:  runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	c, ctx, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	srv, err := c.MCPServer()
	if err != nil {
		return err
	}
	slog.Info("mcp: serving on stdio")
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
