// Package cmd implements the metadolphin CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/dependency"
)

const version = "0.1.0"
const logo = "🐬"

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "metadolphin",
	Short: logo + " metadolphin — data catalog assistant",
	Long:  logo + " metadolphin answers questions about the data catalog from Slack, HTTP, MCP or the terminal",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.metadolphin/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig reads the config and installs the slog default logger it
// describes. Logs go to stderr so stdout stays clean for answers and for
// the stdio MCP transport.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(os.Stderr, cfg.Log)
	return cfg, nil
}

func setupLogging(w io.Writer, lc config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// newContainer loads the config and registers all services. The returned
// context is cancelled on SIGINT or SIGTERM; call stop when done.
func newContainer() (c *dependency.Container, ctx context.Context, stop context.CancelFunc, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	c, err = dependency.New(ctx, cfg, version)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return c, ctx, stop, nil
}
