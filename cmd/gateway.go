package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var gatewayPort int

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start Slack ingress, the HTTP API and catalog re-validation",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().IntVarP(&gatewayPort, "port", "p", 0, "HTTP port (overrides server.port)")
}

func runGateway(_ *cobra.Command, _ []string) error {
	c, ctx, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if gatewayPort > 0 {
		c.Config().Server.Port = gatewayPort
	}

	dispatcher, err := c.Dispatcher()
	if err != nil {
		return err
	}
	channelMgr, err := c.Channels()
	if err != nil {
		return err
	}
	cronSvc, err := c.Cron()
	if err != nil {
		return err
	}
	httpSrv, err := c.HTTPServer()
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting metadolphin gateway on port %d...\n", logo, c.Config().Server.Port)
	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no chat channels enabled, serving HTTP only")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })
	g.Go(func() error { return cronSvc.Start(gctx) })
	g.Go(func() error { return httpSrv.Run(gctx) })

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
