package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/metadolphin/internal/agent"
	"github.com/crystaldolphin/metadolphin/internal/channels"
	"github.com/crystaldolphin/metadolphin/internal/dependency"
	"github.com/crystaldolphin/metadolphin/internal/shared/cmdutils"
)

var askMessage string

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask the catalog assistant a question",
	Long:  "Answer one question with -m, or start an interactive session without it.",
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMessage, "message", "m", "", "Ask a single question and exit")
}

func runAsk(_ *cobra.Command, _ []string) error {
	c, ctx, stop, err := newContainer()
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if askMessage != "" {
		a, err := c.Assistant()
		if err != nil {
			return err
		}
		return askOnce(ctx, a, askMessage)
	}
	return askInteractive(ctx, c)
}

func askOnce(ctx context.Context, a agent.Answerer, question string) error {
	fmt.Fprintf(os.Stderr, "  ↳ searching the catalog...\n")
	resp, err := a.Answer(ctx, question, "")
	if err != nil {
		return err
	}
	cmdutils.PrintResponse(resp.Answer)
	return nil
}

// askInteractive runs the REPL over the CLI channel: questions go through
// the same bus and Dispatcher as Slack messages.
func askInteractive(ctx context.Context, c *dependency.Container) error {
	b, err := c.MessageBus()
	if err != nil {
		return err
	}
	dispatcher, err := c.Dispatcher()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli := channels.NewCLIChannel(b, os.Stdin, os.Stdout)
	router := channels.NewManager(b, cli)
	go func() { _ = dispatcher.Run(ctx) }()
	go func() { _ = router.Route(ctx) }()

	fmt.Printf("%s Interactive mode\n", logo)
	if err := cli.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
