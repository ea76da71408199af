package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/shared/cmdutils"
)

const cliChatID = "direct"

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires a terminal into the bus: lines read from in become
// questions, and each reply is printed to out before the next prompt.
type CLIChannel struct {
	Base
	in      io.Reader
	out     io.Writer
	replies chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel.
func NewCLIChannel(b *bus.MessageBus, in io.Reader, out io.Writer) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, b, nil),
		in:      in,
		out:     out,
		replies: make(chan bus.OutboundMessage, 1),
	}
}

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start runs the REPL. It returns nil when input ends or an exit command is
// typed, and ctx.Err() when ctx is cancelled.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Fprintf(c.out, "Ask about the data catalog. Type 'exit' or press Ctrl+C to quit.\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "You: ")

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out, "\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		case <-ctx.Done():
			return ctx.Err()
		}

		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}

		if err := c.HandleMessage(ctx, "user", cliChatID, line, nil); err != nil {
			return err
		}
		select {
		case msg := <-c.replies:
			cmdutils.FprintResponse(c.out, msg.Content)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send hands a reply to the REPL loop.
func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	select {
	case c.replies <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
