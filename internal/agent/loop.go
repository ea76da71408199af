package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/tools"
)

// ApologyMessage is what a user sees when answering failed. Raw errors are
// only logged.
const ApologyMessage = "Sorry, I encountered an error while processing your request."

// Answerer answers one question. *Assistant implements it.
type Answerer interface {
	Answer(ctx context.Context, question, history string) (Response, error)
}

// Dispatcher is the processing loop between chat channels and the Assistant.
//
// It reads InboundMessages from the bus, answers each in its own goroutine,
// and publishes the reply as an OutboundMessage.
type Dispatcher struct {
	bus          *bus.MessageBus
	assistant    Answerer
	historyLimit int
}

// NewDispatcher creates a Dispatcher. historyLimit caps the thread turns
// flattened into the prompt.
func NewDispatcher(b *bus.MessageBus, assistant Answerer, historyLimit int) *Dispatcher {
	return &Dispatcher{bus: b, assistant: assistant, historyLimit: historyLimit}
}

// Run reads from the inbound bus and processes each message in a goroutine.
// Blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Dispatcher started")

	for {
		select {
		case msg := <-d.bus.Inbound():
			go d.handleMessage(ctx, msg)
		case <-ctx.Done():
			slog.Info("Dispatcher stopping")
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	out := d.Process(ctx, msg)
	if err := d.bus.PublishOutbound(ctx, out); err != nil {
		slog.Warn("Dropping reply", "route", msg.RoutingKey(), "err", err)
	}
}

// Process answers msg and returns the reply. A failed answer becomes
// ApologyMessage.
func (d *Dispatcher) Process(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	slog.Info(
		"Processing message",
		"route", msg.RoutingKey(),
		"sender", msg.SenderID,
		"content", msg.ContentPreview(),
	)

	if reply, ok := d.handleSlashCommand(msg); ok {
		return bus.ReplyTo(msg, reply)
	}

	history := FormatHistory(msg.History(), d.historyLimit)
	resp, err := d.assistant.Answer(ctx, msg.Content, history)
	if err != nil {
		slog.Error("Assistant error", "route", msg.RoutingKey(), "err", err)
		return bus.ReplyTo(msg, ApologyMessage)
	}

	slog.Info("Response", "route", msg.RoutingKey(), "id", resp.ID, "length", len(resp.Answer))
	return bus.ReplyTo(msg, resp.Answer)
}

// handleSlashCommand answers the few commands that need no model call.
func (d *Dispatcher) handleSlashCommand(msg bus.InboundMessage) (string, bool) {
	switch strings.TrimSpace(strings.ToLower(msg.Content)) {
	case "/help":
		return helpText(), true
	}
	return "", false
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("*metadolphin* answers questions about the data catalog, e.g.\n")
	sb.WriteString("• _Who owns `ORDERS`?_\n")
	sb.WriteString("• _What feeds `FCT_SESSIONS`?_\n")
	sb.WriteString("• _Which tables have a `TXN_DTTM` column?_\n\n")
	fmt.Fprintf(&sb, "*Lookups:* %s", strings.Join(toolNames(), ", "))
	return sb.String()
}

func toolNames() []string {
	names := make([]string, 0, len(tools.CatalogToolNames))
	for _, n := range tools.CatalogToolNames {
		names = append(names, "`"+string(n)+"`")
	}
	return names
}
