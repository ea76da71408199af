package channels

import (
	"context"
	"log/slog"
	"sort"

	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/config"
	"github.com/crystaldolphin/metadolphin/internal/schema"
)

// Manager owns all enabled channels and routes outbound messages.
type Manager struct {
	channels map[string]schema.Channel
	bus      *bus.MessageBus
}

// NewManager creates a Manager with the given channels registered.
func NewManager(b *bus.MessageBus, chs ...schema.Channel) *Manager {
	m := &Manager{
		channels: make(map[string]schema.Channel, len(chs)),
		bus:      b,
	}
	for _, ch := range chs {
		m.channels[ch.Name()] = ch
		slog.Info("channel enabled", "name", ch.Name())
	}
	return m
}

// FromConfig registers every channel enabled in cfg.
func FromConfig(cfg *config.Config, b *bus.MessageBus) *Manager {
	var chs []schema.Channel
	if cfg.Slack.Enabled {
		chs = append(chs, NewSlackChannel(&cfg.Slack, b))
	}
	return NewManager(b, chs...)
}

// EnabledChannels returns the names of all enabled channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StartAll starts all channels concurrently and routes outbound messages.
// Blocks until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		go func(n string, c schema.Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	return m.Route(ctx)
}

// Route reads from the outbound bus and hands each message to its
// channel's Send method. Blocks until ctx is cancelled.
func (m *Manager) Route(ctx context.Context) error {
	for {
		select {
		case msg := <-m.bus.Outbound():
			ch, ok := m.channels[string(msg.Channel)]
			if !ok {
				slog.Debug("unknown channel for outbound message", "channel", msg.Channel)
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel, "err", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
