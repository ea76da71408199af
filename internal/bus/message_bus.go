package bus

import "context"

// MessageBus decouples chat channels from the assistant.
//
// Channels push InboundMessages; the dispatcher consumes them, answers, and
// pushes OutboundMessages back for the channel manager to route.
// Both directions use buffered channels so senders rarely block on a slow consumer.
type MessageBus struct {
	inbound  chan InboundMessage  // channels → assistant
	outbound chan OutboundMessage // assistant → channels
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

// PublishInbound queues msg for the dispatcher. It gives up when ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound queues msg for the channel manager. It gives up when ctx is done.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) Inbound() <-chan InboundMessage { return b.inbound }

func (b *MessageBus) Outbound() <-chan OutboundMessage { return b.outbound }

func (b *MessageBus) InboundSize() int { return len(b.inbound) }

func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
