// Package bus defines the message types that flow between channels and the assistant.
package bus

import "time"

// Metadata keys understood by the dispatcher and the Slack channel.
const (
	MetaThreadTS  = "thread_ts"
	MetaMessageTS = "message_ts"
	// MetaHistory holds the prior thread turns as []Turn.
	MetaHistory = "history"
)

// Turn is one earlier message in the thread a question was asked in.
type Turn struct {
	FromBot bool   `json:"fromBot"`
	Text    string `json:"text"`
}

// InboundMessage is a question received from a chat channel.
type InboundMessage struct {
	Channel   Channel        // "slack", "cli", "http"
	SenderID  string         // user identifier within the channel
	ChatID    string         // channel / DM identifier
	Content   string         // question text with the bot mention removed
	Timestamp time.Time      // when the message was received
	Metadata  map[string]any // thread_ts, message_ts, history
}

// NewInboundMessage creates an InboundMessage with Timestamp set to now.
func NewInboundMessage(channel Channel, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  map[string]any{},
	}
}

// RoutingKey returns "channel:chat_id", used to tag log lines for one conversation.
func (m InboundMessage) RoutingKey() string {
	return RoutingKey(m.Channel, m.ChatID)
}

// History returns the thread turns attached by the channel, if any.
func (m InboundMessage) History() []Turn {
	h, _ := m.Metadata[MetaHistory].([]Turn)
	return h
}

// ContentPreview returns a short snippet of the message content for logging.
func (m InboundMessage) ContentPreview() string {
	preview := []rune(m.Content)
	if len(preview) > 80 {
		return string(preview[:80]) + "..."
	}
	return string(preview)
}

// OutboundMessage is a response to be sent back through a channel.
type OutboundMessage struct {
	Channel  Channel        // destination channel name
	ChatID   string         // destination channel / DM identifier
	Content  string         // text to send
	Metadata map[string]any // channel-specific hints (thread_ts, message_ts)
}

// ReplyTo builds the outbound answer for in, carrying its thread metadata.
func ReplyTo(in InboundMessage, content string) OutboundMessage {
	md := map[string]any{}
	for _, k := range []string{MetaThreadTS, MetaMessageTS} {
		if v, ok := in.Metadata[k]; ok {
			md[k] = v
		}
	}
	return OutboundMessage{
		Channel:  in.Channel,
		ChatID:   in.ChatID,
		Content:  content,
		Metadata: md,
	}
}
