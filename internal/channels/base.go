// Package channels provides the chat channels questions arrive on.
package channels

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crystaldolphin/metadolphin/internal/bus"
)

// DefaultMaxMessageChars keeps a Slack message short enough to render well.
const DefaultMaxMessageChars = 3800

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.Channel
	b           *bus.MessageBus
	allowFrom   []string // empty = allow all
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.Channel, b *bus.MessageBus, allowFrom []string) Base {
	return Base{channelName: name, b: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist.
func (b *Base) IsAllowed(senderID string) bool {
	return len(b.allowFrom) == 0 || slices.Contains(b.allowFrom, senderID)
}

// HandleMessage verifies the sender is allowed, then pushes an InboundMessage to the bus.
func (b *Base) HandleMessage(ctx context.Context, senderID, chatID, content string, metadata map[string]any) error {
	if !b.IsAllowed(senderID) {
		slog.Warn("access denied", "channel", b.channelName, "sender", senderID)
		return nil
	}

	msg := bus.NewInboundMessage(b.channelName, senderID, chatID, content)
	for k, v := range metadata {
		msg.Metadata[k] = v
	}
	return b.b.PublishInbound(ctx, msg)
}

var (
	reFence  = regexp.MustCompile("(?m)^```")
	reHeader = regexp.MustCompile(`\n\*[^*]+\*`)
)

// SplitMessage splits text into chunks of at most maxChars runes, on the
// most natural boundary available:
//
//  1. before an opening code fence that would otherwise be cut
//  2. before the last "*bold*" header line
//  3. at the last blank line
//  4. at the last newline
//  5. hard cut at maxChars
//
// Whitespace-only chunks are dropped.
func SplitMessage(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxMessageChars
	}

	var chunks []string
	remaining := text
	for remaining != "" {
		if utf8.RuneCountInString(remaining) <= maxChars {
			chunks = append(chunks, remaining)
			break
		}
		segment := remaining[:byteOffset(remaining, maxChars)]

		if fences := reFence.FindAllStringIndex(segment, -1); len(fences)%2 == 1 {
			if at := fences[len(fences)-1][0]; at > 0 {
				chunks = append(chunks, strings.TrimRightFunc(remaining[:at], unicode.IsSpace))
				remaining = remaining[at:]
				continue
			}
		}

		at := -1
		if headers := reHeader.FindAllStringIndex(segment, -1); len(headers) > 0 {
			at = headers[len(headers)-1][0]
		}
		if at == -1 {
			at = strings.LastIndex(segment, "\n\n")
		}
		if at == -1 {
			at = strings.LastIndex(segment, "\n")
		}
		if at == -1 {
			at = len(segment)
		}

		chunks = append(chunks, strings.TrimRightFunc(remaining[:at], unicode.IsSpace))
		remaining = strings.TrimLeft(remaining[at:], "\n")
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
