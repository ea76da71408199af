package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/crystaldolphin/metadolphin/internal/bus"
	"github.com/crystaldolphin/metadolphin/internal/config"
)

// slackAPI is the part of the Slack Web API the channel uses.
type slackAPI interface {
	AddReactionContext(ctx context.Context, name string, item slackgo.ItemRef) error
	GetConversationRepliesContext(ctx context.Context, params *slackgo.GetConversationRepliesParameters) ([]slackgo.Message, bool, string, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackgo.MsgOption) (string, string, error)
}

// SlackChannel implements Slack via Socket Mode.
type SlackChannel struct {
	Base
	cfg       *config.SlackConfig
	api       slackAPI
	smClient  *socketmode.Client
	botUserID string
}

func NewSlackChannel(cfg *config.SlackConfig, b *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, nil), // Slack uses its own allow logic
		cfg:  cfg,
	}
}

func (s *SlackChannel) Name() string { return string(bus.ChannelSlack) }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		slog.Warn("slack: bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	webClient := slackgo.New(s.cfg.BotToken, slackgo.OptionAppLevelToken(s.cfg.AppToken))
	s.api = webClient

	// Resolve bot user ID.
	resp, err := webClient.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	s.botUserID = resp.UserID
	slog.Info("slack: connected", "bot_user_id", s.botUserID)

	s.smClient = socketmode.New(webClient)

	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, evt)
		}
	}
}

func (s *SlackChannel) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.Debug("slack: connecting")
	case socketmode.EventTypeConnectionError:
		slog.Warn("slack: connection error, retrying")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			s.smClient.Ack(*evt.Request)
		}
		cb, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if in, ok := fromInnerEvent(cb.InnerEvent); ok {
			// each question runs on its own goroutine so slow answers
			// (thread history, reactions) never block the event loop
			go s.handleIncoming(ctx, in)
		}
	}
}

// incoming is the subset of an app_mention or message event the channel acts on.
type incoming struct {
	eventType   string
	user        string
	botID       string
	channel     string
	channelType string
	subtype     string
	text        string
	ts          string
	threadTS    string
}

func fromInnerEvent(ev slackevents.EventsAPIInnerEvent) (incoming, bool) {
	switch data := ev.Data.(type) {
	case *slackevents.AppMentionEvent:
		return incoming{
			eventType: "app_mention",
			user:      data.User,
			botID:     data.BotID,
			channel:   data.Channel,
			text:      data.Text,
			ts:        data.TimeStamp,
			threadTS:  data.ThreadTimeStamp,
		}, true
	case *slackevents.MessageEvent:
		return incoming{
			eventType:   "message",
			user:        data.User,
			botID:       data.BotID,
			channel:     data.Channel,
			channelType: data.ChannelType,
			subtype:     data.SubType,
			text:        data.Text,
			ts:          data.TimeStamp,
			threadTS:    data.ThreadTimeStamp,
		}, true
	}
	return incoming{}, false
}

func (s *SlackChannel) handleIncoming(ctx context.Context, in incoming) {
	if in.subtype != "" || in.user == "" || in.channel == "" || in.botID != "" {
		return
	}
	if in.user == s.botUserID {
		return
	}
	// Avoid double-processing mention + message events.
	if in.eventType == "message" && s.botUserID != "" && strings.Contains(in.text, "<@"+s.botUserID+">") {
		return
	}

	if !s.isAllowedSlack(in.user, in.channel, in.channelType) {
		return
	}
	if in.channelType != "im" && !s.shouldRespond(in.eventType, in.text, in.channel) {
		return
	}

	text := s.stripMention(in.text)
	if text == "" {
		return
	}

	meta := map[string]any{bus.MetaMessageTS: in.ts}
	if in.threadTS != "" {
		meta[bus.MetaHistory] = s.threadHistory(ctx, in.channel, in.threadTS)
	}
	threadTS := in.threadTS
	if s.cfg.ReplyInThread && threadTS == "" {
		threadTS = in.ts
	}
	if threadTS != "" {
		meta[bus.MetaThreadTS] = threadTS
	}

	// Best-effort reaction.
	if s.cfg.ReactEmoji != "" && in.ts != "" {
		err := s.api.AddReactionContext(ctx, s.cfg.ReactEmoji, slackgo.ItemRef{Channel: in.channel, Timestamp: in.ts})
		if err != nil {
			slog.Warn("slack: failed to add reaction", "err", err)
		}
	}

	if err := s.HandleMessage(ctx, in.user, in.channel, text, meta); err != nil {
		slog.Error("slack: failed to queue question", "channel", in.channel, "err", err)
	}
}

// threadHistory returns the messages of a thread, oldest first. Messages
// posted by a bot count as assistant turns.
func (s *SlackChannel) threadHistory(ctx context.Context, channel, threadTS string) []bus.Turn {
	msgs, _, _, err := s.api.GetConversationRepliesContext(ctx, &slackgo.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTS,
	})
	if err != nil {
		slog.Error("slack: error fetching thread history", "err", err)
		return nil
	}
	turns := make([]bus.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, bus.Turn{FromBot: m.BotID != "", Text: m.Text})
	}
	slog.Debug("slack: retrieved thread messages", "count", len(msgs))
	return turns
}

func (s *SlackChannel) isAllowedSlack(user, channel, channelType string) bool {
	if channelType == "im" {
		if !s.cfg.DM.Enabled {
			return false
		}
		if s.cfg.DM.Policy == "allowlist" {
			return slices.Contains(s.cfg.DM.AllowFrom, user)
		}
		return true
	}
	if s.cfg.GroupPolicy == "allowlist" {
		return slices.Contains(s.cfg.GroupAllowFrom, channel)
	}
	return true
}

func (s *SlackChannel) shouldRespond(evType, text, channel string) bool {
	switch s.cfg.GroupPolicy {
	case "open":
		return true
	case "mention", "":
		if evType == "app_mention" {
			return true
		}
		return s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">")
	case "allowlist":
		return slices.Contains(s.cfg.GroupAllowFrom, channel)
	}
	return false
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return strings.TrimSpace(text)
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}

// Send posts msg in as many messages as SplitMessage yields, in the
// originating thread when there is one.
func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.api == nil {
		return nil
	}
	threadTS, _ := msg.Metadata[bus.MetaThreadTS].(string)

	chunks := SplitMessage(msg.Content, s.cfg.MaxMessageChars)
	slog.Debug("slack: sending response", "messages", len(chunks))
	for i, chunk := range chunks {
		options := []slackgo.MsgOption{slackgo.MsgOptionText(chunk, false)}
		if threadTS != "" {
			options = append(options, slackgo.MsgOptionTS(threadTS))
		}
		if _, _, err := s.api.PostMessageContext(ctx, msg.ChatID, options...); err != nil {
			return fmt.Errorf("post message %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}
