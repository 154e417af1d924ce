package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

// SlackChannel connects over Socket Mode, so no public ingress is
// needed. Mentions arrive twice from Slack (message + app_mention);
// the message copy is suppressed to avoid double handling.
type SlackChannel struct {
	*BaseChannel
	api       *slack.Client
	sock      *socketmode.Client
	botUserID string

	nameMu sync.Mutex
	names  map[string][2]string // userID -> display, real
}

func NewSlackChannel(cfg config.SlackConfig, b *bus.MessageBus) (*SlackChannel, error) {
	if cfg.BotToken == "" || cfg.AppToken == "" {
		return nil, fmt.Errorf("slack requires both bot_token and app_token")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", b, cfg.AllowFrom),
		api:         api,
		sock:        socketmode.New(api),
		names:       make(map[string][2]string),
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID
	logger.InfoCF("slack", "Authenticated", map[string]interface{}{
		"bot_user": auth.User, "bot_user_id": auth.UserID,
	})

	go func() {
		if err := c.sock.RunContext(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode terminated", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	go c.eventLoop(ctx)

	c.setRunning(true)
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("slack channel not running")
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.ThreadRef != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadRef))
	}
	_, _, err := c.api.PostMessageContext(ctx, msg.ChannelID, opts...)
	return err
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				logger.InfoC("slack", "Socket mode connected")
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					c.sock.Ack(*evt.Request)
				}
				if apiEvent.Type == slackevents.CallbackEvent {
					c.handleCallback(ctx, apiEvent.InnerEvent)
				}
			}
		}
	}
}

func (c *SlackChannel) handleCallback(ctx context.Context, inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessage(ctx, ev)
	case *slackevents.AppMentionEvent:
		c.handleMention(ctx, ev)
	case *slackevents.MemberJoinedChannelEvent:
		display, real := c.userNames(ctx, ev.User)
		c.publish(bus.InboundEvent{
			Kind:      bus.EventMemberJoined,
			ChannelID: ev.Channel,
			UserID:    ev.User,
			UserName:  display,
			Metadata:  map[string]string{"display_name": display, "real_name": real},
		})
	case *slackevents.MemberLeftChannelEvent:
		display, real := c.userNames(ctx, ev.User)
		c.publish(bus.InboundEvent{
			Kind:      bus.EventMemberLeft,
			ChannelID: ev.Channel,
			UserID:    ev.User,
			UserName:  display,
			Metadata:  map[string]string{"display_name": display, "real_name": real},
		})
	case *slackevents.ChannelCreatedEvent:
		c.publish(bus.InboundEvent{
			Kind:      bus.EventChannelCreated,
			ChannelID: ev.Channel.ID,
			Metadata:  map[string]string{"channel_name": ev.Channel.Name},
		})
	case *slackevents.ChannelArchiveEvent:
		c.publish(bus.InboundEvent{
			Kind:      bus.EventChannelArchived,
			ChannelID: ev.Channel,
		})
	case *slackevents.ChannelUnarchiveEvent:
		c.publish(bus.InboundEvent{
			Kind:      bus.EventChannelUnarchived,
			ChannelID: ev.Channel,
		})
	}
}

func (c *SlackChannel) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.BotID != "" || ev.User == "" || ev.SubType != "" {
		return
	}
	mentioned := strings.Contains(ev.Text, "<@"+c.botUserID+">")
	if mentioned {
		// app_mention carries this one.
		return
	}
	if !c.IsAllowed(ev.User) {
		logger.DebugCF("slack", "Message rejected by allowlist", map[string]interface{}{
			"user_id": ev.User,
		})
		return
	}

	display, real := c.userNames(ctx, ev.User)
	c.publish(bus.InboundEvent{
		Kind:      bus.EventMessage,
		ChannelID: ev.Channel,
		UserID:    ev.User,
		UserName:  display,
		Text:      ev.Text,
		ThreadRef: ev.ThreadTimeStamp,
		IsDirect:  ev.ChannelType == "im",
		Metadata:  map[string]string{"display_name": display, "real_name": real},
	})
}

func (c *SlackChannel) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == "" || !c.IsAllowed(ev.User) {
		return
	}
	display, real := c.userNames(ctx, ev.User)
	c.publish(bus.InboundEvent{
		Kind:         bus.EventAppMention,
		ChannelID:    ev.Channel,
		UserID:       ev.User,
		UserName:     display,
		Text:         ev.Text,
		ThreadRef:    ev.ThreadTimeStamp,
		WasMentioned: true,
		Metadata:     map[string]string{"display_name": display, "real_name": real},
	})
}

// userNames resolves and caches a user's display and real names. Lookup
// failures degrade to empty names rather than blocking the event.
func (c *SlackChannel) userNames(ctx context.Context, userID string) (string, string) {
	c.nameMu.Lock()
	if cached, ok := c.names[userID]; ok {
		c.nameMu.Unlock()
		return cached[0], cached[1]
	}
	c.nameMu.Unlock()

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		logger.DebugCF("slack", "User lookup failed", map[string]interface{}{
			"user_id": userID, "error": err.Error(),
		})
		return "", ""
	}

	display := user.Profile.DisplayName
	real := user.RealName
	c.nameMu.Lock()
	c.names[userID] = [2]string{display, real}
	c.nameMu.Unlock()
	return display, real
}
