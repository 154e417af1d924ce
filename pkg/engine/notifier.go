package engine

import (
	"fmt"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
	"github.com/pennyworth-bot/pennyworth/pkg/persona"
)

// Notifier handles membership and channel lifecycle events. It is
// strictly best-effort: a failed notification is logged and swallowed,
// never surfaced to the channel or allowed to stall the engine.
type Notifier struct {
	bus    *bus.MessageBus
	voice  *persona.Responder
	social map[string]string // gateway -> announcement channel
}

func NewNotifier(b *bus.MessageBus, voice *persona.Responder, cfg *config.Config) *Notifier {
	social := make(map[string]string)
	if cfg.Channels.Slack.SocialChannel != "" {
		social["slack"] = cfg.Channels.Slack.SocialChannel
	}
	return &Notifier{bus: b, voice: voice, social: social}
}

func (n *Notifier) Handle(ev bus.InboundEvent) {
	if err := n.notify(ev); err != nil {
		logger.WarnCF("notifier", "Notification failed", map[string]interface{}{
			"kind": string(ev.Kind), "channel": ev.ChannelID, "error": err.Error(),
		})
	}
}

func (n *Notifier) notify(ev bus.InboundEvent) error {
	address := n.voice.Address(ev.UserID, firstNonEmpty(ev.Metadata["display_name"], ev.UserName), ev.Metadata["real_name"])

	switch ev.Kind {
	case bus.EventMemberJoined:
		n.bus.PublishOutbound(bus.OutboundMessage{
			Gateway:   ev.Gateway,
			ChannelID: ev.ChannelID,
			Text:      n.voice.WelcomeMember(address),
		})
		if social, ok := n.social[ev.Gateway]; ok && social != ev.ChannelID {
			n.bus.PublishOutbound(bus.OutboundMessage{
				Gateway:   ev.Gateway,
				ChannelID: social,
				Text:      n.voice.AnnounceMember(address),
			})
		}
		return nil

	case bus.EventMemberLeft:
		target := ev.ChannelID
		if social, ok := n.social[ev.Gateway]; ok {
			target = social
		}
		n.bus.PublishOutbound(bus.OutboundMessage{
			Gateway:   ev.Gateway,
			ChannelID: target,
			Text:      n.voice.FarewellMember(address),
		})
		return nil

	case bus.EventChannelCreated, bus.EventChannelArchived, bus.EventChannelUnarchived:
		social, ok := n.social[ev.Gateway]
		if !ok {
			return nil
		}
		name := ev.Metadata["channel_name"]
		if name == "" {
			name = ev.ChannelID
		}
		n.bus.PublishOutbound(bus.OutboundMessage{
			Gateway:   ev.Gateway,
			ChannelID: social,
			Text:      n.voice.ChannelLifecycle(lifecycleName(ev.Kind), name),
		})
		return nil

	default:
		return fmt.Errorf("unexpected notification kind %q", ev.Kind)
	}
}

func lifecycleName(kind bus.EventKind) string {
	switch kind {
	case bus.EventChannelCreated:
		return "created"
	case bus.EventChannelArchived:
		return "archived"
	case bus.EventChannelUnarchived:
		return "unarchived"
	default:
		return string(kind)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
