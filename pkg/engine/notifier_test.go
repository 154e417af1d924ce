package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/persona"
)

func newTestNotifier(t *testing.T, socialChannel string) (*Notifier, *bus.MessageBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Channels.Slack.SocialChannel = socialChannel

	b := bus.NewMessageBus()
	voice := persona.NewResponder("Pennyworth", time.UTC)
	voice.WithPicker(func(n int) int { return 0 })
	return NewNotifier(b, voice, cfg), b
}

func collectOutbound(t *testing.T, b *bus.MessageBus, n int) []bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := make([]bus.OutboundMessage, 0, n)
	for i := 0; i < n; i++ {
		msg, ok := b.ConsumeOutbound(ctx)
		if !ok {
			t.Fatalf("expected %d outbound messages, got %d", n, len(out))
		}
		out = append(out, msg)
	}
	return out
}

func TestMemberJoinedWelcomesAndAnnounces(t *testing.T) {
	n, b := newTestNotifier(t, "C-social")

	n.Handle(bus.InboundEvent{
		Kind:      bus.EventMemberJoined,
		Gateway:   "slack",
		ChannelID: "C-general",
		UserID:    "U9",
		UserName:  "selina",
		Metadata:  map[string]string{"display_name": "selina"},
	})

	msgs := collectOutbound(t, b, 2)
	if msgs[0].ChannelID != "C-general" || !strings.Contains(msgs[0].Text, "Welcome aboard") {
		t.Errorf("unexpected welcome: %+v", msgs[0])
	}
	if msgs[1].ChannelID != "C-social" || !strings.Contains(msgs[1].Text, "Master selina") {
		t.Errorf("unexpected announcement: %+v", msgs[1])
	}
}

func TestMemberJoinedWithoutSocialChannel(t *testing.T) {
	n, b := newTestNotifier(t, "")

	n.Handle(bus.InboundEvent{
		Kind:      bus.EventMemberJoined,
		Gateway:   "slack",
		ChannelID: "C-general",
		UserID:    "U9",
		UserName:  "selina",
	})

	msgs := collectOutbound(t, b, 1)
	if msgs[0].ChannelID != "C-general" {
		t.Errorf("welcome misrouted: %+v", msgs[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if extra, ok := b.ConsumeOutbound(ctx); ok {
		t.Errorf("unexpected extra message: %+v", extra)
	}
}

func TestMemberLeftGoesToSocialChannel(t *testing.T) {
	n, b := newTestNotifier(t, "C-social")

	n.Handle(bus.InboundEvent{
		Kind:      bus.EventMemberLeft,
		Gateway:   "slack",
		ChannelID: "C-general",
		UserID:    "U9",
		UserName:  "selina",
	})

	msgs := collectOutbound(t, b, 1)
	if msgs[0].ChannelID != "C-social" || !strings.Contains(msgs[0].Text, "taken their leave") {
		t.Errorf("unexpected farewell: %+v", msgs[0])
	}
}

func TestChannelLifecycleAnnouncements(t *testing.T) {
	n, b := newTestNotifier(t, "C-social")

	n.Handle(bus.InboundEvent{
		Kind:      bus.EventChannelCreated,
		Gateway:   "slack",
		ChannelID: "C-new",
		Metadata:  map[string]string{"channel_name": "batcave"},
	})

	msgs := collectOutbound(t, b, 1)
	if !strings.Contains(msgs[0].Text, "#batcave") {
		t.Errorf("channel name missing: %q", msgs[0].Text)
	}
}

func TestUnexpectedKindIsSwallowed(t *testing.T) {
	n, b := newTestNotifier(t, "C-social")

	// Must not panic or publish anything.
	n.Handle(bus.InboundEvent{Kind: bus.EventMessage, Gateway: "slack", ChannelID: "C1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msg, ok := b.ConsumeOutbound(ctx); ok {
		t.Errorf("unexpected message: %+v", msg)
	}
}
