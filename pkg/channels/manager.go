package channels

import (
	"context"
	"fmt"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

// Manager owns the enabled gateways and pumps the outbound stream to
// whichever gateway each message belongs to.
type Manager struct {
	bus      *bus.MessageBus
	channels map[string]Channel
}

func NewManager(cfg *config.Config, b *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		bus:      b,
		channels: make(map[string]Channel),
	}

	if cfg.Channels.Slack.Enabled {
		ch, err := NewSlackChannel(cfg.Channels.Slack, b)
		if err != nil {
			return nil, fmt.Errorf("slack channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.Channels.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Channels.Discord, b)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}
	if cfg.Channels.Console.Enabled {
		m.channels["console"] = NewConsoleChannel(b)
	}

	if len(m.channels) == 0 {
		return nil, fmt.Errorf("no channels enabled")
	}
	return m, nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		logger.InfoCF("channels", "Channel started", map[string]interface{}{"channel": name})
	}
	go m.dispatchOutbound(ctx)
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel stop failed", map[string]interface{}{
				"channel": name, "error": err.Error(),
			})
		}
	}
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.channels[msg.Gateway]
		if !found {
			logger.WarnCF("channels", "No gateway for outbound message", map[string]interface{}{
				"gateway": msg.Gateway, "channel": msg.ChannelID,
			})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Delivery failed", map[string]interface{}{
				"gateway": msg.Gateway, "channel": msg.ChannelID, "error": err.Error(),
			})
		}
	}
}
