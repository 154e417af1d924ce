package channels

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", b, cfg.AllowFrom),
		session:     session,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onMemberAdd)
	c.session.AddHandler(c.onMemberRemove)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	c.setRunning(true)
	logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
		"username": c.session.State.User.Username,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	return c.session.Close()
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ThreadRef != "" {
		_, err := c.session.ChannelMessageSendReply(msg.ChannelID, msg.Text, &discordgo.MessageReference{
			MessageID: msg.ThreadRef,
			ChannelID: msg.ChannelID,
		})
		return err
	}
	_, err := c.session.ChannelMessageSend(msg.ChannelID, msg.Text)
	return err
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id": m.Author.ID,
		})
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}

	isDirect := false
	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		isDirect = ch.Type == discordgo.ChannelTypeDM
	} else if ch, err := s.Channel(m.ChannelID); err == nil {
		isDirect = ch.Type == discordgo.ChannelTypeDM
	}

	c.publish(bus.InboundEvent{
		Kind:         bus.EventMessage,
		ChannelID:    m.ChannelID,
		UserID:       m.Author.ID,
		UserName:     m.Author.Username,
		Text:         m.ContentWithMentionsReplaced(),
		IsDirect:     isDirect,
		WasMentioned: mentioned,
		Metadata: map[string]string{
			"display_name": m.Author.GlobalName,
			"real_name":    m.Author.Username,
			"message_id":   m.ID,
		},
	})
}

func (c *DiscordChannel) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil {
		return
	}
	channelID := systemChannelID(s, m.GuildID)
	if channelID == "" {
		return
	}
	c.publish(bus.InboundEvent{
		Kind:      bus.EventMemberJoined,
		ChannelID: channelID,
		UserID:    m.User.ID,
		UserName:  m.User.Username,
		Metadata: map[string]string{
			"display_name": m.User.GlobalName,
			"real_name":    m.User.Username,
		},
	})
}

func (c *DiscordChannel) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil {
		return
	}
	channelID := systemChannelID(s, m.GuildID)
	if channelID == "" {
		return
	}
	c.publish(bus.InboundEvent{
		Kind:      bus.EventMemberLeft,
		ChannelID: channelID,
		UserID:    m.User.ID,
		UserName:  m.User.Username,
		Metadata: map[string]string{
			"display_name": m.User.GlobalName,
			"real_name":    m.User.Username,
		},
	})
}

func systemChannelID(s *discordgo.Session, guildID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.SystemChannelID
}
