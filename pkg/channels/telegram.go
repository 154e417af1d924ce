package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

const telegramMaxLen = 4096

// TelegramChannel runs the bot in long-polling mode. Private chats map
// to direct conversations; an "@botname" mention in a group marks the
// event as addressed to the assistant.
type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChannelID, err)
	}

	for _, chunk := range splitLargeMessage(msg.Text, telegramMaxLen) {
		if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (c *TelegramChannel) handleMessage(message *telego.Message) {
	user := message.From
	if user == nil || message.Text == "" {
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	if !c.IsAllowed(userID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id": userID, "username": user.Username,
		})
		return
	}

	text := message.Text
	mentioned := false
	if botName := c.bot.Username(); botName != "" {
		tag := "@" + botName
		if strings.Contains(text, tag) {
			mentioned = true
			text = strings.TrimSpace(strings.ReplaceAll(text, tag, ""))
		}
	}

	displayName := user.Username
	realName := strings.TrimSpace(user.FirstName + " " + user.LastName)

	c.publish(bus.InboundEvent{
		Kind:         bus.EventMessage,
		ChannelID:    strconv.FormatInt(message.Chat.ID, 10),
		UserID:       userID,
		UserName:     displayName,
		Text:         text,
		IsDirect:     message.Chat.Type == "private",
		WasMentioned: mentioned,
		Metadata: map[string]string{
			"display_name": displayName,
			"real_name":    realName,
			"message_id":   strconv.Itoa(message.MessageID),
		},
	})
}

// splitLargeMessage splits a message into chunks below the platform
// limit, preferring to break at a newline in the last third.
func splitLargeMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	remaining := content
	for len(remaining) > 0 {
		chunkSize := maxLen
		if len(remaining) < chunkSize {
			chunkSize = len(remaining)
		}
		if chunkSize == maxLen {
			lastNewline := strings.LastIndex(remaining[:chunkSize], "\n")
			if lastNewline > maxLen*2/3 {
				chunkSize = lastNewline + 1
			}
		}
		chunks = append(chunks, remaining[:chunkSize])
		remaining = remaining[chunkSize:]
	}
	return chunks
}
