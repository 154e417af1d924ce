package channels

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

// ConsoleChannel is a local REPL gateway, mainly for development. Every
// line is treated as a direct message from the operator.
type ConsoleChannel struct {
	*BaseChannel
	rl *readline.Instance
}

func NewConsoleChannel(b *bus.MessageBus) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", b, nil),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("console readline: %w", err)
	}
	c.rl = rl
	c.setRunning(true)

	go func() {
		defer rl.Close()
		for {
			if ctx.Err() != nil {
				return
			}
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF || err != nil {
				logger.InfoC("console", "Console input closed")
				c.setRunning(false)
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			c.publish(bus.InboundEvent{
				Kind:      bus.EventMessage,
				ChannelID: "console",
				UserID:    "operator",
				UserName:  "operator",
				Text:      line,
				IsDirect:  true,
			})
		}
	}()
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.rl != nil {
		fmt.Fprintf(c.rl.Stdout(), "%s\n", msg.Text)
		return nil
	}
	fmt.Println(msg.Text)
	return nil
}
