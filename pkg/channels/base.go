// Package channels contains the platform gateways. Each gateway
// normalizes its platform's events into bus.InboundEvent and delivers
// bus.OutboundMessage back out; all conversation logic lives elsewhere.
package channels

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the shared gateway plumbing: allowlist checks,
// running state, and inbound publication with correlation IDs stamped.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
	running   atomic.Bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) *BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return &BaseChannel{
		name:      name,
		bus:       b,
		allowFrom: allowed,
	}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed applies the allowlist. An empty allowlist admits everyone.
func (c *BaseChannel) IsAllowed(userID string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	return c.allowFrom[userID]
}

func (c *BaseChannel) setRunning(v bool) { c.running.Store(v) }
func (c *BaseChannel) IsRunning() bool   { return c.running.Load() }

// publish stamps the gateway name, timestamp, and a fresh correlation ID
// before handing the event to the bus.
func (c *BaseChannel) publish(ev bus.InboundEvent) {
	ev.Gateway = c.name
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	logger.DebugCF(c.name, "Publishing inbound event", map[string]interface{}{
		"kind": string(ev.Kind), "channel": ev.ChannelID, "correlation_id": ev.CorrelationID,
	})
	c.bus.PublishInbound(ev)
}
