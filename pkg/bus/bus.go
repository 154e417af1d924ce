package bus

import (
	"context"
	"sync"
)

// MessageBus decouples gateways from the engine. Gateways publish inbound
// events and subscribe to the outbound stream for their own deliveries.
type MessageBus struct {
	inbound   chan InboundEvent
	outbound  chan OutboundMessage
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundEvent, 100),
		outbound: make(chan OutboundMessage, 100),
	}
}

// PublishInbound queues an event without blocking. The read lock is
// held across the send so a concurrent Close cannot pull the channel
// out from under it; every send here is non-blocking, so the lock is
// never held while waiting.
func (mb *MessageBus) PublishInbound(ev InboundEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- ev:
	default:
		// Channel full — drop oldest and retry so fresh events win.
		select {
		case <-mb.inbound:
		default:
		}
		select {
		case mb.inbound <- ev:
		default:
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev := <-mb.inbound:
		return ev, true
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.outbound <- msg:
	default:
		select {
		case <-mb.outbound:
		default:
		}
		select {
		case mb.outbound <- msg:
		default:
		}
	}
}

func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.closed = true
		close(mb.inbound)
		close(mb.outbound)
	})
}
