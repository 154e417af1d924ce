package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishAndConsumeInbound(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundEvent{Kind: EventMessage, ChannelID: "C1", Text: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.ChannelID != "C1" || ev.Text != "hello" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestConsumeInboundHonorsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("expected consume to give up on cancellation")
	}
}

func TestFullChannelDropsOldest(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < 150; i++ {
		mb.PublishInbound(InboundEvent{Kind: EventMessage, Text: fmt.Sprintf("msg %d", i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Text == "msg 0" {
		t.Error("oldest event should have been dropped under pressure")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	// Must not panic on a closed channel.
	mb.PublishInbound(InboundEvent{Kind: EventMessage})
	mb.PublishOutbound(OutboundMessage{ChannelID: "C1"})
}

func TestPublishRacingCloseDoesNotPanic(t *testing.T) {
	mb := NewMessageBus()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				mb.PublishInbound(InboundEvent{Kind: EventMessage})
				mb.PublishOutbound(OutboundMessage{ChannelID: "C1"})
			}
		}()
	}
	mb.Close()
	wg.Wait()
}
