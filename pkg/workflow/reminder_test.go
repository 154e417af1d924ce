package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
)

type stubService struct {
	due []DueCard
	err error
}

func (s *stubService) CreateCard(ctx context.Context, board, list, title, desc string) (Card, error) {
	return Card{}, nil
}
func (s *stubService) MoveCard(ctx context.Context, cardID, list string) error    { return nil }
func (s *stubService) CommentCard(ctx context.Context, cardID, text string) error { return nil }
func (s *stubService) ListBoards(ctx context.Context) ([]Board, error)            { return nil, nil }
func (s *stubService) ListLists(ctx context.Context, board string) ([]List, error) {
	return nil, nil
}
func (s *stubService) UpcomingDueCards(ctx context.Context, days int) ([]DueCard, error) {
	return s.due, s.err
}

func reminderConfig() config.TrelloConfig {
	return config.TrelloConfig{
		ReminderCron:      "0 9 * * *",
		ReminderDaysAhead: 2,
		ReminderGateway:   "slack",
		ReminderChannel:   "C-reminders",
	}
}

func TestNewReminderRejectsBadCron(t *testing.T) {
	_, err := NewReminder(&stubService{}, bus.NewMessageBus(), config.TrelloConfig{
		ReminderCron:    "not a schedule",
		ReminderChannel: "C1",
	}, time.UTC)
	if err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestSweepPublishesReminder(t *testing.T) {
	b := bus.NewMessageBus()
	svc := &stubService{due: []DueCard{
		{Card: Card{Name: "Polish the silver", URL: "https://trello.example/c/c1"}, BoardName: "Main Board", DueAt: time.Now().Add(12 * time.Hour)},
	}}

	r, err := NewReminder(svc, b, reminderConfig(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeOutbound(ctx)
	if !ok {
		t.Fatal("expected a reminder message")
	}
	if msg.Gateway != "slack" || msg.ChannelID != "C-reminders" {
		t.Errorf("reminder misrouted: %+v", msg)
	}
	if !strings.Contains(msg.Text, "Polish the silver") || !strings.Contains(msg.Text, "Main Board") {
		t.Errorf("reminder missing card details: %q", msg.Text)
	}
}

func TestSweepWithNothingDueStaysQuiet(t *testing.T) {
	b := bus.NewMessageBus()
	r, err := NewReminder(&stubService{}, b, reminderConfig(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if msg, ok := b.ConsumeOutbound(ctx); ok {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestSweepPropagatesServiceError(t *testing.T) {
	r, err := NewReminder(&stubService{err: errors.New("boards unreachable")}, bus.NewMessageBus(), reminderConfig(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Sweep(context.Background()); err == nil {
		t.Error("expected the service error to propagate")
	}
}
