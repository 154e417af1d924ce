package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
)

// Reminder periodically sweeps the task boards for cards approaching
// their due dates and announces them on the configured channel.
type Reminder struct {
	svc       Service
	bus       *bus.MessageBus
	cron      string
	daysAhead int
	gateway   string
	channel   string
	loc       *time.Location
}

func NewReminder(svc Service, b *bus.MessageBus, cfg config.TrelloConfig, loc *time.Location) (*Reminder, error) {
	expr := cfg.ReminderCron
	if expr == "" {
		expr = "0 9 * * *"
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid reminder schedule %q", expr)
	}
	days := cfg.ReminderDaysAhead
	if days <= 0 {
		days = 2
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		svc:       svc,
		bus:       b,
		cron:      expr,
		daysAhead: days,
		gateway:   cfg.ReminderGateway,
		channel:   cfg.ReminderChannel,
		loc:       loc,
	}, nil
}

// Run blocks until ctx is cancelled, checking the schedule once a
// minute. Sweep failures are logged and the next tick tries again.
func (r *Reminder) Run(ctx context.Context) {
	if r.channel == "" {
		logger.InfoC("reminder", "No reminder channel configured, sweep disabled")
		return
	}

	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(r.cron, now.In(r.loc))
			if err != nil || !due {
				continue
			}
			if err := r.Sweep(ctx); err != nil {
				logger.ErrorCF("reminder", "Due-card sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Sweep queries the boards once and publishes a reminder message when
// anything is coming due.
func (r *Reminder) Sweep(ctx context.Context) error {
	cards, err := r.svc.UpcomingDueCards(ctx, r.daysAhead)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		logger.DebugC("reminder", "No cards approaching their due dates")
		return nil
	}

	r.bus.PublishOutbound(bus.OutboundMessage{
		Gateway:   r.gateway,
		ChannelID: r.channel,
		Text:      r.format(cards),
	})
	logger.InfoCF("reminder", "Published due-card reminder", map[string]interface{}{
		"cards": len(cards),
	})
	return nil
}

func (r *Reminder) format(cards []DueCard) string {
	var sb strings.Builder
	sb.WriteString("*A gentle reminder* :tophat:\nThe following cards require attention shortly:\n")
	for _, c := range cards {
		due := c.DueAt.In(r.loc).Format("Mon Jan 2, 15:04")
		fmt.Fprintf(&sb, "• *%s* (%s) due %s", c.Name, c.BoardName, due)
		if c.URL != "" {
			fmt.Fprintf(&sb, " - %s", c.URL)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("I suggest attending to these before they become overdue.")
	return sb.String()
}
