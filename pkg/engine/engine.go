// Package engine is the conversation core: it consumes inbound events
// from the bus, classifies them, runs the matching handler, and
// publishes replies. Events from the same channel are handled in
// arrival order; unrelated channels proceed independently.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/bus"
	"github.com/pennyworth-bot/pennyworth/pkg/command"
	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/conversation"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
	"github.com/pennyworth-bot/pennyworth/pkg/persona"
	"github.com/pennyworth-bot/pennyworth/pkg/providers"
	"github.com/pennyworth-bot/pennyworth/pkg/retry"
	"github.com/pennyworth-bot/pennyworth/pkg/workflow"
)

const workerQueueSize = 32

type Engine struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	parser   *command.Parser
	store    *conversation.Store
	provider providers.CompletionProvider
	workflow workflow.Service
	voice    *persona.Responder
	notifier *Notifier
	policy   retry.Policy

	mu      sync.Mutex
	workers map[string]chan bus.InboundEvent
	wg      sync.WaitGroup
}

func NewEngine(cfg *config.Config, b *bus.MessageBus, provider providers.CompletionProvider, wf workflow.Service) *Engine {
	voice := persona.NewResponder(cfg.Assistant.Name, cfg.Location())
	return &Engine{
		cfg: cfg,
		bus: b,
		parser: command.NewParser(cfg.Assistant.GreetingTokens).WithPrefixes(
			cfg.Assistant.AIPrefix, cfg.Assistant.SummarizePrefix, cfg.Assistant.TrelloPrefix),
		store:    conversation.NewStore(cfg.Assistant.MaxContextTurns),
		provider: provider,
		workflow: wf,
		voice:    voice,
		notifier: NewNotifier(b, voice, cfg),
		policy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
			Multiplier:  cfg.Retry.Multiplier,
		},
	}
}

// Voice exposes the responder for components that render their own text.
func (e *Engine) Voice() *persona.Responder { return e.voice }

// Run consumes the inbound stream until ctx is cancelled, then waits for
// in-flight handlers to drain.
func (e *Engine) Run(ctx context.Context) {
	logger.InfoC("engine", "Conversation engine started")
	for {
		ev, ok := e.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		e.dispatch(ctx, ev)
	}
	e.wg.Wait()
	logger.InfoC("engine", "Conversation engine stopped")
}

// dispatch hands the event to its channel's worker so same-channel
// ordering is preserved without serializing the whole engine.
func (e *Engine) dispatch(ctx context.Context, ev bus.InboundEvent) {
	switch ev.Kind {
	case bus.EventMemberJoined, bus.EventMemberLeft,
		bus.EventChannelCreated, bus.EventChannelArchived, bus.EventChannelUnarchived:
		e.notifier.Handle(ev)
		return
	}

	e.mu.Lock()
	queue, ok := e.workers[ev.ChannelID]
	if !ok {
		if e.workers == nil {
			e.workers = make(map[string]chan bus.InboundEvent)
		}
		queue = make(chan bus.InboundEvent, workerQueueSize)
		e.workers[ev.ChannelID] = queue
		e.wg.Add(1)
		go e.channelWorker(ctx, queue)
	}
	e.mu.Unlock()

	select {
	case queue <- ev:
	case <-ctx.Done():
	default:
		// Queue full: drop the oldest waiting event so the freshest
		// ones are the ones that get answered.
		select {
		case dropped := <-queue:
			logger.ErrorCF("engine", "Channel queue full, dropped oldest event", map[string]interface{}{
				"channel": ev.ChannelID, "correlation_id": dropped.CorrelationID,
			})
		default:
		}
		select {
		case queue <- ev:
		default:
		}
	}
}

func (e *Engine) channelWorker(ctx context.Context, queue chan bus.InboundEvent) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			reply, err := e.HandleEvent(ctx, ev)
			if err != nil {
				logger.ErrorCF("engine", "Handler failed", map[string]interface{}{
					"channel": ev.ChannelID, "correlation_id": ev.CorrelationID, "error": err.Error(),
				})
			}
			if reply != nil {
				e.bus.PublishOutbound(*reply)
			}
		}
	}
}

// HandleEvent runs one event through classify and the matching handler.
// A nil reply with nil error means the event was deliberately dropped.
func (e *Engine) HandleEvent(ctx context.Context, ev bus.InboundEvent) (*bus.OutboundMessage, error) {
	cmd := e.parser.Classify(ev.Text, ev.IsDirect, ev.WasMentioned)
	logger.DebugCF("engine", "Classified event", map[string]interface{}{
		"kind": cmd.Kind.String(), "channel": ev.ChannelID, "correlation_id": ev.CorrelationID,
	})

	address := e.addressFor(ev)

	var text string
	var err error
	switch cmd.Kind {
	case command.Greeting:
		if ev.WasMentioned {
			text = e.voice.Attend(address)
		} else {
			text = e.voice.Greet(address)
		}
	case command.AIQuery:
		text, err = e.handleQuery(ctx, ev, address, cmd.Query)
	case command.Summarize:
		text, err = e.handleSummarize(ctx, ev, address)
	case command.TrelloAction:
		text, err = e.handleTrello(ctx, address, cmd.Trello)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return &bus.OutboundMessage{
		Gateway:   ev.Gateway,
		ChannelID: ev.ChannelID,
		Text:      text,
		ThreadRef: ev.ThreadRef,
	}, nil
}

func (e *Engine) addressFor(ev bus.InboundEvent) string {
	display := ev.Metadata["display_name"]
	if display == "" {
		display = ev.UserName
	}
	return e.voice.Address(ev.UserID, display, ev.Metadata["real_name"])
}

// handleQuery answers an AI query with the channel's recent turns as
// context. The context buffer is touched only after the completion has
// fully succeeded, so a failed exchange leaves no trace.
func (e *Engine) handleQuery(ctx context.Context, ev bus.InboundEvent, address, query string) (string, error) {
	if query == "" {
		return e.voice.AskForQuery(address), nil
	}

	messages := e.contextMessages(ev.ChannelID)
	messages = append(messages, providers.Message{Role: "user", Content: query})

	reply, err := retry.Do(ctx, e.policy, "completion", func(ctx context.Context) (string, error) {
		return e.provider.Complete(ctx, e.voice.SystemPrompt(), messages)
	})
	if err != nil {
		return e.apologize(address, err), nil
	}

	speaker := ev.UserName
	if speaker == "" {
		speaker = ev.UserID
	}
	e.store.Append(ev.ChannelID, speaker, query)
	e.store.Append(ev.ChannelID, e.voice.Name(), reply)
	return reply, nil
}

func (e *Engine) handleSummarize(ctx context.Context, ev bus.InboundEvent, address string) (string, error) {
	turns := e.store.Recent(ev.ChannelID)
	if len(turns) == 0 {
		return e.voice.NothingToSummarize(address), nil
	}

	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Speaker, t.Text)
	}
	messages := []providers.Message{{Role: "user", Content: sb.String()}}

	summary, err := retry.Do(ctx, e.policy, "summary", func(ctx context.Context) (string, error) {
		return e.provider.Complete(ctx, e.voice.SummaryPrompt(), messages)
	})
	if err != nil {
		return e.apologize(address, err), nil
	}

	e.store.Append(ev.ChannelID, e.voice.Name(), summary)
	return summary, nil
}

func (e *Engine) handleTrello(ctx context.Context, address string, tc command.TrelloCommand) (string, error) {
	if tc.Verb == command.TrelloHelp {
		return e.voice.TrelloHelp(address), nil
	}
	if e.workflow == nil {
		return e.voice.WorkflowDisabled(address), nil
	}

	switch tc.Verb {
	case command.TrelloCreate:
		list := tc.ListName
		if list == "" {
			list = e.cfg.Trello.DefaultList
		}
		desc := e.taskDescription(ctx, tc.Title)
		card, err := retry.Do(ctx, e.policy, "trello.create", func(ctx context.Context) (workflow.Card, error) {
			return e.workflow.CreateCard(ctx, e.cfg.Trello.DefaultBoard, list, tc.Title, desc)
		})
		if err != nil {
			return e.apologize(address, err), nil
		}
		return e.voice.CardCreated(address, card.Name, list, card.URL), nil

	case command.TrelloMove:
		_, err := retry.Do(ctx, e.policy, "trello.move", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.workflow.MoveCard(ctx, tc.CardID, tc.ListName)
		})
		if err != nil {
			return e.apologize(address, err), nil
		}
		return e.voice.CardMoved(address, tc.CardID, tc.ListName), nil

	case command.TrelloComment:
		_, err := retry.Do(ctx, e.policy, "trello.comment", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.workflow.CommentCard(ctx, tc.CardID, tc.Comment)
		})
		if err != nil {
			return e.apologize(address, err), nil
		}
		return e.voice.CommentAdded(address, tc.CardID), nil

	case command.TrelloBoards:
		boards, err := retry.Do(ctx, e.policy, "trello.boards", func(ctx context.Context) ([]workflow.Board, error) {
			return e.workflow.ListBoards(ctx)
		})
		if err != nil {
			return e.apologize(address, err), nil
		}
		names := make([]string, 0, len(boards))
		for _, b := range boards {
			names = append(names, b.Name)
		}
		return e.voice.BoardInventory(address, names), nil

	case command.TrelloLists:
		lists, err := retry.Do(ctx, e.policy, "trello.lists", func(ctx context.Context) ([]workflow.List, error) {
			return e.workflow.ListLists(ctx, tc.BoardName)
		})
		if err != nil {
			return e.apologize(address, err), nil
		}
		names := make([]string, 0, len(lists))
		for _, l := range lists {
			names = append(names, l.Name)
		}
		return e.voice.ListInventory(address, tc.BoardName, names), nil

	default:
		return e.voice.TrelloHelp(address), nil
	}
}

// taskDescription drafts a card description from the title. Best
// effort: if the completion service is unavailable the card is created
// without one.
func (e *Engine) taskDescription(ctx context.Context, title string) string {
	if e.provider == nil {
		return ""
	}
	messages := []providers.Message{{Role: "user", Content: title}}
	desc, err := retry.Do(ctx, e.policy, "task.description", func(ctx context.Context) (string, error) {
		return e.provider.Complete(ctx, e.voice.DescriptionPrompt(), messages)
	})
	if err != nil {
		logger.WarnCF("engine", "Card description unavailable, creating without one", map[string]interface{}{
			"title": title, "error": err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(desc)
}

// apologize maps a service failure onto the right user-facing apology.
// Permanent failures get the firm refusal; an exhausted retry budget or
// anything else gets the generic fallback.
func (e *Engine) apologize(address string, err error) string {
	logger.WarnCF("engine", "Service call failed", map[string]interface{}{
		"error": err.Error(),
	})
	if retry.IsPermanent(err) {
		return e.voice.Refused(address)
	}
	return e.voice.Unavailable(address)
}

func (e *Engine) contextMessages(channelID string) []providers.Message {
	turns := e.store.Recent(channelID)
	messages := make([]providers.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := "user"
		content := t.Text
		if t.Speaker == e.voice.Name() {
			role = "assistant"
		} else {
			content = t.Speaker + ": " + t.Text
		}
		messages = append(messages, providers.Message{Role: role, Content: content})
	}
	return messages
}
