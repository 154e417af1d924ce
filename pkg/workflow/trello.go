// Package workflow implements the task-board service boundary against
// the Trello REST API. Board and list lookups are by name, mirroring
// the chat command grammar, with a small cache to avoid re-walking the
// board list on every command.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/logger"
	"github.com/pennyworth-bot/pennyworth/pkg/retry"
)

type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Card struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Due     string `json:"due"`
	ListID  string `json:"idList"`
	BoardID string `json:"idBoard"`
}

// DueCard is a card approaching its due date, annotated with where it
// lives for the reminder announcement.
type DueCard struct {
	Card
	BoardName string
	DueAt     time.Time
}

// Service is the workflow capability the engine consumes.
type Service interface {
	CreateCard(ctx context.Context, board, list, title, description string) (Card, error)
	MoveCard(ctx context.Context, cardID, targetList string) error
	CommentCard(ctx context.Context, cardID, text string) error
	ListBoards(ctx context.Context) ([]Board, error)
	ListLists(ctx context.Context, board string) ([]List, error)
	UpcomingDueCards(ctx context.Context, daysAhead int) ([]DueCard, error)
}

type TrelloClient struct {
	httpClient *http.Client
	base       string
	key        string
	token      string

	mu     sync.Mutex
	boards map[string]Board // lowercase name -> board
	lists  map[string]List  // "boardID:lowercase name" -> list
}

func NewTrelloClient(cfg config.TrelloConfig) *TrelloClient {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.trello.com/1"
	}
	return &TrelloClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		base:       base,
		key:        cfg.APIKey,
		token:      cfg.Token,
		boards:     make(map[string]Board),
		lists:      make(map[string]List),
	}
}

func (c *TrelloClient) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.key)
	query.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("trello request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("trello %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("trello %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return retry.Transient(err)
		}
		return retry.Permanent(err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Transient(fmt.Errorf("trello %s %s: decode: %w", method, path, err))
	}
	return nil
}

func (c *TrelloClient) ListBoards(ctx context.Context) ([]Board, error) {
	var boards []Board
	q := url.Values{"fields": {"name"}}
	if err := c.do(ctx, http.MethodGet, "/members/me/boards", q, &boards); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, b := range boards {
		c.boards[strings.ToLower(b.Name)] = b
	}
	c.mu.Unlock()
	return boards, nil
}

func (c *TrelloClient) findBoard(ctx context.Context, name string) (Board, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	c.mu.Lock()
	b, ok := c.boards[key]
	c.mu.Unlock()
	if ok {
		return b, nil
	}

	boards, err := c.ListBoards(ctx)
	if err != nil {
		return Board{}, err
	}
	for _, b := range boards {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return Board{}, retry.Permanent(fmt.Errorf("board %q not found", name))
}

func (c *TrelloClient) ListLists(ctx context.Context, board string) ([]List, error) {
	b, err := c.findBoard(ctx, board)
	if err != nil {
		return nil, err
	}
	return c.listsOnBoard(ctx, b.ID)
}

func (c *TrelloClient) listsOnBoard(ctx context.Context, boardID string) ([]List, error) {
	var lists []List
	q := url.Values{"fields": {"name"}}
	if err := c.do(ctx, http.MethodGet, "/boards/"+boardID+"/lists", q, &lists); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, l := range lists {
		c.lists[boardID+":"+strings.ToLower(l.Name)] = l
	}
	c.mu.Unlock()
	return lists, nil
}

func (c *TrelloClient) findList(ctx context.Context, boardID, name string) (List, error) {
	key := boardID + ":" + strings.ToLower(strings.TrimSpace(name))

	c.mu.Lock()
	l, ok := c.lists[key]
	c.mu.Unlock()
	if ok {
		return l, nil
	}

	lists, err := c.listsOnBoard(ctx, boardID)
	if err != nil {
		return List{}, err
	}
	for _, l := range lists {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return List{}, retry.Permanent(fmt.Errorf("list %q not found", name))
}

func (c *TrelloClient) CreateCard(ctx context.Context, board, list, title, description string) (Card, error) {
	b, err := c.findBoard(ctx, board)
	if err != nil {
		return Card{}, err
	}
	l, err := c.findList(ctx, b.ID, list)
	if err != nil {
		return Card{}, err
	}

	q := url.Values{
		"idList": {l.ID},
		"name":   {title},
	}
	if description != "" {
		q.Set("desc", description)
	}
	var card Card
	if err := c.do(ctx, http.MethodPost, "/cards", q, &card); err != nil {
		return Card{}, err
	}
	logger.InfoCF("trello", "Created card", map[string]interface{}{
		"card": card.Name, "board": b.Name, "list": l.Name,
	})
	return card, nil
}

func (c *TrelloClient) MoveCard(ctx context.Context, cardID, targetList string) error {
	var card Card
	q := url.Values{"fields": {"name,idBoard"}}
	if err := c.do(ctx, http.MethodGet, "/cards/"+cardID, q, &card); err != nil {
		return err
	}

	l, err := c.findList(ctx, card.BoardID, targetList)
	if err != nil {
		return err
	}

	mq := url.Values{"idList": {l.ID}}
	if err := c.do(ctx, http.MethodPut, "/cards/"+cardID, mq, nil); err != nil {
		return err
	}
	logger.InfoCF("trello", "Moved card", map[string]interface{}{
		"card": card.Name, "list": l.Name,
	})
	return nil
}

func (c *TrelloClient) CommentCard(ctx context.Context, cardID, text string) error {
	q := url.Values{"text": {text}}
	return c.do(ctx, http.MethodPost, "/cards/"+cardID+"/actions/comments", q, nil)
}

// UpcomingDueCards sweeps every visible board for cards due within
// daysAhead days.
func (c *TrelloClient) UpcomingDueCards(ctx context.Context, daysAhead int) ([]DueCard, error) {
	boards, err := c.ListBoards(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	threshold := now.AddDate(0, 0, daysAhead)
	var due []DueCard
	for _, b := range boards {
		var cards []Card
		q := url.Values{"fields": {"name,due,url,idList"}}
		if err := c.do(ctx, http.MethodGet, "/boards/"+b.ID+"/cards", q, &cards); err != nil {
			return nil, err
		}
		for _, card := range cards {
			if card.Due == "" {
				continue
			}
			dueAt, err := time.Parse(time.RFC3339, card.Due)
			if err != nil {
				logger.WarnCF("trello", "Unparseable due date", map[string]interface{}{
					"card": card.Name, "due": card.Due,
				})
				continue
			}
			if dueAt.After(now) && dueAt.Before(threshold) {
				due = append(due, DueCard{Card: card, BoardName: b.Name, DueAt: dueAt})
			}
		}
	}
	return due, nil
}
