package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pennyworth-bot/pennyworth/pkg/config"
	"github.com/pennyworth-bot/pennyworth/pkg/retry"
)

func newFakeTrello(t *testing.T) (*httptest.Server, *TrelloClient) {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /members/me/boards", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" || r.URL.Query().Get("token") != "t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]Board{{ID: "b1", Name: "Main Board"}, {ID: "b2", Name: "Side Project"}})
	})
	mux.HandleFunc("GET /boards/b1/lists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]List{{ID: "l1", Name: "To Do"}, {ID: "l2", Name: "Done"}})
	})
	mux.HandleFunc("POST /cards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Card{
			ID:     "c1",
			Name:   r.URL.Query().Get("name"),
			ListID: r.URL.Query().Get("idList"),
			URL:    "https://trello.example/c/c1",
		})
	})
	mux.HandleFunc("GET /cards/c1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Card{ID: "c1", Name: "Fix the gate", BoardID: "b1"})
	})
	mux.HandleFunc("PUT /cards/c1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idList") != "l2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Card{ID: "c1"})
	})
	mux.HandleFunc("POST /cards/c1/actions/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /boards/b1/cards", func(w http.ResponseWriter, r *http.Request) {
		soon := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
		far := time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339)
		json.NewEncoder(w).Encode([]Card{
			{ID: "c1", Name: "Due soon", Due: soon},
			{ID: "c2", Name: "Due later", Due: far},
			{ID: "c3", Name: "No due date"},
		})
	})
	mux.HandleFunc("GET /boards/b2/cards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Card{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewTrelloClient(config.TrelloConfig{
		APIBase: srv.URL,
		APIKey:  "k",
		Token:   "t",
	})
	return srv, client
}

func TestListBoards(t *testing.T) {
	_, client := newFakeTrello(t)
	boards, err := client.ListBoards(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(boards) != 2 || boards[0].Name != "Main Board" {
		t.Errorf("unexpected boards: %+v", boards)
	}
}

func TestCreateCardResolvesNames(t *testing.T) {
	_, client := newFakeTrello(t)
	card, err := client.CreateCard(context.Background(), "Main Board", "To Do", "Polish the silver", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Name != "Polish the silver" {
		t.Errorf("unexpected card name: %q", card.Name)
	}
	if card.ListID != "l1" {
		t.Errorf("card should land in the To Do list, got %q", card.ListID)
	}
}

func TestCreateCardUnknownListIsPermanent(t *testing.T) {
	_, client := newFakeTrello(t)
	_, err := client.CreateCard(context.Background(), "Main Board", "Nonexistent", "x", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("unknown list should be a permanent error, got %v", err)
	}
}

func TestMoveCard(t *testing.T) {
	_, client := newFakeTrello(t)
	if err := client.MoveCard(context.Background(), "c1", "Done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCommentCard(t *testing.T) {
	_, client := newFakeTrello(t)
	if err := client.CommentCard(context.Background(), "c1", "looks good"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpcomingDueCardsFiltersWindow(t *testing.T) {
	_, client := newFakeTrello(t)
	due, err := client.UpcomingDueCards(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due card, got %d", len(due))
	}
	if due[0].Name != "Due soon" {
		t.Errorf("unexpected due card: %+v", due[0])
	}
	if due[0].BoardName != "Main Board" {
		t.Errorf("board annotation missing: %+v", due[0])
	}
}

func TestAuthFailureIsPermanent(t *testing.T) {
	_, client := newFakeTrello(t)
	client.key = "wrong"
	_, err := client.ListBoards(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("401 should classify as permanent, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewTrelloClient(config.TrelloConfig{APIBase: srv.URL, APIKey: "k", Token: "t"})
	_, err := client.ListBoards(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if retry.IsPermanent(err) {
		t.Errorf("500 should classify as transient, got %v", err)
	}
}
