// Package conversation keeps the per-channel rolling context the engine
// feeds into completion prompts. Buffers are in-memory only and vanish
// on restart.
package conversation

import (
	"sync"
	"time"
)

// Turn is one (speaker, text, timestamp) entry in a channel's context.
type Turn struct {
	Speaker   string
	Text      string
	Timestamp time.Time
}

// Store holds one bounded FIFO buffer per channel. The channel map has
// its own lock so unrelated channels never contend on a single mutex;
// each buffer serializes its own appends.
type Store struct {
	capacity int
	mu       sync.RWMutex
	buffers  map[string]*buffer
}

type buffer struct {
	mu    sync.Mutex
	turns []Turn
}

func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		buffers:  make(map[string]*buffer),
	}
}

func (s *Store) bufferFor(channelID string) *buffer {
	s.mu.RLock()
	b, ok := s.buffers[channelID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buffers[channelID]; ok {
		return b
	}
	b = &buffer{}
	s.buffers[channelID] = b
	return b
}

// Append records a turn, evicting the oldest entry once the buffer is
// at capacity.
func (s *Store) Append(channelID, speaker, text string) {
	b := s.bufferFor(channelID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.turns) >= s.capacity {
		b.turns = b.turns[1:]
	}
	b.turns = append(b.turns, Turn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// Recent returns a snapshot of the channel's turns in arrival order.
// Callers may hold or mutate the slice freely.
func (s *Store) Recent(channelID string) []Turn {
	s.mu.RLock()
	b, ok := s.buffers[channelID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

func (s *Store) Clear(channelID string) {
	s.mu.RLock()
	b, ok := s.buffers[channelID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
}
