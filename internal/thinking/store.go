// Package thinking stores completed thinking segments across conversation
// turns so adapters can replay them on the next request.
package thinking

import (
	"sync"

	"github.com/ponderlabs/ponder/internal/domain"
)

// Current is the latest in-progress thinking text, useful to callers that
// want to render partial reasoning before the segment completes.
type Current struct {
	ID      string
	Content string
}

// Store holds the signed thinking segments of one session. It is constructed
// per session and torn down on conversation reset; nothing here is global.
// Entries accumulate for the life of the session, bounded only by
// conversation length.
type Store struct {
	mu      sync.Mutex
	order   []string
	items   map[string]domain.ThinkingItem
	current Current
}

// NewStore creates an empty session-scoped store.
func NewStore() *Store {
	return &Store{items: make(map[string]domain.ThinkingItem)}
}

// ProcessChunk folds one canonical chunk into the store. Non-thinking chunks
// are ignored. Every thinking chunk updates the in-progress pointer; the
// durable map is written only when the chunk reports completion AND carries a
// signature. An unsigned segment is provider-internal scratch data that
// cannot be replayed.
func (s *Store) ProcessChunk(chunk domain.StreamChunk) {
	if chunk.Type != domain.ChunkThinking {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = Current{ID: chunk.ID, Content: chunk.Content}

	if !chunk.IsComplete || chunk.Signature == "" {
		return
	}
	if _, exists := s.items[chunk.ID]; !exists {
		s.order = append(s.order, chunk.ID)
	}
	s.items[chunk.ID] = domain.ThinkingItem{
		Thinking:  chunk.Content,
		Signature: chunk.Signature,
	}
}

// Items returns the persisted segments in insertion order, which is the
// order their assistant turns completed. Adapters replay this positionally.
func (s *Store) Items() []domain.ThinkingItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.ThinkingItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.items[id])
	}
	return items
}

// Get returns the persisted segment for a response id.
func (s *Store) Get(id string) (domain.ThinkingItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	return item, ok
}

// HasHistory reports whether any segment has been persisted.
func (s *Store) HasHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order) > 0
}

// InProgress returns the latest partial thinking state.
func (s *Store) InProgress() Current {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Clear drops the durable map and the in-progress pointer. Invoked on
// conversation reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.items = make(map[string]domain.ThinkingItem)
	s.current = Current{}
}
