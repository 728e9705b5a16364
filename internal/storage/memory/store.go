// Package memory is an in-memory ConversationStore for tests and ephemeral
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ponderlabs/ponder/internal/storage"
)

// Store keeps conversations in process memory.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*storage.Conversation
	thinking      map[string][]storage.ThinkingSegment
}

var _ storage.ConversationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*storage.Conversation),
		thinking:      make(map[string][]storage.ThinkingSegment),
	}
}

func (s *Store) CreateConversation(ctx context.Context, conv *storage.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	stored := *conv
	stored.Messages = append([]storage.StoredMessage(nil), conv.Messages...)
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	out := *conv
	out.Messages = append([]storage.StoredMessage(nil), conv.Messages...)
	return &out, nil
}

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *storage.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storage.ErrNotFound
	}

	msg.CreatedAt = time.Now()
	conv.Messages = append(conv.Messages, *msg)
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	delete(s.thinking, id)
	return nil
}

func (s *Store) SaveThinking(ctx context.Context, conversationID string, seg *storage.ThinkingSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg.CreatedAt = time.Now()
	for i, existing := range s.thinking[conversationID] {
		if existing.ResponseID == seg.ResponseID {
			s.thinking[conversationID][i] = *seg
			return nil
		}
	}
	s.thinking[conversationID] = append(s.thinking[conversationID], *seg)
	return nil
}

func (s *Store) ListThinking(ctx context.Context, conversationID string) ([]storage.ThinkingSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]storage.ThinkingSegment(nil), s.thinking[conversationID]...), nil
}

func (s *Store) Close() error {
	return nil
}
