// Package storage defines conversation persistence. Conversations, their
// messages, and completed thinking segments survive process restarts; the
// in-flight stream state never touches storage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one persisted chat session.
type Conversation struct {
	ID        string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []StoredMessage
}

// StoredMessage is one persisted chat message. ToolCalls and ToolCallID are
// stored as the JSON the adapters already speak.
type StoredMessage struct {
	ID         string
	Role       string
	Content    string
	ToolCalls  string
	ToolCallID string
	CreatedAt  time.Time
}

// ThinkingSegment is a persisted signed thinking segment, keyed by the
// provider response id that produced it.
type ThinkingSegment struct {
	ResponseID string
	Thinking   string
	Signature  string
	CreatedAt  time.Time
}

// ConversationStore persists conversations across turns.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg *StoredMessage) error
	DeleteConversation(ctx context.Context, id string) error

	SaveThinking(ctx context.Context, conversationID string, seg *ThinkingSegment) error
	ListThinking(ctx context.Context, conversationID string) ([]ThinkingSegment, error)

	Close() error
}
