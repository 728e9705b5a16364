// Package domain holds the canonical types shared by all provider adapters:
// the conversation model, the normalized stream chunk variants, and the
// adapter contract itself.
package domain

import (
	"context"
	"encoding/json"
)

// Message represents a chat message in canonical form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a completed tool invocation attached to an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"` // JSON Schema
}

// ThinkingItem is a completed, signed thinking segment from a prior turn.
// Items are replayed positionally against assistant messages, so order matters.
type ThinkingItem struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

// ChatOptions carries everything an adapter needs to run one streaming turn.
type ChatOptions struct {
	Model         string
	Messages      []Message
	SystemPrompts []string
	Temperature   *float32
	MaxTokens     int
	TopP          *float32
	Tools         []ToolDefinition

	// ThinkingHistory holds prior-turn thinking segments in the order their
	// assistant messages appear in Messages. Only consulted by adapters whose
	// providers require signed thinking replay.
	ThinkingHistory []ThinkingItem
}

// Usage represents token usage reported by a provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Adapter is the contract every provider adapter satisfies. ChatStream never
// fails synchronously: request construction and transport failures surface as
// a terminal error chunk on the returned channel, except user cancellation,
// which ends the stream with no terminal chunk at all.
type Adapter interface {
	Name() string
	ChatStream(ctx context.Context, opts *ChatOptions) <-chan StreamChunk
	StructuredOutput(ctx context.Context, opts *ChatOptions, outputSchema any) (json.RawMessage, error)
}
