package domain

// ChunkType discriminates the canonical stream chunk variants.
type ChunkType string

const (
	ChunkContent  ChunkType = "content"
	ChunkThinking ChunkType = "thinking"
	ChunkToolCall ChunkType = "tool_call"
	ChunkDone     ChunkType = "done"
	ChunkError    ChunkType = "error"
)

// FinishReason reports why a response ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
)

// StreamChunk is one unit of the canonical normalized output stream. Optional
// fields are omitted entirely when not supplied so consumers can test for
// field presence; on thinking chunks the presence of Signature/IsComplete is
// the completion signal.
type StreamChunk struct {
	Type      ChunkType `json:"type"`
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Timestamp int64     `json:"timestamp"`

	// content and thinking chunks
	Role    string `json:"role,omitempty"`
	Delta   string `json:"delta,omitempty"`
	Content string `json:"content,omitempty"`

	// thinking chunks only
	Signature  string `json:"signature,omitempty"`
	IsComplete bool   `json:"isComplete,omitempty"`

	// tool_call chunks only
	ToolCall *ToolCallPayload `json:"toolCall,omitempty"`

	// done chunks only
	Usage        *Usage       `json:"usage,omitempty"`
	FinishReason FinishReason `json:"finishReason,omitempty"`

	// error chunks only
	Error *ErrorPayload `json:"error,omitempty"`
}

// ToolCallPayload is the tool-call data carried by a tool_call chunk.
// Arguments holds the cumulative argument string accumulated so far.
type ToolCallPayload struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ErrorPayload carries the message of a terminal error chunk.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ChunkContext is the per-response identity stamped onto every chunk.
type ChunkContext struct {
	ID        string
	Model     string
	Timestamp int64
}

// ThinkingOption customizes a thinking chunk.
type ThinkingOption func(*StreamChunk)

// WithThinkingDelta attaches the incremental thinking text.
func WithThinkingDelta(delta string) ThinkingOption {
	return func(c *StreamChunk) { c.Delta = delta }
}

// WithSignature attaches the provider-issued signature.
func WithSignature(sig string) ThinkingOption {
	return func(c *StreamChunk) { c.Signature = sig }
}

// ThinkingComplete marks the chunk as the final one for its segment.
func ThinkingComplete() ThinkingOption {
	return func(c *StreamChunk) { c.IsComplete = true }
}

// NewContentChunk builds a content chunk from a delta and its running total.
func NewContentChunk(cc ChunkContext, delta, content string) StreamChunk {
	return StreamChunk{
		Type:      ChunkContent,
		ID:        cc.ID,
		Model:     cc.Model,
		Timestamp: cc.Timestamp,
		Role:      "assistant",
		Delta:     delta,
		Content:   content,
	}
}

// NewThinkingChunk builds a thinking chunk. Delta, signature, and the
// completion flag are only present when explicitly supplied.
func NewThinkingChunk(cc ChunkContext, content string, opts ...ThinkingOption) StreamChunk {
	c := StreamChunk{
		Type:      ChunkThinking,
		ID:        cc.ID,
		Model:     cc.Model,
		Timestamp: cc.Timestamp,
		Content:   content,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewToolCallChunk builds a tool_call chunk for the call at the given index.
func NewToolCallChunk(cc ChunkContext, index int, id, name, arguments string) StreamChunk {
	return StreamChunk{
		Type:      ChunkToolCall,
		ID:        cc.ID,
		Model:     cc.Model,
		Timestamp: cc.Timestamp,
		ToolCall: &ToolCallPayload{
			Index:     index,
			ID:        id,
			Name:      name,
			Arguments: arguments,
		},
	}
}

// NewDoneChunk builds the terminal done chunk. The total token count is
// computed here so no adapter recomputes it inconsistently.
func NewDoneChunk(cc ChunkContext, promptTokens, completionTokens int, reason FinishReason) StreamChunk {
	return StreamChunk{
		Type:      ChunkDone,
		ID:        cc.ID,
		Model:     cc.Model,
		Timestamp: cc.Timestamp,
		Usage: &Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishReason: reason,
	}
}

// NewErrorChunk builds the terminal error chunk. A done chunk never follows
// an error chunk; they are mutually exclusive terminal states.
func NewErrorChunk(cc ChunkContext, message string) StreamChunk {
	return StreamChunk{
		Type:      ChunkError,
		ID:        cc.ID,
		Model:     cc.Model,
		Timestamp: cc.Timestamp,
		Error:     &ErrorPayload{Message: message},
	}
}
