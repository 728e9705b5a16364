// Package anthropic implements the provider adapter for the Anthropic
// Messages API and compatible providers.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ponderlabs/ponder/internal/domain"
	"github.com/ponderlabs/ponder/internal/sse"
	"github.com/ponderlabs/ponder/internal/stream"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	thinkingBudget   = 10000
	thinkingMargin   = 1000
	defaultThinkMax  = 16000
	defaultMaxTokens = 8192
)

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter drives the Anthropic Messages API and emits the canonical chunk
// stream.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Anthropic-compatible adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return "anthropic-compat"
}

// IsThinkingModel reports whether the model identifier requests extended
// thinking. The convention is a case-insensitive "think" substring.
func IsThinkingModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "think")
}

// ChatStream opens a streaming Messages call and returns the canonical chunk
// sequence. Failures surface as a single terminal error chunk; cancellation
// ends the stream with no terminal chunk.
func (a *Adapter) ChatStream(ctx context.Context, opts *domain.ChatOptions) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk)

	go func() {
		defer close(out)

		cc := domain.ChunkContext{
			ID:        uuid.New().String(),
			Model:     opts.Model,
			Timestamp: time.Now().UnixMilli(),
		}

		if err := a.stream(ctx, opts, &cc, out); err != nil {
			if domain.IsCancellation(err) {
				return
			}
			a.logger.Error("chat stream failed",
				slog.String("adapter", a.Name()),
				slog.String("model", opts.Model),
				slog.String("error", err.Error()))
			emit(ctx, out, domain.NewErrorChunk(cc, err.Error()))
		}
	}()

	return out
}

func (a *Adapter) stream(ctx context.Context, opts *domain.ChatOptions, cc *domain.ChunkContext, out chan<- domain.StreamChunk) error {
	req, err := a.buildRequest(opts)
	if err != nil {
		return err
	}

	resp, err := a.post(ctx, "/v1/messages", req)
	if err != nil {
		return err
	}

	reader := sse.NewReader(resp.Body)
	defer reader.Close()

	var acc stream.ContentAccumulator
	calls := stream.NewToolCallAccumulator()

	// Block state: index and declared type of the block currently streaming.
	blockIndex := -1
	blockType := ""
	var inputTokens, outputTokens int

	for {
		frame, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var event streamEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				if event.Message.ID != "" {
					cc.ID = event.Message.ID
				}
				if event.Message.Usage != nil {
					inputTokens = event.Message.Usage.InputTokens
				}
			}

		case "content_block_start":
			if event.ContentBlock == nil {
				continue
			}
			blockIndex = event.Index
			blockType = event.ContentBlock.Type
			switch blockType {
			case "thinking":
				// Thinking segments never span blocks.
				acc.ResetThinking()
			case "tool_use":
				calls.Update(blockIndex, stream.ToolCallPartial{
					ID:   event.ContentBlock.ID,
					Name: event.ContentBlock.Name,
				})
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "thinking_delta":
				if event.Delta.Thinking == "" {
					continue
				}
				total := acc.AppendThinking(event.Delta.Thinking)
				if !emit(ctx, out, domain.NewThinkingChunk(*cc, total, domain.WithThinkingDelta(event.Delta.Thinking))) {
					return ctx.Err()
				}
			case "signature_delta":
				// Meaningful only at block close; no emission here.
				if event.Delta.Signature != "" {
					acc.SetSignature(event.Delta.Signature)
				}
			case "text_delta":
				if event.Delta.Text == "" {
					continue
				}
				total := acc.AppendContent(event.Delta.Text)
				if !emit(ctx, out, domain.NewContentChunk(*cc, event.Delta.Text, total)) {
					return ctx.Err()
				}
			case "input_json_delta":
				if event.Delta.PartialJSON != "" {
					calls.Update(blockIndex, stream.ToolCallPartial{Arguments: event.Delta.PartialJSON})
				}
			}

		case "content_block_stop":
			switch blockType {
			case "thinking":
				// Unsigned blocks never produce a final chunk; the segment
				// cannot be replayed without its signature.
				if sig := acc.Signature(); sig != "" {
					chunk := domain.NewThinkingChunk(*cc, acc.Thinking(),
						domain.WithSignature(sig), domain.ThinkingComplete())
					if !emit(ctx, out, chunk) {
						return ctx.Err()
					}
				}
			case "tool_use":
				if call, ok := calls.Get(blockIndex); ok {
					if !emit(ctx, out, domain.NewToolCallChunk(*cc, blockIndex, call.ID, call.Name, call.Arguments)) {
						return ctx.Err()
					}
				}
			}
			blockType = ""

		case "message_delta":
			if event.Usage != nil {
				outputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			if event.Usage != nil {
				inputTokens = event.Usage.InputTokens
				outputTokens = event.Usage.OutputTokens
			}
			reason := domain.FinishStop
			if calls.HasCalls() {
				reason = domain.FinishToolCalls
			}
			if !emit(ctx, out, domain.NewDoneChunk(*cc, inputTokens, outputTokens, reason)) {
				return ctx.Err()
			}
			return nil
		}
	}
}

// StructuredOutput is not supported on the Messages protocol; callers route
// structured calls through an OpenAI-compatible adapter.
func (a *Adapter) StructuredOutput(ctx context.Context, opts *domain.ChatOptions, outputSchema any) (json.RawMessage, error) {
	return nil, fmt.Errorf("structured output not supported by %s adapter", a.Name())
}

func (a *Adapter) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &domain.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp, nil
}

func (a *Adapter) buildRequest(opts *domain.ChatOptions) (*messagesRequest, error) {
	thinking := IsThinkingModel(opts.Model)

	messages, err := convertMessages(opts, thinking)
	if err != nil {
		return nil, err
	}

	// Thinking calls are rejected unless max_tokens exceeds the budget.
	maxTokens := opts.MaxTokens
	if thinking {
		if maxTokens == 0 {
			maxTokens = defaultThinkMax
		}
		if maxTokens < thinkingBudget+thinkingMargin {
			maxTokens = thinkingBudget + thinkingMargin
		}
	} else if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	req := &messagesRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Stream:      true,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	if len(opts.SystemPrompts) > 0 {
		req.System = strings.Join(opts.SystemPrompts, "\n")
	}

	if thinking {
		req.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: thinkingBudget}
	}

	for _, t := range opts.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}}
		}
		req.Tools = append(req.Tools, toolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	return req, nil
}

// convertMessages maps the canonical conversation onto Messages blocks.
//
// Prior-turn thinking segments are replayed positionally: the Nth history
// item attaches to the Nth assistant message. Conversation arrays are
// replayed wholesale, so array order is stable; having more history items
// than assistant messages means the caller filtered or reordered the
// conversation, and silently continuing would misattribute signatures, so
// that case fails instead.
//
// Tool results travel inside user turns on this protocol: each one is folded
// onto the preceding user block list when open, else wrapped in a fresh user
// message.
func convertMessages(opts *domain.ChatOptions, thinkingModel bool) ([]anthropicMessage, error) {
	if n := assistantCount(opts.Messages); len(opts.ThinkingHistory) > n {
		return nil, fmt.Errorf("thinking history has %d items for %d assistant messages; replay order cannot be trusted",
			len(opts.ThinkingHistory), n)
	}

	var messages []anthropicMessage
	thinkingIndex := 0

	for _, msg := range opts.Messages {
		switch msg.Role {
		case "user":
			messages = append(messages, anthropicMessage{Role: "user", Content: msg.Content})

		case "assistant":
			var item *domain.ThinkingItem
			if thinkingIndex < len(opts.ThinkingHistory) {
				item = &opts.ThinkingHistory[thinkingIndex]
			}
			thinkingIndex++

			if len(msg.ToolCalls) > 0 {
				var blocks []contentBlock
				// The signed thinking block must precede tool_use content in
				// a replayed turn.
				if thinkingModel && item != nil {
					blocks = append(blocks, contentBlock{
						Type:      "thinking",
						Thinking:  item.Thinking,
						Signature: item.Signature,
					})
				}
				if msg.Content != "" {
					blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, contentBlock{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: toolInput(tc.Arguments),
					})
				}
				messages = append(messages, anthropicMessage{Role: "assistant", Content: blocks})
			} else if thinkingModel && item != nil {
				blocks := []contentBlock{
					{Type: "thinking", Thinking: item.Thinking, Signature: item.Signature},
				}
				if msg.Content != "" {
					blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
				}
				messages = append(messages, anthropicMessage{Role: "assistant", Content: blocks})
			} else {
				messages = append(messages, anthropicMessage{Role: "assistant", Content: msg.Content})
			}

		case "tool":
			result := contentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}
			if n := len(messages); n > 0 && messages[n-1].Role == "user" {
				if blocks, ok := messages[n-1].Content.([]contentBlock); ok {
					messages[n-1].Content = append(blocks, result)
					continue
				}
			}
			messages = append(messages, anthropicMessage{Role: "user", Content: []contentBlock{result}})
		}
	}

	return messages, nil
}

func assistantCount(messages []domain.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == "assistant" {
			n++
		}
	}
	return n
}

// toolInput treats the accumulated argument string as a JSON object when
// valid; otherwise it is wrapped as a JSON string so the request still
// marshals.
func toolInput(arguments string) json.RawMessage {
	if arguments == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	quoted, _ := json.Marshal(arguments)
	return quoted
}

func emit(ctx context.Context, out chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
