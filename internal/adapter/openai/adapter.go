// Package openai implements the provider adapter for OpenAI-compatible Chat
// Completions endpoints (OpenAI, DeepSeek, Qwen, OpenRouter, aggregators).
package openai

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

const defaultBaseURL = "https://api.openai.com/v1"

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

// WithReasoningFields sets which delta fields carry reasoning text, in
// priority order.
func WithReasoningFields(fields []string) Option {
	return func(a *Adapter) {
		a.reasoningFields = fields
	}
}

// Adapter drives an OpenAI-compatible provider and emits the canonical chunk
// stream.
type Adapter struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	logger          *slog.Logger
	reasoningFields []string
}

// New creates a new OpenAI-compatible adapter.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:          apiKey,
		baseURL:         defaultBaseURL,
		httpClient:      http.DefaultClient,
		logger:          slog.Default(),
		reasoningFields: []string{"reasoning_content", "thinking", "thinking_content"},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return "openai-compat"
}

// ChatStream opens a streaming completion and returns the canonical chunk
// sequence. All failures surface as a single terminal error chunk; a user
// cancellation closes the channel with no terminal chunk.
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
	req := a.buildRequest(opts, true)
	resp, err := a.post(ctx, "/chat/completions", req)
	if err != nil {
		return err
	}

	reader := sse.NewReader(resp.Body)
	defer reader.Close()

	var acc stream.ContentAccumulator
	calls := stream.NewToolCallAccumulator()

	for {
		frame, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var chunk chatChunk
		if err := json.Unmarshal(frame.Data, &chunk); err != nil {
			continue
		}
		if chunk.ID != "" {
			cc.ID = chunk.ID
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if reasoning := a.reasoningDelta(&delta); reasoning != "" {
			total := acc.AppendThinking(reasoning)
			if !emit(ctx, out, domain.NewThinkingChunk(*cc, total, domain.WithThinkingDelta(reasoning))) {
				return ctx.Err()
			}
		}

		if delta.Content != "" {
			total := acc.AppendContent(delta.Content)
			if !emit(ctx, out, domain.NewContentChunk(*cc, delta.Content, total)) {
				return ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			partial := stream.ToolCallPartial{ID: tc.ID}
			if tc.Function != nil {
				partial.Name = tc.Function.Name
				partial.Arguments = tc.Function.Arguments
			}
			calls.Update(tc.Index, partial)
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			for _, idx := range calls.Indexes() {
				call, _ := calls.Get(idx)
				if !emit(ctx, out, domain.NewToolCallChunk(*cc, idx, call.ID, call.Name, call.Arguments)) {
					return ctx.Err()
				}
			}

			var prompt, completion int
			if chunk.Usage != nil {
				prompt = chunk.Usage.PromptTokens
				completion = chunk.Usage.CompletionTokens
			}
			reason := domain.FinishStop
			if calls.HasCalls() {
				reason = domain.FinishToolCalls
			}
			if !emit(ctx, out, domain.NewDoneChunk(*cc, prompt, completion, reason)) {
				return ctx.Err()
			}
			return nil
		}
	}
}

// reasoningDelta extracts reasoning text from a delta by consulting the
// configured field names in order.
func (a *Adapter) reasoningDelta(d *chunkDelta) string {
	for _, name := range a.reasoningFields {
		if get, ok := reasoningAccessors[name]; ok {
			if v := get(d); v != "" {
				return v
			}
		}
	}
	return ""
}

// StructuredOutput runs one non-streaming completion constrained to a JSON
// schema and returns the raw parsed value.
func (a *Adapter) StructuredOutput(ctx context.Context, opts *domain.ChatOptions, outputSchema any) (json.RawMessage, error) {
	req := a.buildRequest(opts, false)
	req.ResponseFormat = &responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchemaSpec{
			Name:   "structured_output",
			Schema: outputSchema,
			Strict: true,
		},
	}

	resp, err := a.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	content := result.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("structured output is not valid JSON")
	}
	return json.RawMessage(content), nil
}

// post sends a JSON request and returns the response with an open body. A
// non-2xx status is read fully and returned as a ProviderError with the body
// already closed.
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
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

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

func (a *Adapter) buildRequest(opts *domain.ChatOptions, streaming bool) *chatRequest {
	req := &chatRequest{
		Model:       opts.Model,
		Messages:    convertMessages(opts),
		Stream:      streaming,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
	}

	for _, t := range opts.Tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}}
		}
		req.Tools = append(req.Tools, tool{
			Type: "function",
			Function: functionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}

	return req
}

// convertMessages maps the canonical conversation onto the wire format.
// System prompts are concatenated with newlines into one system message.
func convertMessages(opts *domain.ChatOptions) []chatMessage {
	var messages []chatMessage

	if len(opts.SystemPrompts) > 0 {
		system := strings.Join(opts.SystemPrompts, "\n")
		messages = append(messages, chatMessage{Role: "system", Content: &system})
	}

	for _, msg := range opts.Messages {
		switch msg.Role {
		case "assistant":
			m := chatMessage{Role: "assistant"}
			if msg.Content != "" {
				content := msg.Content
				m.Content = &content
			}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, toolCall{
					ID:   tc.ID,
					Type: "function",
					Function: functionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			messages = append(messages, m)
		case "tool":
			content := msg.Content
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    &content,
				ToolCallID: msg.ToolCallID,
			})
		default:
			content := msg.Content
			messages = append(messages, chatMessage{Role: msg.Role, Content: &content})
		}
	}

	return messages
}

// emit delivers a chunk unless the consumer's context is gone. Returns false
// when delivery was abandoned.
func emit(ctx context.Context, out chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
