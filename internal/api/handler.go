// Package api exposes the chat surface: a streaming chat endpoint emitting
// the canonical chunks over SSE, session reset, and health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ponderlabs/ponder/internal/adapter"
	"github.com/ponderlabs/ponder/internal/domain"
	"github.com/ponderlabs/ponder/internal/interview"
	"github.com/ponderlabs/ponder/internal/patch"
	"github.com/ponderlabs/ponder/internal/server"
	"github.com/ponderlabs/ponder/internal/session"
	"github.com/ponderlabs/ponder/internal/storage"
	"github.com/ponderlabs/ponder/internal/tokens"
)

// ProviderDefaults are the server-side provider settings; request settings
// override them per call.
type ProviderDefaults struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AdapterFactory builds the provider adapter for a model. Tests swap it for
// a stub.
type AdapterFactory func(model string, cfg adapter.Config) domain.Adapter

// ChatHandler serves the chat API.
type ChatHandler struct {
	logger     *slog.Logger
	sessions   *session.Manager
	patches    *patch.Engine
	store      storage.ConversationStore
	estimator  *tokens.Estimator
	defaults   ProviderDefaults
	newAdapter AdapterFactory
}

// HandlerOption configures a ChatHandler.
type HandlerOption func(*ChatHandler)

// WithStore enables conversation persistence.
func WithStore(store storage.ConversationStore) HandlerOption {
	return func(h *ChatHandler) { h.store = store }
}

// WithEstimator enables prompt-size logging.
func WithEstimator(e *tokens.Estimator) HandlerOption {
	return func(h *ChatHandler) { h.estimator = e }
}

// WithAdapterFactory overrides how provider adapters are constructed.
func WithAdapterFactory(f AdapterFactory) HandlerOption {
	return func(h *ChatHandler) { h.newAdapter = f }
}

// NewChatHandler wires the chat handler.
func NewChatHandler(logger *slog.Logger, sessions *session.Manager, patches *patch.Engine, defaults ProviderDefaults, opts ...HandlerOption) *ChatHandler {
	h := &ChatHandler{
		logger:     logger,
		sessions:   sessions,
		patches:    patches,
		defaults:   defaults,
		newAdapter: adapter.New,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// requestTimeout bounds the non-streaming routes. The chat route stays
// outside it: a streaming response legitimately outlives any request
// timeout.
const requestTimeout = 30 * time.Second

// Routes mounts the API routes.
func (h *ChatHandler) Routes(r chi.Router) {
	r.Post("/v1/chat", h.Chat)
	r.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(requestTimeout))
		r.Delete("/v1/sessions/{id}", h.ResetSession)
		r.Get("/healthz", h.Health)
	})
}

// Health reports liveness.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetSession tears down a session's thinking history and, when persistence
// is on, its stored conversation.
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.sessions.Reset(id)
	if h.store != nil {
		if err := h.store.DeleteConversation(r.Context(), id); err != nil {
			h.logger.Warn("delete conversation failed", slog.String("session", id), slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chat runs one streaming turn: patch classification, provider call, and the
// canonical chunk stream re-serialized as SSE.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		w.WriteHeader(statusClientClosedRequest)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.ErrInvalidRequest("invalid request body"))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondError(w, domain.ErrInvalidRequest(err.Error()))
		return
	}
	if err := validateInterviewResults(req.Messages); err != nil {
		respondError(w, domain.ErrInvalidRequest(err.Error()))
		return
	}

	model, apiKey, baseURL := h.resolveSettings(req.Settings)
	if apiKey == "" {
		respondError(w, domain.ErrServer("missing API key"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, domain.ErrServer("streaming unsupported"))
		return
	}

	sess := h.sessions.Get(req.SessionID)
	ctx := r.Context()
	h.hydrateThinking(ctx, sess)

	// The classification sub-call runs serially before the main call; its
	// result is part of the main call's input.
	prompt := SystemPrompt
	if h.patches != nil {
		prompt = h.patches.Apply(ctx, SystemPrompt, lastUserContent(req.Messages), patch.Credentials{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   model,
		})
	}

	opts := &domain.ChatOptions{
		Model:           model,
		Messages:        req.Messages,
		SystemPrompts:   []string{prompt},
		Tools:           []domain.ToolDefinition{interview.Definition()},
		ThinkingHistory: sess.Thinking.Items(),
	}

	if h.estimator != nil {
		h.logger.Debug("prompt size",
			slog.String("model", model),
			slog.Int("estimated_tokens", h.estimator.EstimateMessages(opts)))
	}

	h.persistUserTurn(ctx, sess.ID, model, req.Messages)

	prov := h.newAdapter(model, adapter.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Logger:  h.logger,
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var turn turnRecorder
	for chunk := range prov.ChatStream(ctx, opts) {
		if bad := h.screenChunk(chunk); bad != nil {
			writeChunk(w, flusher, *bad)
			break
		}
		sess.Thinking.ProcessChunk(chunk)
		turn.observe(chunk)
		h.persistThinking(ctx, sess.ID, chunk)
		writeChunk(w, flusher, chunk)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	h.persistAssistantTurn(ctx, sess.ID, &turn)
}

func writeChunk(w http.ResponseWriter, flusher http.Flusher, chunk domain.StreamChunk) {
	raw, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
	flusher.Flush()
}

// screenChunk enforces the interview schema on outbound tool calls; a
// malformed payload becomes a terminal error chunk instead of reaching the
// UI.
func (h *ChatHandler) screenChunk(chunk domain.StreamChunk) *domain.StreamChunk {
	if chunk.Type != domain.ChunkToolCall || chunk.ToolCall == nil || chunk.ToolCall.Name != interview.ToolName {
		return nil
	}
	if _, err := interview.ValidateInput([]byte(chunk.ToolCall.Arguments)); err != nil {
		h.logger.Warn("interview tool call rejected", slog.String("error", err.Error()))
		bad := domain.NewErrorChunk(domain.ChunkContext{
			ID:        chunk.ID,
			Model:     chunk.Model,
			Timestamp: chunk.Timestamp,
		}, "model produced an invalid interview payload")
		return &bad
	}
	return nil
}

func (h *ChatHandler) resolveSettings(s *Settings) (model, apiKey, baseURL string) {
	model = h.defaults.Model
	apiKey = h.defaults.APIKey
	baseURL = h.defaults.BaseURL
	if s != nil {
		if s.Model != "" {
			model = s.Model
		}
		if s.APIKey != "" {
			apiKey = s.APIKey
		}
		if s.BaseURL != "" {
			baseURL = s.BaseURL
		}
	}
	return model, apiKey, baseURL
}

// lastUserContent extracts the newest user message for patch classification.
func lastUserContent(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// validateInterviewResults checks inbound tool results answering interview
// calls against the output schema.
func validateInterviewResults(messages []domain.Message) error {
	interviewCalls := make(map[string]bool)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.Name == interview.ToolName {
				interviewCalls[tc.ID] = true
			}
		}
	}
	for _, msg := range messages {
		if msg.Role != "tool" || !interviewCalls[msg.ToolCallID] {
			continue
		}
		if _, err := interview.ValidateOutput([]byte(msg.Content)); err != nil {
			return fmt.Errorf("tool result for call %s: %w", msg.ToolCallID, err)
		}
	}
	return nil
}

// turnRecorder collects what the stream produced so the assistant turn can
// be persisted after it ends.
type turnRecorder struct {
	content   string
	toolCalls []domain.ToolCall
	completed bool
}

func (t *turnRecorder) observe(chunk domain.StreamChunk) {
	switch chunk.Type {
	case domain.ChunkContent:
		t.content = chunk.Content
	case domain.ChunkToolCall:
		if chunk.ToolCall != nil {
			t.toolCalls = append(t.toolCalls, domain.ToolCall{
				ID:        chunk.ToolCall.ID,
				Name:      chunk.ToolCall.Name,
				Arguments: chunk.ToolCall.Arguments,
			})
		}
	case domain.ChunkDone:
		t.completed = true
	}
}

// persistUserTurn stores the newest user message, creating the conversation
// on first contact. Persistence failures are logged, never fatal to the
// stream.
func (h *ChatHandler) persistUserTurn(ctx context.Context, sessionID, model string, messages []domain.Message) {
	if h.store == nil {
		return
	}

	if _, err := h.store.GetConversation(ctx, sessionID); err != nil {
		if err != storage.ErrNotFound {
			h.logger.Warn("load conversation failed", slog.String("session", sessionID), slog.String("error", err.Error()))
			return
		}
		if err := h.store.CreateConversation(ctx, &storage.Conversation{ID: sessionID, Model: model}); err != nil {
			h.logger.Warn("create conversation failed", slog.String("session", sessionID), slog.String("error", err.Error()))
			return
		}
	}

	content := lastUserContent(messages)
	if content == "" {
		return
	}
	err := h.store.AppendMessage(ctx, sessionID, &storage.StoredMessage{
		ID:      uuid.New().String(),
		Role:    "user",
		Content: content,
	})
	if err != nil {
		h.logger.Warn("persist user message failed", slog.String("session", sessionID), slog.String("error", err.Error()))
	}
}

// hydrateThinking warms a fresh session's thinking history from storage so
// replayable segments survive a process restart. A session that already
// holds history was populated by its own streams and is left alone.
func (h *ChatHandler) hydrateThinking(ctx context.Context, sess *session.Session) {
	if h.store == nil || sess.Thinking.HasHistory() {
		return
	}
	segments, err := h.store.ListThinking(ctx, sess.ID)
	if err != nil {
		h.logger.Warn("load thinking history failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
		return
	}
	for _, seg := range segments {
		sess.Thinking.ProcessChunk(domain.NewThinkingChunk(domain.ChunkContext{
			ID:        seg.ResponseID,
			Timestamp: seg.CreatedAt.UnixMilli(),
		}, seg.Thinking, domain.WithSignature(seg.Signature), domain.ThinkingComplete()))
	}
}

// persistThinking stores signed completed thinking segments as they arrive.
func (h *ChatHandler) persistThinking(ctx context.Context, sessionID string, chunk domain.StreamChunk) {
	if h.store == nil || chunk.Type != domain.ChunkThinking || !chunk.IsComplete || chunk.Signature == "" {
		return
	}
	err := h.store.SaveThinking(ctx, sessionID, &storage.ThinkingSegment{
		ResponseID: chunk.ID,
		Thinking:   chunk.Content,
		Signature:  chunk.Signature,
	})
	if err != nil {
		h.logger.Warn("persist thinking failed", slog.String("session", sessionID), slog.String("error", err.Error()))
	}
}

// persistAssistantTurn stores the completed assistant turn. Cancelled or
// failed turns are not persisted; the conversation record holds only
// completed exchanges.
func (h *ChatHandler) persistAssistantTurn(ctx context.Context, sessionID string, turn *turnRecorder) {
	if h.store == nil || !turn.completed {
		return
	}

	msg := &storage.StoredMessage{
		ID:      uuid.New().String(),
		Role:    "assistant",
		Content: turn.content,
	}
	if len(turn.toolCalls) > 0 {
		if raw, err := json.Marshal(turn.toolCalls); err == nil {
			msg.ToolCalls = string(raw)
		}
	}
	if err := h.store.AppendMessage(ctx, sessionID, msg); err != nil {
		h.logger.Warn("persist assistant message failed", slog.String("session", sessionID), slog.String("error", err.Error()))
	}
}
