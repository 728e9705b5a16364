package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ponderlabs/ponder/internal/domain"
)

// sseHandler replays the given data lines as an SSE stream.
func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func collect(t *testing.T, ch <-chan domain.StreamChunk) []domain.StreamChunk {
	t.Helper()
	var chunks []domain.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestChatStream_ContentDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"id":"cmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"cmpl-1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"cmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`,
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != domain.ChunkContent || chunks[0].Delta != "Hel" || chunks[0].Content != "Hel" {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[1].Delta != "lo" || chunks[1].Content != "Hello" {
		t.Errorf("chunk 1 = %+v", chunks[1])
	}
	done := chunks[2]
	if done.Type != domain.ChunkDone || done.FinishReason != domain.FinishStop {
		t.Fatalf("terminal chunk = %+v", done)
	}
	if done.Usage == nil || done.Usage.TotalTokens != 12 {
		t.Errorf("usage = %+v", done.Usage)
	}
	if done.ID != "cmpl-1" {
		t.Errorf("ID = %q, want provider id", done.ID)
	}
}

func TestChatStream_ReasoningField(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"id":"c","choices":[{"index":0,"delta":{"reasoning_content":"step 1"}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{"content":"answer"}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL), WithReasoningFields([]string{"reasoning_content"}))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "deepseek-reasoner",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if chunks[0].Type != domain.ChunkThinking || chunks[0].Delta != "step 1" {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[0].Signature != "" || chunks[0].IsComplete {
		t.Errorf("openai thinking chunks must not carry signature or completion: %+v", chunks[0])
	}
	if chunks[1].Type != domain.ChunkContent {
		t.Errorf("chunk 1 = %+v", chunks[1])
	}
}

func TestChatStream_AlternateReasoningFieldName(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"id":"c","choices":[{"index":0,"delta":{"thinking":"hmm"}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	// Default field list consults thinking after reasoning_content.
	a := New("test-key", WithBaseURL(srv.URL))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "some-model",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if chunks[0].Type != domain.ChunkThinking || chunks[0].Delta != "hmm" {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
}

func TestChatStream_ToolCallsFlushedInIndexOrder(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"second","arguments":""}}]}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"first","arguments":"{\"q\":"}}]}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":7}}`,
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	first, second := chunks[0].ToolCall, chunks[1].ToolCall
	if first == nil || first.Index != 0 || first.ID != "call_a" || first.Arguments != `{"q":1}` {
		t.Errorf("first tool call = %+v", first)
	}
	if second == nil || second.Index != 1 || second.Name != "second" {
		t.Errorf("second tool call = %+v", second)
	}
	done := chunks[2]
	if done.Type != domain.ChunkDone || done.FinishReason != domain.FinishToolCalls {
		t.Errorf("terminal chunk = %+v", done)
	}
	if done.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", done.Usage.TotalTokens)
	}
}

func TestChatStream_MalformedLineSkipped(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"id":"c","choices":[{"index":0,"delta":{"content":"a"}}]}`,
		`{malformed`,
		`{"id":"c","choices":[{"index":0,"delta":{"content":"b"}}]}`,
		`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if chunks[1].Content != "ab" {
		t.Errorf("Content = %q, want ab", chunks[1].Content)
	}
}

func TestChatStream_ProviderErrorBecomesErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New("bad-key", WithBaseURL(srv.URL))
	chunks := collect(t, a.ChatStream(context.Background(), &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}))

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 error chunk", len(chunks))
	}
	if chunks[0].Type != domain.ChunkError || chunks[0].Error == nil {
		t.Fatalf("chunk = %+v", chunks[0])
	}
	if !strings.Contains(chunks[0].Error.Message, "status 401") {
		t.Errorf("error message = %q", chunks[0].Error.Message)
	}
}

func TestChatStream_CancellationEndsWithoutTerminalChunk(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	a := New("test-key", WithBaseURL(srv.URL))
	ch := a.ChatStream(ctx, &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})

	first := <-ch
	if first.Type != domain.ChunkContent {
		t.Fatalf("first chunk = %+v", first)
	}
	cancel()

	for c := range ch {
		if c.Type == domain.ChunkError || c.Type == domain.ChunkDone {
			t.Errorf("cancellation must not produce a terminal chunk, got %+v", c)
		}
	}
}

func TestStructuredOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[{"message":{"content":"{\"name\":\"Ada\"}"}}]}`)
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL))
	raw, err := a.StructuredOutput(context.Background(), &domain.ChatOptions{
		Model:    "gpt-4.1",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	}, map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("StructuredOutput: %v", err)
	}
	if string(raw) != `{"name":"Ada"}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestConvertMessages_SystemPromptsJoined(t *testing.T) {
	msgs := convertMessages(&domain.ChatOptions{
		SystemPrompts: []string{"one", "two"},
		Messages:      []domain.Message{{Role: "user", Content: "hi"}},
	})

	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != "system" || *msgs[0].Content != "one\ntwo" {
		t.Errorf("system message = %+v", msgs[0])
	}
}

func TestConvertMessages_AssistantToolCallsNullContent(t *testing.T) {
	msgs := convertMessages(&domain.ChatOptions{
		Messages: []domain.Message{
			{Role: "assistant", ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "search", Arguments: "{}"}}},
			{Role: "tool", Content: "result", ToolCallID: "call_1"},
		},
	})

	if msgs[0].Content != nil {
		t.Errorf("tool-call-only assistant content = %q, want null", *msgs[0].Content)
	}
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "search" {
		t.Errorf("tool calls = %+v", msgs[0].ToolCalls)
	}
	if msgs[1].Role != "tool" || msgs[1].ToolCallID != "call_1" || *msgs[1].Content != "result" {
		t.Errorf("tool message = %+v", msgs[1])
	}
}
