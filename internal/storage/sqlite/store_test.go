package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ponderlabs/ponder/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &storage.Conversation{ID: "conv-1", Model: "gpt-4.1"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	if err := s.AppendMessage(ctx, "conv-1", &storage.StoredMessage{ID: "m1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage(ctx, "conv-1", &storage.StoredMessage{
		ID: "m2", Role: "assistant", Content: "",
		ToolCalls: `[{"id":"call_1","name":"interview","arguments":"{}"}]`,
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage(ctx, "conv-1", &storage.StoredMessage{
		ID: "m3", Role: "tool", Content: `{"answers":{}}`, ToolCallID: "call_1",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Model != "gpt-4.1" || len(got.Messages) != 3 {
		t.Fatalf("conversation = %+v", got)
	}
	if got.Messages[0].Role != "user" || got.Messages[2].ToolCallID != "call_1" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Messages[1].ToolCalls == "" {
		t.Error("tool calls not persisted")
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	if err != storage.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateConversation(ctx, &storage.Conversation{ID: "conv-1", Model: "m"})
	s.AppendMessage(ctx, "conv-1", &storage.StoredMessage{ID: "m1", Role: "user", Content: "x"})
	s.SaveThinking(ctx, "conv-1", &storage.ThinkingSegment{ResponseID: "r1", Thinking: "t", Signature: "s"})

	if err := s.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := s.GetConversation(ctx, "conv-1"); err != storage.ErrNotFound {
		t.Errorf("conversation still present: %v", err)
	}
	segs, err := s.ListThinking(ctx, "conv-1")
	if err != nil || len(segs) != 0 {
		t.Errorf("thinking segments still present: %v %v", segs, err)
	}
}

func TestThinkingSegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateConversation(ctx, &storage.Conversation{ID: "conv-1", Model: "claude-sonnet-4-think"})

	if err := s.SaveThinking(ctx, "conv-1", &storage.ThinkingSegment{
		ResponseID: "msg_1", Thinking: "first", Signature: "s1",
	}); err != nil {
		t.Fatalf("SaveThinking: %v", err)
	}
	if err := s.SaveThinking(ctx, "conv-1", &storage.ThinkingSegment{
		ResponseID: "msg_2", Thinking: "second", Signature: "s2",
	}); err != nil {
		t.Fatalf("SaveThinking: %v", err)
	}

	// Re-saving the same response id updates in place.
	if err := s.SaveThinking(ctx, "conv-1", &storage.ThinkingSegment{
		ResponseID: "msg_1", Thinking: "first-revised", Signature: "s1",
	}); err != nil {
		t.Fatalf("SaveThinking upsert: %v", err)
	}

	segs, err := s.ListThinking(ctx, "conv-1")
	if err != nil {
		t.Fatalf("ListThinking: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments", len(segs))
	}
	if segs[0].Thinking != "first-revised" || segs[1].Thinking != "second" {
		t.Errorf("segments = %+v", segs)
	}
}
