package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

var testCC = ChunkContext{ID: "msg_1", Model: "test-model", Timestamp: 1700000000}

func TestNewDoneChunk_TotalTokens(t *testing.T) {
	chunk := NewDoneChunk(testCC, 120, 34, FinishStop)

	if chunk.Type != ChunkDone {
		t.Fatalf("Type = %s, want done", chunk.Type)
	}
	if chunk.Usage == nil {
		t.Fatal("Usage is nil")
	}
	if chunk.Usage.TotalTokens != 154 {
		t.Errorf("TotalTokens = %d, want 154", chunk.Usage.TotalTokens)
	}
	if chunk.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop", chunk.FinishReason)
	}
}

func TestNewThinkingChunk_OmitsUnsetFields(t *testing.T) {
	chunk := NewThinkingChunk(testCC, "partial reasoning", WithThinkingDelta("reasoning"))

	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)

	for _, absent := range []string{"signature", "isComplete"} {
		if strings.Contains(s, absent) {
			t.Errorf("serialized chunk contains %q, want it omitted: %s", absent, s)
		}
	}
	if !strings.Contains(s, `"delta":"reasoning"`) {
		t.Errorf("serialized chunk missing delta: %s", s)
	}
}

func TestNewThinkingChunk_CompleteWithSignature(t *testing.T) {
	chunk := NewThinkingChunk(testCC, "full reasoning", WithSignature("sig-abc"), ThinkingComplete())

	if chunk.Signature != "sig-abc" {
		t.Errorf("Signature = %q, want sig-abc", chunk.Signature)
	}
	if !chunk.IsComplete {
		t.Error("IsComplete = false, want true")
	}
	if chunk.Delta != "" {
		t.Errorf("Delta = %q, want empty on final chunk", chunk.Delta)
	}
}

func TestNewContentChunk(t *testing.T) {
	chunk := NewContentChunk(testCC, "world", "hello world")

	if chunk.Role != "assistant" {
		t.Errorf("Role = %q, want assistant", chunk.Role)
	}
	if chunk.Delta != "world" || chunk.Content != "hello world" {
		t.Errorf("delta/content = %q/%q", chunk.Delta, chunk.Content)
	}
}

func TestNewToolCallChunk(t *testing.T) {
	chunk := NewToolCallChunk(testCC, 0, "call_1", "interview", `{"questions":[]}`)

	if chunk.ToolCall == nil {
		t.Fatal("ToolCall is nil")
	}
	if chunk.ToolCall.Index != 0 || chunk.ToolCall.Name != "interview" {
		t.Errorf("ToolCall = %+v", chunk.ToolCall)
	}

	// Index 0 must survive serialization.
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"index":0`) {
		t.Errorf("serialized chunk missing index: %s", data)
	}
}

func TestNewErrorChunk(t *testing.T) {
	chunk := NewErrorChunk(testCC, "upstream exploded")
	if chunk.Type != ChunkError {
		t.Fatalf("Type = %s, want error", chunk.Type)
	}
	if chunk.Error == nil || chunk.Error.Message != "upstream exploded" {
		t.Errorf("Error = %+v", chunk.Error)
	}
}
