package session

import (
	"testing"

	"github.com/ponderlabs/ponder/internal/domain"
)

func TestManager_GetCreatesAndReuses(t *testing.T) {
	m := NewManager()

	s1 := m.Get("abc")
	s2 := m.Get("abc")
	if s1 != s2 {
		t.Error("same id returned different sessions")
	}
	if s1.Thinking == nil {
		t.Fatal("session has no thinking store")
	}

	other := m.Get("def")
	if other == s1 {
		t.Error("distinct ids share a session")
	}
}

func TestManager_EmptyIDGetsFreshSession(t *testing.T) {
	m := NewManager()

	s1 := m.Get("")
	s2 := m.Get("")
	if s1.ID == "" || s2.ID == "" {
		t.Fatal("generated id missing")
	}
	if s1 == s2 {
		t.Error("empty ids must not share a session")
	}
}

func TestManager_ResetIsolatesState(t *testing.T) {
	m := NewManager()

	s := m.Get("abc")
	cc := domain.ChunkContext{ID: "msg_1", Model: "m", Timestamp: 1}
	s.Thinking.ProcessChunk(domain.NewThinkingChunk(cc, "t", domain.WithSignature("sig"), domain.ThinkingComplete()))
	if !s.Thinking.HasHistory() {
		t.Fatal("setup failed")
	}

	m.Reset("abc")

	fresh := m.Get("abc")
	if fresh == s {
		t.Error("Reset did not discard the session")
	}
	if fresh.Thinking.HasHistory() {
		t.Error("fresh session inherited thinking history")
	}
}

func TestManager_Len(t *testing.T) {
	m := NewManager()
	m.Get("a")
	m.Get("b")
	if m.Len() != 2 {
		t.Errorf("Len = %d", m.Len())
	}
	m.Reset("a")
	if m.Len() != 1 {
		t.Errorf("Len after reset = %d", m.Len())
	}
}
