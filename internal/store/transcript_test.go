package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *TranscriptStore {
	t.Helper()
	s, err := NewTranscriptStore(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("NewTranscriptStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rows := []struct{ role, content string }{
		{"user", "what is 2+3?"},
		{"assistant", `add({"a": 2, "b": 3})`},
		{"observation", "5"},
		{"assistant", "5"},
	}
	for _, r := range rows {
		if err := s.AddTurn("s1", r.role, r.content); err != nil {
			t.Fatalf("AddTurn failed: %v", err)
		}
	}

	turns, err := s.History("s1", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	for i, r := range rows {
		if turns[i].Role != r.role || turns[i].Content != r.content {
			t.Errorf("turn %d: expected %s/%q, got %s/%q", i, r.role, r.content, turns[i].Role, turns[i].Content)
		}
	}
}

func TestHistoryLimitAndSessionIsolation(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.AddTurn("s1", "user", "msg"); err != nil {
			t.Fatalf("AddTurn failed: %v", err)
		}
	}
	if err := s.AddTurn("s2", "user", "other session"); err != nil {
		t.Fatalf("AddTurn failed: %v", err)
	}

	turns, err := s.History("s1", 3)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 3 {
		t.Errorf("expected limit of 3, got %d", len(turns))
	}

	other, err := s.History("s2", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(other) != 1 || other[0].Content != "other session" {
		t.Errorf("session isolation broken: %+v", other)
	}
}
