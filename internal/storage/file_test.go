package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "logs", "audit.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), UserID: "1", UserMessage: "hi", AssistantResponse: "hello", TrustScore: 5}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), UserID: "2", UserMessage: "foo", AssistantResponse: "bar", Warnings: []string{"low_confidence"}}
	if err := rec.AppendInteraction(ev1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := rec.AppendInteraction(ev2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("want 2, got %d", len(events))
	}
	if events[0].UserID != "1" || events[1].UserID != "2" {
		t.Fatalf("order mismatch: %+v", events)
	}
	if events[0].TrustScore != 5 || len(events[1].Warnings) != 1 {
		t.Fatalf("fields not round-tripped: %+v", events)
	}

	// ensure file exists and non-empty
	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileRecorder_LastForUserSkipsMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "audit.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	_ = rec.AppendInteraction(Event{UserID: "1", UserMessage: "first"})
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("{not json\n\n")
	_ = f.Close()
	_ = rec.AppendInteraction(Event{UserID: "2", UserMessage: "other"})
	_ = rec.AppendInteraction(Event{UserID: "1", UserMessage: "second"})

	ev, ok, err := rec.LastForUser("1")
	if err != nil || !ok {
		t.Fatalf("last for user: ok=%v err=%v", ok, err)
	}
	if ev.UserMessage != "second" {
		t.Fatalf("want latest event, got %q", ev.UserMessage)
	}
	if _, ok, _ := rec.LastForUser("3"); ok {
		t.Fatalf("unexpected event for unknown user")
	}
}

func TestFileRecorder_ConcurrentAppends(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.AppendInteraction(Event{UserID: "1", UserMessage: "q"})
		}()
	}
	wg.Wait()
	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 20 {
		t.Fatalf("want 20 events, got %d", len(events))
	}
}
