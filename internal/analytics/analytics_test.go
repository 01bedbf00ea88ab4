package analytics

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"finadvisor/internal/storage"
)

func TestAnalyzeDailyLogs(t *testing.T) {
	testDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	events := []storage.Event{
		{Timestamp: testDate.Add(2 * time.Hour), UserID: "123", UserMessage: "What is my net worth?", Intent: "general", Provider: "openai", TrustScore: 6},
		{Timestamp: testDate.Add(4 * time.Hour), UserID: "123", UserMessage: "Tax question", Intent: "tax", Provider: "claude", TrustScore: 2, Warnings: []string{"low_confidence"}},
		{Timestamp: testDate.Add(6 * time.Hour), UserID: "456", UserMessage: "Retire early?", Intent: "goals", Degraded: true, Warnings: []string{"no_provider_available"}},
		// next day, ignored
		{Timestamp: testDate.AddDate(0, 0, 1), UserID: "789", UserMessage: "tomorrow", Intent: "tax"},
		// no user message, ignored
		{Timestamp: testDate.Add(8 * time.Hour), UserID: "123", AssistantResponse: "[system]"},
	}

	stats := AnalyzeDailyLogs(events, testDate)

	if stats.Date != "2024-01-15" {
		t.Errorf("Expected date '2024-01-15', got '%s'", stats.Date)
	}
	if stats.TotalTurns != 3 {
		t.Errorf("Expected 3 turns, got %d", stats.TotalTurns)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("Expected 2 unique users, got %d", stats.UniqueUsers)
	}
	if stats.DegradedTurns != 1 || stats.LowConfidenceTurns != 1 {
		t.Errorf("unexpected degraded/low confidence: %d/%d", stats.DegradedTurns, stats.LowConfidenceTurns)
	}
	if stats.AverageTrustScore != 4 {
		t.Errorf("Expected average trust 4, got %v", stats.AverageTrustScore)
	}
	if stats.ByIntent["tax"] != 1 || stats.ByIntent["goals"] != 1 || stats.ByIntent["general"] != 1 {
		t.Errorf("unexpected intents: %v", stats.ByIntent)
	}
	if stats.ByProvider["openai"] != 1 || stats.ByProvider["claude"] != 1 || len(stats.ByProvider) != 2 {
		t.Errorf("unexpected providers: %v", stats.ByProvider)
	}
	if u := stats.UserStats["456"]; u.Turns != 1 || u.Degraded != 1 {
		t.Errorf("unexpected user stats: %+v", u)
	}
}

func TestGenerateReportSummary(t *testing.T) {
	stats := &DailyStats{
		Date:        "2024-01-15",
		TotalTurns:  5,
		UniqueUsers: 2,
		ByIntent:    map[string]int{"tax": 3, "goals": 2},
		ByProvider:  map[string]int{"openai": 5},
	}
	summary := stats.GenerateReportSummary()
	for _, want := range []string{"2024-01-15", "Turns: 5", "Unique users: 2", "- goals: 2\n- tax: 3", "- openai: 5"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestToJSON(t *testing.T) {
	stats := AnalyzeDailyLogs(nil, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	out, err := stats.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	var parsed DailyStats
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Date != "2024-01-15" || parsed.TotalTurns != 0 {
		t.Errorf("unexpected parsed stats: %+v", parsed)
	}
}
