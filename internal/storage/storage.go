package storage

import "time"

// Event is the audit record of one advisory turn: what was asked, the
// context the model saw, what it answered and how the answer scored.
// Events are appended in chronological order.
type Event struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"user_id"`
	SessionID         string    `json:"session_id,omitempty"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Intent            string    `json:"intent,omitempty"`
	InsightLevel      string    `json:"insight_level,omitempty"`
	Prompt            string    `json:"prompt,omitempty"`
	Sections          []string  `json:"sections,omitempty"`
	Provider          string    `json:"provider,omitempty"`
	Model             string    `json:"model,omitempty"`
	TotalTokens       int       `json:"total_tokens,omitempty"`
	TrustScore        int       `json:"trust_score"`
	TrustPassed       bool      `json:"trust_passed"`
	Issues            []string  `json:"issues,omitempty"`
	Warnings          []string  `json:"warnings,omitempty"`
	State             string    `json:"state"`
	Degraded          bool      `json:"degraded"`
	DurationMS        int64     `json:"duration_ms"`
}

// Recorder abstracts persistence of audit events.
// LoadInteractions returns events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
	LastForUser(userID string) (Event, bool, error)
}
