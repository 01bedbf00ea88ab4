// Package memory keeps a bounded rolling history of advisory turns per chat
// session.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxTurns = 10
	// MaxMessageChars bounds each message rendered by GetContext.
	MaxMessageChars = 500
	maxKeyTopics    = 5
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionOwner is returned when a session id belongs to another user.
	ErrSessionOwner = errors.New("session belongs to another user")
)

type Turn struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Intent      string    `json:"intent"`
}

// Session is the SessionContext of one chat plus its retained turns.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	LastIntent   string    `json:"last_intent"`
	Summary      string    `json:"summary"`
	KeyTopics    []string  `json:"key_topics"`
	MessageCount int       `json:"message_count"`
	Turns        []Turn    `json:"turns"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Backend persists sessions.
type Backend interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
	UserSessions(ctx context.Context, userID string) ([]string, error)
}

type Manager struct {
	mu       sync.Mutex
	backend  Backend
	maxTurns int
	now      func() time.Time
}

func NewManager(backend Backend, maxTurns int) *Manager {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Manager{backend: backend, maxTurns: maxTurns, now: time.Now}
}

// AddTurn appends a turn and evicts the oldest turns beyond the limit.
func (m *Manager) AddTurn(ctx context.Context, sessionID, userID, userMsg, aiResponse, intent string) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.backend.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		s = &Session{SessionID: sessionID, UserID: userID}
	} else if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	} else if s.UserID != userID {
		return fmt.Errorf("add turn to session %s: %w", sessionID, ErrSessionOwner)
	}

	now := m.now().UTC()
	s.Turns = append(s.Turns, Turn{Timestamp: now, UserMessage: userMsg, AIResponse: aiResponse, Intent: intent})
	if over := len(s.Turns) - m.maxTurns; over > 0 {
		s.Turns = append([]Turn(nil), s.Turns[over:]...)
	}
	s.MessageCount++
	s.UpdatedAt = now
	if intent != "" {
		s.LastIntent = intent
		s.KeyTopics = pushTopic(s.KeyTopics, intent)
	}
	s.Summary = summarize(s, userMsg)

	if err := m.backend.Save(ctx, s); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func pushTopic(topics []string, topic string) []string {
	out := make([]string, 0, len(topics)+1)
	for _, t := range topics {
		if t != topic {
			out = append(out, t)
		}
	}
	out = append(out, topic)
	if len(out) > maxKeyTopics {
		out = out[len(out)-maxKeyTopics:]
	}
	return out
}

func summarize(s *Session, lastQuestion string) string {
	return fmt.Sprintf("%d messages; topics: %s; last question: %s",
		s.MessageCount, strings.Join(s.KeyTopics, ", "), clip(lastQuestion, 120))
}

// CheckOwner reports ErrSessionOwner when the session exists and belongs
// to a different user. Unknown sessions are free to claim.
func (m *Manager) CheckOwner(ctx context.Context, sessionID, userID string) error {
	s, err := m.backend.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if s.UserID != userID {
		return ErrSessionOwner
	}
	return nil
}

// GetContext renders the user's retained turns oldest first. An unknown
// session, or one owned by another user, yields an empty string.
func (m *Manager) GetContext(ctx context.Context, sessionID, userID string) (string, error) {
	s, err := m.backend.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if s.UserID != userID || len(s.Turns) == 0 {
		return "", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent conversation (oldest first, %d of %d messages):\n", len(s.Turns), s.MessageCount)
	for _, t := range s.Turns {
		fmt.Fprintf(&b, "User: %s\n", clip(t.UserMessage, MaxMessageChars))
		fmt.Fprintf(&b, "Advisor: %s\n", clip(t.AIResponse, MaxMessageChars))
	}
	return b.String(), nil
}

func (m *Manager) Session(ctx context.Context, sessionID string) (*Session, error) {
	return m.backend.Load(ctx, sessionID)
}

// Reset deletes a session and its turns.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Delete(ctx, sessionID)
}

// Snapshot renders every session of a user. The output carries no
// timestamps so an unchanged history hashes the same.
func (m *Manager) Snapshot(ctx context.Context, userID string) (string, error) {
	ids, err := m.backend.UserSessions(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		s, err := m.backend.Load(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load session %s: %w", id, err)
		}
		if b.Len() == 0 {
			b.WriteString("Conversation memory\n")
		}
		fmt.Fprintf(&b, "Session %s: %d messages, last intent %s\n", s.SessionID, s.MessageCount, orNone(s.LastIntent))
		if len(s.KeyTopics) > 0 {
			fmt.Fprintf(&b, "Key topics: %s\n", strings.Join(s.KeyTopics, ", "))
		}
		start := len(s.Turns) - 3
		if start < 0 {
			start = 0
		}
		for _, t := range s.Turns[start:] {
			fmt.Fprintf(&b, "- Asked: %s\n", clip(t.UserMessage, 200))
		}
	}
	return b.String(), nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
