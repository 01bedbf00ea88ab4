package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryBackend keeps sessions in process.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[string]map[string]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBackend) Load(ctx context.Context, sessionID string) (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (b *MemoryBackend) Save(ctx context.Context, s *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s.SessionID] = *cloneSession(*s)
	set, ok := b.byUser[s.UserID]
	if !ok {
		set = make(map[string]struct{})
		b.byUser[s.UserID] = set
	}
	set[s.SessionID] = struct{}{}
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(b.sessions, sessionID)
	delete(b.byUser[s.UserID], sessionID)
	return nil
}

func (b *MemoryBackend) UserSessions(ctx context.Context, userID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.byUser[userID]))
	for id := range b.byUser[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func cloneSession(s Session) *Session {
	s.KeyTopics = append([]string(nil), s.KeyTopics...)
	s.Turns = append([]Turn(nil), s.Turns...)
	return &s
}

// RedisBackend stores each session as JSON under finadvisor:session:<id>
// and indexes sessions per user in a set.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend pings the server before returning. ttl <= 0 keeps
// sessions until reset.
func NewRedisBackend(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisBackend, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client, ttl: ttl}, nil
}

func sessionKey(id string) string      { return "finadvisor:session:" + id }
func userSessionsKey(id string) string { return "finadvisor:user_sessions:" + id }

func (b *RedisBackend) Load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := b.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (b *RedisBackend) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.SessionID), data, b.ttl)
	pipe.SAdd(ctx, userSessionsKey(s.UserID), s.SessionID)
	if b.ttl > 0 {
		pipe.Expire(ctx, userSessionsKey(s.UserID), b.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	s, err := b.Load(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, userSessionsKey(s.UserID), sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) UserSessions(ctx context.Context, userID string) ([]string, error) {
	ids, err := b.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
