package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DirWatcher turns writes to a YAMLSource directory into invalidations.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

func NewDirWatcher(dir string, logger *zap.Logger) (*DirWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &DirWatcher{watcher: w, logger: logger}, nil
}

// Watch emits one invalidation per created or modified user file until ctx
// is done. The returned channel is closed when watching stops.
func (w *DirWatcher) Watch(ctx context.Context) <-chan Invalidation {
	out := make(chan Invalidation, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				userID, ok := userFromFile(ev.Name)
				if !ok {
					continue
				}
				select {
				case out <- Invalidation{UserID: userID}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("records watcher error", zap.Error(err))
			}
		}
	}()
	return out
}

func (w *DirWatcher) Close() error {
	return w.watcher.Close()
}

// RedisInvalidations listens on a pub/sub channel where the CRUD side
// announces record changes. Payloads are either a bare user id or
// {"user_id": "...", "force_rebuild": true}.
type RedisInvalidations struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisInvalidations(client *redis.Client, channel string, logger *zap.Logger) *RedisInvalidations {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisInvalidations{client: client, channel: channel, logger: logger}
}

// Publish announces a change to every watcher on the channel.
func (r *RedisInvalidations) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisInvalidations) Watch(ctx context.Context) <-chan Invalidation {
	out := make(chan Invalidation, 16)
	sub := r.client.Subscribe(ctx, r.channel)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				inv, ok := ParseInvalidation(msg.Payload)
				if !ok {
					r.logger.Warn("ignoring malformed invalidation", zap.String("payload", msg.Payload))
					continue
				}
				select {
				case out <- inv:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func ParseInvalidation(payload string) (Invalidation, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Invalidation{}, false
	}
	if strings.HasPrefix(payload, "{") {
		var inv Invalidation
		if err := json.Unmarshal([]byte(payload), &inv); err != nil || inv.UserID == "" {
			return Invalidation{}, false
		}
		return inv, true
	}
	return Invalidation{UserID: payload}, true
}

// ConnectRedis accepts either a redis:// URL or a host:port address.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}
