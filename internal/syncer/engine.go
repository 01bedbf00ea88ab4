// Package syncer rebuilds the document cache from canonical records.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finadvisor/internal/docstore"
	"finadvisor/internal/records"
)

const emptyMemory = "No prior conversations on file.\n"

// MemorySnapshotter renders a user's conversation memory for the
// chat_memory document.
type MemorySnapshotter interface {
	Snapshot(ctx context.Context, userID string) (string, error)
}

// Result is the outcome of syncing one user.
type Result struct {
	Changed map[docstore.Category]bool `json:"changed"`
	Err     error                      `json:"-"`
}

type Engine struct {
	store   docstore.Store
	source  records.Source
	memory  MemorySnapshotter
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

func New(store docstore.Store, source records.Source, memory MemorySnapshotter, workers int, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		source:  source,
		memory:  memory,
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
}

// SyncUser renders every category for userID and upserts the results. The
// returned map reports which documents actually changed.
func (e *Engine) SyncUser(ctx context.Context, userID string, force bool) (map[docstore.Category]bool, error) {
	profile, err := e.source.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load records for %s: %w", userID, err)
	}
	out := make(map[docstore.Category]bool, len(docstore.Categories))
	for _, c := range docstore.Categories {
		changed, err := e.syncCategory(ctx, userID, c, profile, force)
		if err != nil {
			return out, err
		}
		out[c] = changed
	}
	n := 0
	for _, ch := range out {
		if ch {
			n++
		}
	}
	e.logger.Info("user synced",
		zap.String("user_id", userID), zap.Bool("force", force), zap.Int("changed", n))
	return out, nil
}

// SyncCategory refreshes one document. Only chat_memory avoids loading the
// canonical records.
func (e *Engine) SyncCategory(ctx context.Context, userID string, c docstore.Category, force bool) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("%w: %q", docstore.ErrInvalidCategory, c)
	}
	var profile *records.Profile
	if c != docstore.CategoryChatMemory {
		p, err := e.source.Load(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("load records for %s: %w", userID, err)
		}
		profile = p
	}
	return e.syncCategory(ctx, userID, c, profile, force)
}

func (e *Engine) syncCategory(ctx context.Context, userID string, c docstore.Category, p *records.Profile, force bool) (bool, error) {
	doc := docstore.Document{
		UserID:   userID,
		Category: c,
		Metadata: docstore.Metadata{SourceTable: SourceTable(c), LastUpdated: e.now()},
	}
	if c == docstore.CategoryChatMemory {
		content, err := e.memoryContent(ctx, userID)
		if err != nil {
			return false, err
		}
		doc.Content = content
	} else {
		doc.Content = render(c, p)
		if !p.UpdatedAt.IsZero() {
			doc.Metadata.LastUpdated = p.UpdatedAt
		}
	}
	changed, err := e.store.Put(ctx, doc, force)
	if err != nil {
		return false, fmt.Errorf("store %s: %w", docstore.DocID(userID, c), err)
	}
	return changed, nil
}

func (e *Engine) memoryContent(ctx context.Context, userID string) (string, error) {
	if e.memory == nil {
		return emptyMemory, nil
	}
	snap, err := e.memory.Snapshot(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("snapshot memory for %s: %w", userID, err)
	}
	if snap == "" {
		return emptyMemory, nil
	}
	return snap, nil
}

// SyncAll syncs each user independently on a bounded pool. A failure for
// one user is logged and reported in its Result; it never stops the others.
// With no user ids the full user list is taken from the source.
func (e *Engine) SyncAll(ctx context.Context, userIDs []string, force bool) (map[string]Result, error) {
	if len(userIDs) == 0 {
		ids, err := e.source.ListUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		userIDs = ids
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(userIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, id := range userIDs {
		g.Go(func() error {
			changed, err := e.SyncUser(gctx, id, force)
			if err != nil {
				e.logger.Warn("user sync failed", zap.String("user_id", id), zap.Error(err))
			}
			mu.Lock()
			results[id] = Result{Changed: changed, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Run consumes invalidations until the channel closes or ctx is done.
func (e *Engine) Run(ctx context.Context, invalidations <-chan records.Invalidation) {
	for {
		select {
		case <-ctx.Done():
			return
		case inv, ok := <-invalidations:
			if !ok {
				return
			}
			if _, err := e.SyncUser(ctx, inv.UserID, inv.ForceRebuild); err != nil {
				e.logger.Warn("invalidation sync failed", zap.String("user_id", inv.UserID), zap.Error(err))
			}
		}
	}
}
