package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore keeps one JSON shard per user under dir. Writes go through a
// temp file and a rename so a shard is never left half written.
type FileStore struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex // guards locks and shards maps
	locks  map[string]*sync.Mutex
	shards map[string]map[string]Document
}

type shardRecord struct {
	UserID   string   `json:"user_id"`
	Category Category `json:"category"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	s := &FileStore{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
		shards: make(map[string]map[string]Document),
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		s.shards[strings.TrimSuffix(name, ".json")] = s.loadShard(filepath.Join(dir, name))
	}
	return s, nil
}

// loadShard reads a shard file. Unreadable or malformed shards are moved
// aside and the user starts empty.
func (s *FileStore) loadShard(path string) map[string]Document {
	docs := make(map[string]Document)
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("document shard unreadable, starting empty", zap.String("path", path), zap.Error(err))
		return docs
	}
	if len(data) == 0 {
		return docs
	}
	var recs map[string]shardRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			s.logger.Warn("failed to move corrupt shard aside", zap.String("path", path), zap.Error(rerr))
		}
		s.logger.Warn("document shard corrupt, starting empty",
			zap.String("path", path), zap.String("moved_to", aside), zap.Error(err))
		return docs
	}
	for id, r := range recs {
		if !r.Category.Valid() || id != DocID(r.UserID, r.Category) {
			s.logger.Warn("dropping invalid document from shard", zap.String("path", path), zap.String("doc_id", id))
			continue
		}
		docs[id] = Document{ID: id, UserID: r.UserID, Category: r.Category, Content: r.Content, Metadata: r.Metadata}
	}
	return docs
}

func (s *FileStore) shardLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// shardName keeps user ids usable as file names.
func shardName(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, userID)
}

// shard returns a copy of a shard's documents. Distinct user ids may map to
// the same shard, so callers filter by UserID when reading.
func (s *FileStore) shard(name string) map[string]Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.shards[name]
	out := make(map[string]Document, len(src))
	for id, d := range src {
		out[id] = d
	}
	return out
}

func (s *FileStore) Put(ctx context.Context, doc Document, force bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	doc, err := prepare(doc, s.now())
	if err != nil {
		return false, err
	}
	name := shardName(doc.UserID)
	l := s.shardLock(name)
	l.Lock()
	defer l.Unlock()

	docs := s.shard(name)
	if cur, ok := docs[doc.ID]; ok && !force && cur.Metadata.ContentHash == doc.Metadata.ContentHash {
		return false, nil
	}
	docs[doc.ID] = doc
	if err := s.writeShard(name, docs); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.shards[name] = docs
	s.mu.Unlock()
	return true, nil
}

func (s *FileStore) writeShard(name string, docs map[string]Document) error {
	recs := make(map[string]shardRecord, len(docs))
	for id, d := range docs {
		recs[id] = shardRecord{UserID: d.UserID, Category: d.Category, Content: d.Content, Metadata: d.Metadata}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode shard: %w", err)
	}
	path := filepath.Join(s.dir, name+".json")
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp shard: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp shard: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp shard: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp shard: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace shard: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	userID, _, ok := ParseDocID(id)
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	d, ok := s.shard(shardName(userID))[id]
	if !ok || d.UserID != userID {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *FileStore) Query(ctx context.Context, userID string, categories ...Category) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := categoryFilter(categories)
	var out []Document
	for _, d := range s.shard(shardName(userID)) {
		if d.UserID != userID || (filter != nil && !filter[d.Category]) {
			continue
		}
		out = append(out, d)
	}
	sortByPriority(out)
	return out, nil
}

func (s *FileStore) Close() error { return nil }

func sortByPriority(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		return Priority(docs[i].Category) < Priority(docs[j].Category)
	})
}
