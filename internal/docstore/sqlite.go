package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	category     TEXT NOT NULL,
	content      TEXT NOT NULL,
	source_table TEXT NOT NULL DEFAULT '',
	last_updated INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	UNIQUE(user_id, category)
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
`

// SQLiteStore persists documents in an embedded SQLite database. Every Put
// runs in its own transaction on a single connection, so writes serialize
// and readers never observe a partial document.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path. A database that
// cannot be read is moved aside and replaced by an empty one.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	s := &SQLiteStore{path: path, logger: logger, now: time.Now}

	db, err := s.open(ctx)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
		logger.Warn("document database unreadable, starting empty",
			zap.String("path", path), zap.String("moved_to", aside), zap.Error(err))
		if rerr := os.Rename(path, aside); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, fmt.Errorf("move corrupt database aside: %w", rerr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(path + suffix)
		}
		db, err = s.open(ctx)
		if err != nil {
			return nil, err
		}
	}
	s.db = db
	return s, nil
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	dsn := "file:" + s.path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check database: %w", err)
	}
	if !strings.EqualFold(check, "ok") {
		_ = db.Close()
		return nil, fmt.Errorf("database integrity: %s", check)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) Put(ctx context.Context, doc Document, force bool) (bool, error) {
	doc, err := prepare(doc, s.now())
	if err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, "SELECT content_hash FROM documents WHERE id = ?", doc.ID).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("read current hash: %w", err)
	case !force && cur == doc.Metadata.ContentHash:
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, user_id, category, content, source_table, last_updated, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			source_table = excluded.source_table,
			last_updated = excluded.last_updated,
			content_hash = excluded.content_hash`,
		doc.ID, doc.UserID, string(doc.Category), doc.Content,
		doc.Metadata.SourceTable, doc.Metadata.LastUpdated.UnixNano(), doc.Metadata.ContentHash)
	if err != nil {
		return false, fmt.Errorf("upsert document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit put: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, category, content, source_table, last_updated, content_hash
		FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) Query(ctx context.Context, userID string, categories ...Category) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, category, content, source_table, last_updated, content_hash
		FROM documents WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	filter := categoryFilter(categories)
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if filter != nil && !filter[d.Category] {
			continue
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	sortByPriority(out)
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (Document, error) {
	var (
		d        Document
		category string
		updated  int64
	)
	if err := sc.Scan(&d.ID, &d.UserID, &category, &d.Content, &d.Metadata.SourceTable, &updated, &d.Metadata.ContentHash); err != nil {
		return Document{}, err
	}
	d.Category = Category(category)
	d.Metadata.LastUpdated = time.Unix(0, updated).UTC()
	return d, nil
}
