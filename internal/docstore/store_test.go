package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T, dir string) Store

var backends = map[string]storeFactory{
	"sqlite": func(t *testing.T, dir string) Store {
		s, err := NewSQLiteStore(context.Background(), filepath.Join(dir, "documents.db"), nil)
		require.NoError(t, err)
		return s
	},
	"file": func(t *testing.T, dir string) Store {
		s, err := NewFileStore(filepath.Join(dir, "shards"), nil)
		require.NoError(t, err)
		return s
	},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, open func() Store)) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			fn(t, func() Store { return factory(t, dir) })
		})
	}
}

func TestPut_SkipsUnchangedContent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		defer s.Close()

		doc := Document{UserID: "1", Category: CategoryIncome, Content: "Salary: $120,000", Metadata: Metadata{SourceTable: "income"}}
		changed, err := s.Put(ctx, doc, false)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = s.Put(ctx, doc, false)
		require.NoError(t, err)
		require.False(t, changed, "identical content must be a no-op")

		changed, err = s.Put(ctx, doc, true)
		require.NoError(t, err)
		require.True(t, changed, "force must rewrite")

		doc.Content = "Salary: $130,000"
		changed, err = s.Put(ctx, doc, false)
		require.NoError(t, err)
		require.True(t, changed)

		got, err := s.Get(ctx, "user_1_income")
		require.NoError(t, err)
		require.Equal(t, "Salary: $130,000", got.Content)
		require.Equal(t, ContentHash("Salary: $130,000"), got.Metadata.ContentHash)
		require.Equal(t, "income", got.Metadata.SourceTable)
		require.False(t, got.Metadata.LastUpdated.IsZero())
	})
}

func TestPut_RejectsUnknownCategory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		s := open()
		defer s.Close()
		_, err := s.Put(context.Background(), Document{UserID: "1", Category: "crypto", Content: "x"}, false)
		require.ErrorIs(t, err, ErrInvalidCategory)
	})
}

func TestGet_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		s := open()
		defer s.Close()
		_, err := s.Get(context.Background(), "user_9_tax")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestQuery_OrdersByPriorityAndIsolatesUsers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		defer s.Close()

		for _, c := range []Category{CategoryEstate, CategoryIncome, CategorySummary} {
			_, err := s.Put(ctx, Document{UserID: "1", Category: c, Content: string(c)}, false)
			require.NoError(t, err)
		}
		_, err := s.Put(ctx, Document{UserID: "2", Category: CategoryTax, Content: "other user"}, false)
		require.NoError(t, err)

		docs, err := s.Query(ctx, "1")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		require.Equal(t, CategorySummary, docs[0].Category)
		require.Equal(t, CategoryIncome, docs[1].Category)
		require.Equal(t, CategoryEstate, docs[2].Category)

		docs, err = s.Query(ctx, "1", CategoryIncome)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		require.Equal(t, "user_1_income", docs[0].ID)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		_, err := s.Put(ctx, Document{UserID: "1", Category: CategoryGoals, Content: "Retire at 62"}, false)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s = open()
		defer s.Close()
		got, err := s.Get(ctx, DocID("1", CategoryGoals))
		require.NoError(t, err)
		require.Equal(t, "Retire at 62", got.Content)

		changed, err := s.Put(ctx, Document{UserID: "1", Category: CategoryGoals, Content: "Retire at 62"}, false)
		require.NoError(t, err)
		require.False(t, changed)
	})
}

func TestStore_ConcurrentWritersAcrossUsers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		defer s.Close()

		var wg sync.WaitGroup
		errs := make(chan error, 8*len(Categories))
		for u := 0; u < 8; u++ {
			for _, c := range Categories {
				wg.Add(1)
				go func(user string, c Category) {
					defer wg.Done()
					_, err := s.Put(ctx, Document{UserID: user, Category: c, Content: user + "/" + string(c)}, false)
					errs <- err
				}(fmt.Sprint(u), c)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for u := 0; u < 8; u++ {
			docs, err := s.Query(ctx, fmt.Sprint(u))
			require.NoError(t, err)
			require.Len(t, docs, len(Categories))
			for _, d := range docs {
				require.Equal(t, fmt.Sprint(u)+"/"+string(d.Category), d.Content)
			}
		}
	})
}

func TestSQLiteStore_RecoversFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.db")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("definitely not sqlite ", 400)), 0o644))

	s, err := NewSQLiteStore(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	docs, err := s.Query(context.Background(), "1")
	require.NoError(t, err)
	require.Empty(t, docs)

	matches, _ := filepath.Glob(path + ".corrupt-*")
	require.Len(t, matches, 1)
}

func TestFileStore_RecoversFromCorruptShard(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("{not json"), 0o644))

	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	docs, err := s.Query(context.Background(), "1")
	require.NoError(t, err)
	require.Empty(t, docs)

	changed, err := s.Put(context.Background(), Document{UserID: "1", Category: CategoryTax, Content: "24% bracket"}, false)
	require.NoError(t, err)
	require.True(t, changed)
}

func TestFileStore_SharedShardKeepsBothUsers(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Put(ctx, Document{UserID: "a.b", Category: CategoryTax, Content: "dot"}, false)
	require.NoError(t, err)
	_, err = s.Put(ctx, Document{UserID: "a_b", Category: CategoryTax, Content: "underscore"}, false)
	require.NoError(t, err)

	got, err := s.Get(ctx, DocID("a.b", CategoryTax))
	require.NoError(t, err)
	require.Equal(t, "dot", got.Content)
	docs, err := s.Query(ctx, "a_b")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "underscore", docs[0].Content)
}

func TestParseDocID(t *testing.T) {
	user, c, ok := ParseDocID("user_42_financial_summary")
	require.True(t, ok)
	require.Equal(t, "42", user)
	require.Equal(t, CategorySummary, c)

	user, c, ok = ParseDocID("user_a_b_chat_memory")
	require.True(t, ok)
	require.Equal(t, "a_b", user)
	require.Equal(t, CategoryChatMemory, c)

	_, _, ok = ParseDocID("doc_42_tax")
	require.False(t, ok)
}
