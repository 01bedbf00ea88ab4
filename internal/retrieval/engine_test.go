package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"finadvisor/internal/docstore"
)

func seededStore(t *testing.T, users ...string) docstore.Store {
	t.Helper()
	store, err := docstore.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	for _, u := range users {
		for _, c := range docstore.Categories {
			content := string(c) + " for " + u
			if c == docstore.CategorySummary {
				content = "Net worth: $2,565,545 (assets $3,615,545, liabilities $1,050,000)"
			}
			_, err := store.Put(context.Background(), docstore.Document{UserID: u, Category: c, Content: content}, false)
			require.NoError(t, err)
		}
	}
	return store
}

func TestSearch_NetWorthRanksSummaryFirst(t *testing.T) {
	e := New(seededStore(t, "1"))
	res, err := e.Search(context.Background(), "1", "What is my net worth?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	require.Equal(t, "user_1_financial_summary", res[0].Document.ID)
	require.Contains(t, res[0].Document.Content, "$2,565,545")
}

func TestSearch_OrdersByScoreThenPriority(t *testing.T) {
	e := New(seededStore(t, "1"))
	res, err := e.Search(context.Background(), "1", "Should I use my bonus to pay off the mortgage or invest in my 401k?", 0)
	require.NoError(t, err)

	got := make([]docstore.Category, 0, len(res))
	for _, r := range res {
		got = append(got, r.Document.Category)
	}
	// liabilities: mortgage 2 + pay off 1.5; assets: invest 1 + 401k 1; income: bonus 1.
	require.Equal(t, []docstore.Category{docstore.CategoryLiabilities, docstore.CategoryAssets, docstore.CategoryIncome}, got)
	require.InDelta(t, 3.5, res[0].Score, 1e-9)
}

func TestSearch_TieBreaksByCategoryPriority(t *testing.T) {
	e := New(seededStore(t, "1"))
	res, err := e.Search(context.Background(), "1", "cash flow", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	// expenses weighs cash flow higher than income does.
	require.Equal(t, docstore.CategoryExpenses, res[0].Document.Category)
	require.Equal(t, docstore.CategoryIncome, res[1].Document.Category)

	res, err = e.Search(context.Background(), "1", "am I on track", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, docstore.CategorySummary, res[0].Document.Category)
	require.Equal(t, docstore.CategoryGoals, res[1].Document.Category)
}

func TestSearch_Deterministic(t *testing.T) {
	e := New(seededStore(t, "1"))
	first, err := e.Search(context.Background(), "1", "taxes on my portfolio and estate trust", 0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := e.Search(context.Background(), "1", "taxes on my portfolio and estate trust", 0)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestSearch_NoMatchesAndUserIsolation(t *testing.T) {
	e := New(seededStore(t, "1", "2"))

	res, err := e.Search(context.Background(), "1", "hello there", 5)
	require.NoError(t, err)
	require.Empty(t, res)

	res, err = e.Search(context.Background(), "2", "debt and taxes", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, r := range res {
		require.Equal(t, "2", r.Document.UserID)
	}

	res, err = e.Search(context.Background(), "3", "net worth", 0)
	require.NoError(t, err)
	require.Empty(t, res)
}
