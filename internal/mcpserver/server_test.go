package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"finadvisor/internal/analytics"
	"finadvisor/internal/docstore"
	"finadvisor/internal/records"
	"finadvisor/internal/storage"
	"finadvisor/internal/syncer"
)

type fakeTurns map[string]storage.Event

func (f fakeTurns) LastTurn(userID string) (storage.Event, bool, error) {
	ev, ok := f[userID]
	return ev, ok, nil
}

type sliceRecorder struct{ events []storage.Event }

func (r *sliceRecorder) AppendInteraction(ev storage.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *sliceRecorder) LoadInteractions() ([]storage.Event, error) { return r.events, nil }

func (r *sliceRecorder) LastForUser(string) (storage.Event, bool, error) {
	return storage.Event{}, false, nil
}

func newInspector(t *testing.T) (*Inspector, docstore.Store) {
	t.Helper()
	store, err := docstore.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	eng := syncer.New(store, records.NewMemorySource(records.SampleProfile("1")), nil, 1, nil)
	_, err = eng.SyncUser(context.Background(), "1", false)
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rec := &sliceRecorder{events: []storage.Event{
		{ID: "t1", Timestamp: day, UserID: "1", UserMessage: "What is my net worth?", Intent: "general", Provider: "openai", TrustScore: 5, TrustPassed: true},
	}}
	turns := fakeTurns{"1": {ID: "t1", UserID: "1", Prompt: "Client facts (always included):\n..."}}
	insp := New(Deps{Store: store, Turns: turns, Syncer: eng, Recorder: rec}, nil)
	insp.now = func() time.Time { return day }
	return insp, store
}

func text(t *testing.T, res *mcp.CallToolResultFor[any]) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_RegistersTools(t *testing.T) {
	insp, _ := newInspector(t)
	require.NotNil(t, insp.Server())
	require.NotNil(t, insp.SSEHandler())
}

func TestListDocuments(t *testing.T) {
	insp, _ := newInspector(t)
	ctx := context.Background()

	res, err := insp.ListDocuments(ctx, nil, &mcp.CallToolParamsFor[ListDocumentsParams]{
		Arguments: ListDocumentsParams{UserID: "1", Categories: []string{"financial_summary", "tax"}},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var docs []documentInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &docs))
	require.Len(t, docs, 2)
	require.Equal(t, docstore.CategorySummary, docs[0].Category)
	require.Equal(t, "user_1_financial_summary", docs[0].ID)

	res, err = insp.ListDocuments(ctx, nil, &mcp.CallToolParamsFor[ListDocumentsParams]{
		Arguments: ListDocumentsParams{UserID: "1", Categories: []string{"horoscope"}},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = insp.ListDocuments(ctx, nil, &mcp.CallToolParamsFor[ListDocumentsParams]{})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestGetDocument(t *testing.T) {
	insp, _ := newInspector(t)
	ctx := context.Background()

	res, err := insp.GetDocument(ctx, nil, &mcp.CallToolParamsFor[GetDocumentParams]{
		Arguments: GetDocumentParams{UserID: "1", Category: "financial_summary"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Contains(t, text(t, res), "2,565,545")

	res, err = insp.GetDocument(ctx, nil, &mcp.CallToolParamsFor[GetDocumentParams]{
		Arguments: GetDocumentParams{UserID: "2", Category: "financial_summary"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "no financial_summary document")
}

func TestLastTurn(t *testing.T) {
	insp, _ := newInspector(t)
	ctx := context.Background()

	res, err := insp.LastTurn(ctx, nil, &mcp.CallToolParamsFor[LastTurnParams]{Arguments: LastTurnParams{UserID: "1"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var ev storage.Event
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &ev))
	require.Equal(t, "t1", ev.ID)
	require.Contains(t, ev.Prompt, "Client facts")

	res, err = insp.LastTurn(ctx, nil, &mcp.CallToolParamsFor[LastTurnParams]{Arguments: LastTurnParams{UserID: "9"}})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestSyncUser(t *testing.T) {
	insp, _ := newInspector(t)
	ctx := context.Background()

	res, err := insp.SyncUser(ctx, nil, &mcp.CallToolParamsFor[SyncUserParams]{Arguments: SyncUserParams{UserID: "1"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var changed map[docstore.Category]bool
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &changed))
	require.False(t, changed[docstore.CategorySummary])

	res, err = insp.SyncUser(ctx, nil, &mcp.CallToolParamsFor[SyncUserParams]{Arguments: SyncUserParams{UserID: "1", ForceRebuild: true}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &changed))
	require.True(t, changed[docstore.CategorySummary])

	res, err = insp.SyncUser(ctx, nil, &mcp.CallToolParamsFor[SyncUserParams]{Arguments: SyncUserParams{UserID: "404"}})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestDailyStats(t *testing.T) {
	insp, _ := newInspector(t)
	ctx := context.Background()

	res, err := insp.DailyStats(ctx, nil, &mcp.CallToolParamsFor[DailyStatsParams]{})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var stats analytics.DailyStats
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &stats))
	require.Equal(t, "2026-03-02", stats.Date)
	require.Equal(t, 1, stats.TotalTurns)

	res, err = insp.DailyStats(ctx, nil, &mcp.CallToolParamsFor[DailyStatsParams]{Arguments: DailyStatsParams{Date: "2026-03-01"}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &stats))
	require.Equal(t, 0, stats.TotalTurns)

	res, err = insp.DailyStats(ctx, nil, &mcp.CallToolParamsFor[DailyStatsParams]{Arguments: DailyStatsParams{Date: "March 1"}})
	require.NoError(t, err)
	require.True(t, res.IsError)
}
