package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finadvisor/internal/advisor"
	"finadvisor/internal/assembler"
	"finadvisor/internal/docstore"
	"finadvisor/internal/intent"
	"finadvisor/internal/llm"
	"finadvisor/internal/memory"
	"finadvisor/internal/records"
	"finadvisor/internal/retrieval"
	"finadvisor/internal/storage"
	"finadvisor/internal/syncer"
)

type staticClient struct{ reply string }

func (c staticClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	return llm.Response{Content: c.reply, Model: "static"}, nil
}

type nopRecorder struct{}

func (nopRecorder) AppendInteraction(storage.Event) error { return nil }

func (nopRecorder) LoadInteractions() ([]storage.Event, error) { return nil, nil }

func (nopRecorder) LastForUser(string) (storage.Event, bool, error) {
	return storage.Event{}, false, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	handler http.Handler
	store   docstore.Store
	mem     *memory.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := docstore.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	mem := memory.NewManager(nil, 10)
	source := records.NewMemorySource(records.SampleProfile("1"), records.SampleProfile("2"))
	eng := syncer.New(store, source, mem, 2, nil)

	router := llm.NewRouter(time.Second, nil)
	router.Register(llm.ProviderOpenAI, staticClient{reply: "Your net worth is $2,565,545 with $1,050,000 of debt."}, 1, true)
	router.Register(llm.ProviderYandex, nil, 4, false)

	adv := advisor.New(advisor.Deps{
		Classifier: intent.NewClassifier(),
		Assembler:  assembler.New(store, retrieval.New(store), mem, nil, nil),
		Router:     router,
		Memory:     mem,
		Syncer:     eng,
		Recorder:   nopRecorder{},
	}, advisor.Options{PreferredProvider: llm.ProviderOpenAI}, nil)

	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := NewHandler(Deps{Advisor: adv, Syncer: eng, Sessions: mem, Store: store, Providers: router, MCP: mcp}, nil)
	return &testAPI{handler: NewRouter(h), store: store, mem: mem}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealthzAndRequestID(t *testing.T) {
	api := newTestAPI(t)
	rec, _ := api.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestSyncUser(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/v1/sync/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var changed map[docstore.Category]bool
	require.NoError(t, json.Unmarshal(env.Data, &changed))
	require.True(t, changed[docstore.CategorySummary])

	_, env = api.do(t, http.MethodPost, "/v1/sync/1?force_rebuild=false", "")
	require.NoError(t, json.Unmarshal(env.Data, &changed))
	require.False(t, changed[docstore.CategorySummary])

	_, env = api.do(t, http.MethodPost, "/v1/sync/1?force_rebuild=true", "")
	require.NoError(t, json.Unmarshal(env.Data, &changed))
	require.True(t, changed[docstore.CategorySummary])

	rec, env = api.do(t, http.MethodPost, "/v1/sync/1?force_rebuild=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, env = api.do(t, http.MethodPost, "/v1/sync/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "UNKNOWN_USER", env.Code)
}

func TestSyncAll(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/v1/sync", `{"user_ids":["1","404"],"force_rebuild":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var results map[string]syncUserResult
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Empty(t, results["1"].Error)
	require.True(t, results["1"].Changed[docstore.CategorySummary])
	require.Equal(t, "unknown user", results["404"].Error)

	rec, env = api.do(t, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 2)

	rec, _ = api.do(t, http.MethodPost, "/v1/sync", `{"users":["1"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatThenInspect(t *testing.T) {
	api := newTestAPI(t)
	api.do(t, http.MethodPost, "/v1/sync/1", "")

	rec, env := api.do(t, http.MethodPost, "/v1/chat", `{"user_id":"1","session_id":"web-1","message":"What is my net worth?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply advisor.Reply
	require.NoError(t, json.Unmarshal(env.Data, &reply))
	require.False(t, reply.Degraded)
	require.Equal(t, "web-1", reply.SessionID)
	require.Equal(t, llm.ProviderOpenAI, reply.Provider)

	rec, env = api.do(t, http.MethodGet, "/v1/users/1/turns/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev storage.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.Equal(t, reply.TurnID, ev.ID)
	require.Contains(t, ev.Prompt, "2,565,545")

	rec, env = api.do(t, http.MethodPost, "/v1/chat", `{"user_id":"2","session_id":"web-1","message":"What did we discuss?"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", env.Code)

	rec, env = api.do(t, http.MethodGet, "/v1/users/1/documents?categories=chat_memory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []docstore.Document
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	require.Len(t, docs, 1)
	require.Contains(t, docs[0].Content, "Session web-1")

	rec, _ = api.do(t, http.MethodDelete, "/v1/sessions/web-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err := api.mem.Session(context.Background(), "web-1")
	require.ErrorIs(t, err, memory.ErrSessionNotFound)
	doc, err := api.store.Get(context.Background(), docstore.DocID("1", docstore.CategoryChatMemory))
	require.NoError(t, err)
	require.NotContains(t, doc.Content, "web-1")

	rec, env = api.do(t, http.MethodDelete, "/v1/sessions/web-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", env.Code)
}

func TestChat_Validation(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/v1/chat", `{"user_id":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, _ = api.do(t, http.MethodPost, "/v1/chat", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodPost, "/v1/chat", `{"user_id":"1","message":"hi","insight_level":"verbose"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentsAndTurns_Empty(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodGet, "/v1/users/2/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, string(env.Data))

	rec, _ = api.do(t, http.MethodGet, "/v1/users/2/documents?categories=horoscope", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = api.do(t, http.MethodGet, "/v1/users/2/turns/last", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProvidersAndMCPMount(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var eps []llm.Endpoint
	require.NoError(t, json.Unmarshal(env.Data, &eps))
	require.Equal(t, []llm.Endpoint{
		{Name: llm.ProviderOpenAI, Priority: 1, Available: true},
		{Name: llm.ProviderYandex, Priority: 4, Available: false},
	}, eps)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)
}
