// Package httpapi is the JSON HTTP surface of the advisory engine.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finadvisor/internal/advisor"
	"finadvisor/internal/docstore"
	"finadvisor/internal/llm"
	"finadvisor/internal/memory"
	"finadvisor/internal/storage"
	"finadvisor/internal/syncer"
)

type Advisor interface {
	Ask(ctx context.Context, req advisor.Request) (advisor.Reply, error)
	LastTurn(userID string) (storage.Event, bool, error)
}

type Syncer interface {
	SyncUser(ctx context.Context, userID string, force bool) (map[docstore.Category]bool, error)
	SyncCategory(ctx context.Context, userID string, c docstore.Category, force bool) (bool, error)
	SyncAll(ctx context.Context, userIDs []string, force bool) (map[string]syncer.Result, error)
}

type Sessions interface {
	Session(ctx context.Context, sessionID string) (*memory.Session, error)
	Reset(ctx context.Context, sessionID string) error
}

type Providers interface {
	Endpoints() []llm.Endpoint
}

type Deps struct {
	Advisor   Advisor
	Syncer    Syncer
	Sessions  Sessions
	Store     docstore.Store
	Providers Providers
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(handler.logger))
	r.Use(loggingMiddleware(handler.logger))

	r.Get("/healthz", handler.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", handler.syncAll)
		r.Post("/sync/{user_id}", handler.syncUser)
		r.Post("/chat", handler.chat)
		r.Get("/users/{user_id}/documents", handler.listDocuments)
		r.Get("/users/{user_id}/turns/last", handler.lastTurn)
		r.Delete("/sessions/{session_id}", handler.resetSession)
		r.Get("/providers", handler.providers)
	})

	if handler.deps.MCP != nil {
		r.Handle("/mcp", handler.deps.MCP)
		r.Handle("/mcp/*", handler.deps.MCP)
	}
	return r
}
