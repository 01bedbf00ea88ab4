// Package mcpserver exposes read-mostly inspection tools over MCP: stored
// documents, the last assembled prompt, on-demand sync and usage stats.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"finadvisor/internal/analytics"
	"finadvisor/internal/docstore"
	"finadvisor/internal/storage"
)

const (
	serverName    = "finadvisor-inspector"
	serverVersion = "1.0.0"
)

type TurnLookup interface {
	LastTurn(userID string) (storage.Event, bool, error)
}

type UserSyncer interface {
	SyncUser(ctx context.Context, userID string, force bool) (map[docstore.Category]bool, error)
}

type Deps struct {
	Store    docstore.Store
	Turns    TurnLookup
	Syncer   UserSyncer
	Recorder storage.Recorder
}

type Inspector struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{deps: deps, logger: logger, now: time.Now}
}

type ListDocumentsParams struct {
	UserID     string   `json:"user_id" mcp:"advisory user id"`
	Categories []string `json:"categories,omitempty" mcp:"optional category filter, e.g. financial_summary, tax"`
}

type GetDocumentParams struct {
	UserID   string `json:"user_id" mcp:"advisory user id"`
	Category string `json:"category" mcp:"document category, e.g. financial_summary"`
}

type LastTurnParams struct {
	UserID string `json:"user_id" mcp:"advisory user id"`
}

type SyncUserParams struct {
	UserID       string `json:"user_id" mcp:"advisory user id"`
	ForceRebuild bool   `json:"force_rebuild,omitempty" mcp:"rewrite documents even when unchanged"`
}

type DailyStatsParams struct {
	Date string `json:"date,omitempty" mcp:"UTC day as YYYY-MM-DD, defaults to today"`
}

// Server builds an MCP server with every inspection tool registered.
func (i *Inspector) Server() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "Lists a user's stored context documents with hashes and update times",
	}, i.ListDocuments)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Returns the full content of one stored context document",
	}, i.GetDocument)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "last_turn",
		Description: "Returns the last assembled prompt and response for a user",
	}, i.LastTurn)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_user",
		Description: "Re-syncs a user's documents from canonical records",
	}, i.SyncUser)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "daily_stats",
		Description: "Aggregates one UTC day of advisory turns from the audit log",
	}, i.DailyStats)

	return server
}

// SSEHandler serves the inspection tools over SSE.
func (i *Inspector) SSEHandler() http.Handler {
	server := i.Server()
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server })
}

// RunStdio serves the inspection tools on stdin/stdout until ctx is done.
func (i *Inspector) RunStdio(ctx context.Context) error {
	return i.Server().Run(ctx, mcp.NewStdioTransport())
}

type documentInfo struct {
	ID          string            `json:"id"`
	Category    docstore.Category `json:"category"`
	SourceTable string            `json:"source_table"`
	LastUpdated time.Time         `json:"last_updated"`
	ContentHash string            `json:"content_hash"`
	Length      int               `json:"length"`
}

func (i *Inspector) ListDocuments(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[ListDocumentsParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if strings.TrimSpace(args.UserID) == "" {
		return errorResult("user_id is required"), nil
	}
	cats := make([]docstore.Category, 0, len(args.Categories))
	for _, c := range args.Categories {
		cat := docstore.Category(strings.TrimSpace(c))
		if !cat.Valid() {
			return errorResult("unknown category %q", c), nil
		}
		cats = append(cats, cat)
	}

	docs, err := i.deps.Store.Query(ctx, args.UserID, cats...)
	if err != nil {
		i.logger.Warn("list documents failed", zap.String("user_id", args.UserID), zap.Error(err))
		return errorResult("failed to list documents: %v", err), nil
	}
	out := make([]documentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentInfo{
			ID:          d.ID,
			Category:    d.Category,
			SourceTable: d.Metadata.SourceTable,
			LastUpdated: d.Metadata.LastUpdated,
			ContentHash: d.Metadata.ContentHash,
			Length:      len(d.Content),
		})
	}
	res := jsonResult(out)
	res.Meta = map[string]interface{}{"user_id": args.UserID, "total_documents": len(out)}
	return res, nil
}

func (i *Inspector) GetDocument(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[GetDocumentParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	cat := docstore.Category(strings.TrimSpace(args.Category))
	if strings.TrimSpace(args.UserID) == "" || !cat.Valid() {
		return errorResult("user_id and a valid category are required"), nil
	}
	doc, err := i.deps.Store.Get(ctx, docstore.DocID(args.UserID, cat))
	if errors.Is(err, docstore.ErrNotFound) {
		return errorResult("no %s document for user %s", cat, args.UserID), nil
	}
	if err != nil {
		return errorResult("failed to read document: %v", err), nil
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: doc.Content}},
		Meta: map[string]interface{}{
			"id":           doc.ID,
			"content_hash": doc.Metadata.ContentHash,
			"last_updated": doc.Metadata.LastUpdated.Format(time.RFC3339),
		},
	}, nil
}

func (i *Inspector) LastTurn(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[LastTurnParams]) (*mcp.CallToolResultFor[any], error) {
	userID := strings.TrimSpace(params.Arguments.UserID)
	if userID == "" {
		return errorResult("user_id is required"), nil
	}
	ev, ok, err := i.deps.Turns.LastTurn(userID)
	if err != nil {
		return errorResult("failed to load last turn: %v", err), nil
	}
	if !ok {
		return errorResult("no turns recorded for user %s", userID), nil
	}
	return jsonResult(ev), nil
}

func (i *Inspector) SyncUser(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[SyncUserParams]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if strings.TrimSpace(args.UserID) == "" {
		return errorResult("user_id is required"), nil
	}
	changed, err := i.deps.Syncer.SyncUser(ctx, args.UserID, args.ForceRebuild)
	if err != nil {
		i.logger.Warn("mcp sync failed", zap.String("user_id", args.UserID), zap.Error(err))
		return errorResult("sync failed: %v", err), nil
	}
	i.logger.Info("mcp sync", zap.String("user_id", args.UserID), zap.Bool("force", args.ForceRebuild))
	return jsonResult(changed), nil
}

func (i *Inspector) DailyStats(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[DailyStatsParams]) (*mcp.CallToolResultFor[any], error) {
	day := i.now().UTC()
	if s := strings.TrimSpace(params.Arguments.Date); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return errorResult("date must be YYYY-MM-DD"), nil
		}
		day = d
	}
	events, err := i.deps.Recorder.LoadInteractions()
	if err != nil {
		return errorResult("failed to read audit log: %v", err), nil
	}
	stats := analytics.AnalyzeDailyLogs(events, day)
	res := jsonResult(stats)
	res.Content = append(res.Content, &mcp.TextContent{Text: stats.GenerateReportSummary()})
	return res, nil
}

func errorResult(format string, args ...any) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func jsonResult(v any) *mcp.CallToolResultFor[any] {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: %v", err)
	}
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
