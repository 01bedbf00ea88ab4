package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finadvisor/internal/advisor"
	"finadvisor/internal/docstore"
)

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseForce(r *http.Request) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("force_rebuild"))
	if raw == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: force_rebuild must be true or false", advisor.ErrInvalidRequest)
	}
	return force, nil
}

func (h *Handler) syncUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	force, err := parseForce(r)
	if err != nil {
		h.writeMappedError(r, w, "sync_user", err)
		return
	}
	changed, err := h.deps.Syncer.SyncUser(r.Context(), userID, force)
	if err != nil {
		h.writeMappedError(r, w, "sync_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, changed)
}

type syncAllRequest struct {
	UserIDs      []string `json:"user_ids,omitempty"`
	ForceRebuild bool     `json:"force_rebuild"`
}

type syncUserResult struct {
	Changed map[docstore.Category]bool `json:"changed,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	var req syncAllRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			h.writeMappedError(r, w, "sync_all", fmt.Errorf("%w: %v", advisor.ErrInvalidRequest, err))
			return
		}
	}
	results, err := h.deps.Syncer.SyncAll(r.Context(), req.UserIDs, req.ForceRebuild)
	if err != nil {
		h.writeMappedError(r, w, "sync_all", err)
		return
	}
	out := make(map[string]syncUserResult, len(results))
	for id, res := range results {
		entry := syncUserResult{Changed: res.Changed}
		if res.Err != nil {
			_, _, entry.Error = mapError(res.Err)
		}
		out[id] = entry
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req advisor.Request
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(r, w, "chat", fmt.Errorf("%w: %v", advisor.ErrInvalidRequest, err))
		return
	}
	reply, err := h.deps.Advisor.Ask(r.Context(), req)
	if err != nil {
		h.writeMappedError(r, w, "chat", err)
		return
	}
	writeSuccess(w, http.StatusOK, reply)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	var cats []docstore.Category
	if raw := r.URL.Query().Get("categories"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			cat := docstore.Category(strings.TrimSpace(c))
			if !cat.Valid() {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown category %q", c))
				return
			}
			cats = append(cats, cat)
		}
	}
	docs, err := h.deps.Store.Query(r.Context(), userID, cats...)
	if err != nil {
		h.writeMappedError(r, w, "list_documents", err)
		return
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	writeSuccess(w, http.StatusOK, docs)
}

func (h *Handler) lastTurn(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	ev, ok, err := h.deps.Advisor.LastTurn(userID)
	if err != nil {
		h.writeMappedError(r, w, "last_turn", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no turns recorded for user")
		return
	}
	writeSuccess(w, http.StatusOK, ev)
}

// resetSession clears a session and refreshes the owner's chat_memory
// document so the next assembled context no longer carries it.
func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	sess, err := h.deps.Sessions.Session(r.Context(), sessionID)
	if err != nil {
		h.writeMappedError(r, w, "reset_session", err)
		return
	}
	if err := h.deps.Sessions.Reset(r.Context(), sessionID); err != nil {
		h.writeMappedError(r, w, "reset_session", err)
		return
	}
	if _, err := h.deps.Syncer.SyncCategory(r.Context(), sess.UserID, docstore.CategoryChatMemory, false); err != nil {
		h.logger.Warn("chat memory refresh after reset failed", zap.String("user_id", sess.UserID), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) providers(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.deps.Providers.Endpoints())
}
