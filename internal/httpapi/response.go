package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"finadvisor/internal/advisor"
	"finadvisor/internal/docstore"
	"finadvisor/internal/memory"
	"finadvisor/internal/records"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// mapError keeps internal details out of responses except for validation
// failures, whose message is written for the caller.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, advisor.ErrInvalidRequest):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, records.ErrUnknownUser):
		return http.StatusNotFound, "UNKNOWN_USER", "unknown user"
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "document not found"
	case errors.Is(err, memory.ErrSessionNotFound):
		return http.StatusNotFound, "NOT_FOUND", "session not found"
	case errors.Is(err, memory.ErrSessionOwner):
		return http.StatusForbidden, "FORBIDDEN", "session belongs to another user"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "request timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func (h *Handler) writeMappedError(r *http.Request, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapError(err)
	log := h.logger.With(
		zap.String("operation", operation),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Int("status_code", status),
		zap.String("code", code),
		zap.Error(err))
	if status >= 500 {
		log.Error("http operation failed")
	} else {
		log.Warn("http operation rejected")
	}
	writeError(w, status, code, msg)
}
