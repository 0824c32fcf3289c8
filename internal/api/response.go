package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/chat"
	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/session"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding; an encode failure still yields a clean 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDomainError maps domain errors to HTTP responses.
//
// Backend category mapping: validation 400, auth 401, timeout 504,
// connection and processing 502, unknown 500.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, clone.ErrNotFound),
		errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, document.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, clone.ErrInvalidStatus),
		errors.Is(err, knowledge.ErrInvalidSourceType),
		errors.Is(err, knowledge.ErrEmptyContent),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, chat.ErrEmptyQuery),
		errors.Is(err, chat.ErrQueryTooLong):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, chat.ErrAllPathsFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:    "answer_failed",
			Category: backend.CategoryProcessing,
			Message:  err.Error(),
		})
		return
	}

	category := backend.Category(err)
	var status int
	var code string
	switch category {
	case backend.CategoryValidation:
		status, code = http.StatusBadRequest, "backend_rejected"
	case backend.CategoryAuth:
		status, code = http.StatusUnauthorized, "backend_auth"
	case backend.CategoryTimeout:
		status, code = http.StatusGatewayTimeout, "backend_timeout"
	case backend.CategoryConnection:
		status, code = http.StatusBadGateway, "backend_unreachable"
	case backend.CategoryProcessing:
		status, code = http.StatusBadGateway, "backend_processing"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "category", category, "error", err)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Never leak internals on unknown errors.
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: code, Category: category, Message: msg})
}

// decodeJSON decodes a request body into dst with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
