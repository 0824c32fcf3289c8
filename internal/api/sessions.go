package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/session"
)

const (
	maxSessionTitle      = 200
	sessionsDefaultLimit = 50
	sessionsMaxLimit     = 200
	messagesDefaultLimit = 100
	messagesMaxLimit     = 500
)

// SessionReader is the persistence surface the session handler needs.
// *session.Store satisfies this.
type SessionReader interface {
	Create(ctx context.Context, cloneID uuid.UUID, title string) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	ListByClone(ctx context.Context, cloneID uuid.UUID, limit, offset int32) ([]*session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*session.Message, error)
}

// sessionHandler serves session CRUD and message history.
type sessionHandler struct {
	store  SessionReader
	logger *slog.Logger
}

type sessionResponse struct {
	ID           uuid.UUID `json:"id"`
	CloneID      uuid.UUID `json:"clone_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		CloneID:      s.CloneID,
		Title:        s.Title,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

type messageResponse struct {
	ID             uuid.UUID `json:"id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Source         string    `json:"source,omitempty"`
	RAGEnabled     bool      `json:"rag_enabled"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

type createSessionRequest struct {
	Title string `json:"title"`
}

// create handles POST /api/v1/clones/{id}/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if len(req.Title) > maxSessionTitle {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long")
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	sess, err := h.store.Create(r.Context(), cloneID, req.Title)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// list handles GET /api/v1/clones/{id}/sessions.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r, sessionsDefaultLimit, sessionsMaxLimit)
	sessions, err := h.store.ListByClone(r.Context(), cloneID, limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// get handles GET /api/v1/sessions/{id}.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// messages handles GET /api/v1/sessions/{id}/messages.
func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// Distinguish "no messages" from "no such session".
	if _, err := h.store.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	limit, offset := pagination(r, messagesDefaultLimit, messagesMaxLimit)
	msgs, err := h.store.Messages(r.Context(), id, limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:             m.ID,
			Role:           m.Role,
			Content:        m.Content,
			Source:         m.Source,
			RAGEnabled:     m.RAGEnabled,
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// delete handles DELETE /api/v1/sessions/{id}.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
