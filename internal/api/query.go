package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/chat"
	"github.com/cloneai/cloneai/internal/clone"
)

// Answerer runs the query fallback chain.
// *chat.Agent satisfies this.
type Answerer interface {
	Answer(ctx context.Context, c *clone.Clone, query string, sessionID uuid.UUID) (*chat.Answer, error)
}

// queryHandler serves clone queries.
type queryHandler struct {
	agent  Answerer
	clones CloneStore
	logger *slog.Logger
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type queryResponse struct {
	Answer     string    `json:"answer"`
	Source     string    `json:"source"`
	RAGEnabled bool      `json:"rag_enabled"`
	SessionID  uuid.UUID `json:"session_id"`
}

// query handles POST /api/v1/clones/{id}/query.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "session_id is not a valid UUID")
			return
		}
	}

	c, err := h.clones.Get(r.Context(), cloneID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	answer, err := h.agent.Answer(r.Context(), c, req.Query, sessionID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:     answer.Text,
		Source:     answer.Source,
		RAGEnabled: answer.RAGEnabled,
		SessionID:  answer.SessionID,
	})
}
