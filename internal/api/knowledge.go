package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/knowledge"
)

const (
	maxKnowledgeTitle   = 200
	maxKnowledgeContent = 1 << 20 // 1MB of raw text

	knowledgeListLimit = 500
)

// KnowledgeStore is the persistence surface the knowledge handler needs.
// *knowledge.Store satisfies this.
type KnowledgeStore interface {
	Create(ctx context.Context, p knowledge.CreateParams) (*knowledge.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*knowledge.Entry, error)
	ListByClone(ctx context.Context, cloneID uuid.UUID, limit int32) ([]*knowledge.Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProcessorRunner runs the knowledge processing pipeline.
// *knowledge.Processor satisfies this.
type ProcessorRunner interface {
	ProcessPending(ctx context.Context, cloneID uuid.UUID) (*knowledge.Report, error)
	RetryFailed(ctx context.Context, cloneID uuid.UUID) (*knowledge.Report, error)
}

// knowledgeHandler serves knowledge entry CRUD and processing.
type knowledgeHandler struct {
	store     KnowledgeStore
	processor ProcessorRunner
	clones    CloneStore
	logger    *slog.Logger
}

// entryResponse is the JSON shape of a knowledge entry.
type entryResponse struct {
	ID           uuid.UUID  `json:"id"`
	CloneID      uuid.UUID  `json:"clone_id"`
	Title        string     `json:"title"`
	SourceType   string     `json:"source_type"`
	URL          string     `json:"url,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ChunkCount   int        `json:"chunk_count"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toEntryResponse(e *knowledge.Entry) entryResponse {
	resp := entryResponse{
		ID:           e.ID,
		CloneID:      e.CloneID,
		Title:        e.Title,
		SourceType:   e.SourceType,
		URL:          e.URL,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		ChunkCount:   e.ChunkCount,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if !e.ProcessedAt.IsZero() {
		t := e.ProcessedAt
		resp.ProcessedAt = &t
	}
	return resp
}

type createEntryRequest struct {
	Title      string `json:"title"`
	SourceType string `json:"source_type"`
	Content    string `json:"content"`
	URL        string `json:"url"`
}

// create handles POST /api/v1/clones/{id}/knowledge.
func (h *knowledgeHandler) create(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// Reject entries for clones that do not exist.
	if _, err := h.clones.Get(r.Context(), cloneID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	var req createEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > maxKnowledgeTitle {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required and must be at most 200 characters")
		return
	}
	if !knowledge.ValidSourceType(req.SourceType) {
		writeError(w, http.StatusBadRequest, "invalid_request", "source_type must be text, link, or document")
		return
	}
	if len(req.Content) > maxKnowledgeContent {
		writeError(w, http.StatusBadRequest, "invalid_request", "content too large")
		return
	}

	switch req.SourceType {
	case knowledge.SourceTypeLink:
		u, err := url.Parse(req.URL)
		if err != nil || !u.IsAbs() {
			writeError(w, http.StatusBadRequest, "invalid_request", "link entries require an absolute url")
			return
		}
	default:
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "content is required for "+req.SourceType+" entries")
			return
		}
	}

	e, err := h.store.Create(r.Context(), knowledge.CreateParams{
		CloneID:    cloneID,
		Title:      req.Title,
		SourceType: req.SourceType,
		Content:    req.Content,
		URL:        req.URL,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(e))
}

// list handles GET /api/v1/clones/{id}/knowledge.
func (h *knowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.store.ListByClone(r.Context(), cloneID, knowledgeListLimit)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge": out})
}

// get handles GET /api/v1/knowledge/{id}.
func (h *knowledgeHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(e))
}

// delete handles DELETE /api/v1/knowledge/{id}.
func (h *knowledgeHandler) delete(w http.ResponseWriter, r *http.Request) {
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

// process handles POST /api/v1/clones/{id}/process-knowledge.
// Pending entries are processed sequentially within this request.
func (h *knowledgeHandler) process(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.clones.Get(r.Context(), cloneID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	report, err := h.processor.ProcessPending(r.Context(), cloneID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// retry handles POST /api/v1/clones/{id}/retry-processing.
// Failed entries are reset to pending and run through the pipeline again.
func (h *knowledgeHandler) retry(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.clones.Get(r.Context(), cloneID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	report, err := h.processor.RetryFailed(r.Context(), cloneID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
