package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/clone"
)

// Validation bounds for clone fields.
const (
	maxCloneNameLength   = 120
	maxDescriptionLength = 2000
	maxSystemPromptLen   = 16000

	clonesDefaultLimit = 50
	clonesMaxLimit     = 200
)

// CloneStore is the persistence surface the clone handler needs.
// *clone.Store satisfies this.
type CloneStore interface {
	Create(ctx context.Context, p clone.CreateParams) (*clone.Clone, error)
	Get(ctx context.Context, id uuid.UUID) (*clone.Clone, error)
	List(ctx context.Context, ownerID string, limit, offset int32) ([]*clone.Clone, error)
	Update(ctx context.Context, id uuid.UUID, p clone.UpdateParams) (*clone.Clone, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// IndexDropper tells the external backend to drop a clone's index.
// *backend.Client satisfies this.
type IndexDropper interface {
	DeleteIndex(ctx context.Context, cloneID string) error
}

// cloneHandler serves clone CRUD.
type cloneHandler struct {
	store   CloneStore
	backend IndexDropper
	logger  *slog.Logger
}

// cloneResponse is the JSON shape of a clone.
type cloneResponse struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	SystemPrompt string    `json:"system_prompt"`
	Status       string    `json:"status"`
	RAGEnabled   bool      `json:"rag_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCloneResponse(c *clone.Clone) cloneResponse {
	return cloneResponse{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		Name:         c.Name,
		Description:  c.Description,
		SystemPrompt: c.SystemPrompt,
		Status:       c.Status,
		RAGEnabled:   c.RAGEnabled,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type createCloneRequest struct {
	OwnerID      string `json:"owner_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
}

// create handles POST /api/v1/clones.
func (h *cloneHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Name = strings.TrimSpace(req.Name)
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}
	if req.Name == "" || len(req.Name) > maxCloneNameLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required and must be at most 120 characters")
		return
	}
	if len(req.Description) > maxDescriptionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "description too long")
		return
	}
	if len(req.SystemPrompt) > maxSystemPromptLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "system_prompt too long")
		return
	}

	c, err := h.store.Create(r.Context(), clone.CreateParams{
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, toCloneResponse(c))
}

// list handles GET /api/v1/clones?owner_id=...&limit=...&offset=...
func (h *cloneHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner_id query parameter is required")
		return
	}

	limit, offset := pagination(r, clonesDefaultLimit, clonesMaxLimit)
	clones, err := h.store.List(r.Context(), ownerID, limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]cloneResponse, 0, len(clones))
	for _, c := range clones {
		out = append(out, toCloneResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"clones": out})
}

// get handles GET /api/v1/clones/{id}.
func (h *cloneHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toCloneResponse(c))
}

type updateCloneRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	SystemPrompt *string `json:"system_prompt"`
}

// update handles PATCH /api/v1/clones/{id}.
func (h *cloneHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req updateCloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" || len(trimmed) > maxCloneNameLength {
			writeError(w, http.StatusBadRequest, "invalid_request", "name must be 1-120 characters")
			return
		}
		req.Name = &trimmed
	}
	if req.Description != nil && len(*req.Description) > maxDescriptionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "description too long")
		return
	}
	if req.SystemPrompt != nil && len(*req.SystemPrompt) > maxSystemPromptLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "system_prompt too long")
		return
	}

	c, err := h.store.Update(r.Context(), id, clone.UpdateParams{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toCloneResponse(c))
}

// delete handles DELETE /api/v1/clones/{id}.
//
// Deletion must succeed even when the backend is down: dropping the
// backend index is best effort, failures are logged and swallowed.
func (h *cloneHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	if h.backend != nil {
		if err := h.backend.DeleteIndex(r.Context(), id.String()); err != nil {
			h.logger.Warn("dropping backend index failed, continuing",
				"clone_id", id, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses a UUID path value, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query parameters with bounds.
func pagination(r *http.Request, def, max int32) (limit, offset int32) {
	limit = def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	if limit > max {
		limit = max
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
