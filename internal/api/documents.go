package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/document"
)

const (
	maxDocumentName      = 255
	documentsDefaultList = 100
	documentsMaxList     = 500
)

// DocumentStore is the persistence surface the document handler needs.
// *document.Store satisfies this.
type DocumentStore interface {
	Create(ctx context.Context, p document.CreateParams) (*document.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	ListByClone(ctx context.Context, cloneID uuid.UUID, limit, offset int32) ([]*document.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// documentHandler serves document metadata registration.
type documentHandler struct {
	store  DocumentStore
	clones CloneStore
	logger *slog.Logger
}

type documentResponse struct {
	ID          uuid.UUID `json:"id"`
	CloneID     uuid.UUID `json:"clone_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

func toDocumentResponse(d *document.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		CloneID:     d.CloneID,
		Name:        d.Name,
		ContentType: d.ContentType,
		SizeBytes:   d.SizeBytes,
		StoragePath: d.StoragePath,
		CreatedAt:   d.CreatedAt,
	}
}

type createDocumentRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `json:"storage_path"`
}

// create handles POST /api/v1/clones/{id}/documents.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.clones.Get(r.Context(), cloneID); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	var req createDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxDocumentName {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required and must be at most 255 characters")
		return
	}
	if req.SizeBytes < 0 || req.SizeBytes > document.MaxDocumentSize {
		writeError(w, http.StatusBadRequest, "invalid_request", "size_bytes out of range")
		return
	}
	if strings.TrimSpace(req.StoragePath) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "storage_path is required")
		return
	}

	d, err := h.store.Create(r.Context(), document.CreateParams{
		CloneID:     cloneID,
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StoragePath: req.StoragePath,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(d))
}

// list handles GET /api/v1/clones/{id}/documents.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	cloneID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r, documentsDefaultList, documentsMaxList)
	docs, err := h.store.ListByClone(r.Context(), cloneID, limit, offset)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// delete handles DELETE /api/v1/documents/{id}.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
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
