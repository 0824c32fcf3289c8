// Package knowledge provides persistence and processing for clone knowledge
// entries.
//
// Each entry moves through a status lifecycle:
//
//	pending → processing → completed
//	                     ↘ failed (error_message recorded, retryable)
//
// Processing sends the entry's content to the external RAG backend and
// embeds it locally (pgvector) so the fallback query path can retrieve
// inline context when the backend is unavailable.
package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry status values.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Source types for knowledge entries.
const (
	// SourceTypeText is inline text pasted by the user.
	SourceTypeText = "text"

	// SourceTypeLink is a URL whose readable content is extracted at
	// processing time.
	SourceTypeLink = "link"

	// SourceTypeDocument is text extracted from an uploaded document.
	SourceTypeDocument = "document"
)

// VectorDimension is the embedding dimension of the knowledge table.
// Must match the vector(N) column in db/migrations and the output size of
// the configured embedder model (text-embedding-3-small emits 1536).
const VectorDimension = 1536

// Sentinel errors for knowledge operations.
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrInvalidSourceType indicates an unknown source type.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrEmptyContent indicates an entry has nothing to process.
	ErrEmptyContent = errors.New("knowledge entry has no content")
)

// Entry represents a knowledge entry (application-level type).
type Entry struct {
	ID           uuid.UUID
	CloneID      uuid.UUID
	Title        string
	SourceType   string
	Content      string
	URL          string // set for link entries
	Status       string
	ErrorMessage string // set when Status is failed
	ChunkCount   int    // reported by the backend on completion
	ProcessedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Result is a local similarity-search hit.
type Result struct {
	Entry      Entry
	Similarity float32 // cosine similarity (0-1)
}

// ValidSourceType reports whether s is a known source type.
func ValidSourceType(s string) bool {
	switch s {
	case SourceTypeText, SourceTypeLink, SourceTypeDocument:
		return true
	}
	return false
}
