// Package clone provides persistence for AI clone personas.
//
// A clone is a configured persona record: name, description, and the system
// prompt that shapes its answers. Its status tracks the knowledge-processing
// lifecycle driven by the processor in internal/knowledge.
package clone

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Clone status values.
const (
	// StatusDraft is a freshly created clone with no processed knowledge.
	StatusDraft = "draft"

	// StatusProcessing means knowledge processing is in flight.
	StatusProcessing = "processing"

	// StatusReady means the clone's knowledge is fully processed.
	StatusReady = "ready"

	// StatusError means the last processing run left failed entries.
	StatusError = "error"
)

// Sentinel errors for clone operations, checked with errors.Is().
var (
	// ErrNotFound indicates the requested clone does not exist.
	ErrNotFound = errors.New("clone not found")

	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid clone status")
)

// Clone represents an AI clone persona (application-level type).
type Clone struct {
	ID           uuid.UUID
	OwnerID      string
	Name         string
	Description  string
	SystemPrompt string
	Status       string
	RAGEnabled   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidStatus reports whether s is a known clone status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}
