// Package document provides persistence for uploaded document metadata.
//
// The server does not store file contents; uploads land in object storage
// and this table records what exists, for which clone, and where. Text
// extraction feeds the knowledge pipeline as document-type entries.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// MaxDocumentSize bounds registered documents (bytes).
const MaxDocumentSize = 50 * 1024 * 1024

// Document represents an uploaded document's metadata.
type Document struct {
	ID          uuid.UUID
	CloneID     uuid.UUID
	Name        string
	ContentType string
	SizeBytes   int64
	StoragePath string
	CreatedAt   time.Time
}
