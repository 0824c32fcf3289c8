package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages document metadata with a PostgreSQL backend.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a new Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateParams are the fields for registering a document.
type CreateParams struct {
	CloneID     uuid.UUID
	Name        string
	ContentType string
	SizeBytes   int64
	StoragePath string
}

// Create registers a document's metadata.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Document, error) {
	if p.SizeBytes < 0 || p.SizeBytes > MaxDocumentSize {
		return nil, fmt.Errorf("document size %d out of range (max %d)", p.SizeBytes, MaxDocumentSize)
	}

	var d Document
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (clone_id, name, content_type, size_bytes, storage_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, clone_id, name, content_type, size_bytes, storage_path, created_at`,
		p.CloneID, p.Name, p.ContentType, p.SizeBytes, p.StoragePath,
	).Scan(&d.ID, &d.CloneID, &d.Name, &d.ContentType, &d.SizeBytes, &d.StoragePath, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("registering document: %w", err)
	}

	s.logger.Debug("registered document", "id", d.ID, "clone_id", d.CloneID, "name", d.Name)
	return &d, nil
}

// Get retrieves a document by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, clone_id, name, content_type, size_bytes, storage_path, created_at
		FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.CloneID, &d.Name, &d.ContentType, &d.SizeBytes, &d.StoragePath, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	return &d, nil
}

// ListByClone returns a clone's documents, newest first.
func (s *Store) ListByClone(ctx context.Context, cloneID uuid.UUID, limit, offset int32) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, clone_id, name, content_type, size_bytes, storage_path, created_at
		FROM documents WHERE clone_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, cloneID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CloneID, &d.Name, &d.ContentType,
			&d.SizeBytes, &d.StoragePath, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}

// Delete removes a document's metadata.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
