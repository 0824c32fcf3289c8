package clone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages clone persistence with a PostgreSQL backend.
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

// CreateParams are the caller-supplied fields for a new clone.
type CreateParams struct {
	OwnerID      string
	Name         string
	Description  string
	SystemPrompt string
}

// Create inserts a new clone in draft status.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Clone, error) {
	var c Clone
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clones (owner_id, name, description, system_prompt, status, rag_enabled)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, owner_id, name, description, system_prompt, status, rag_enabled, created_at, updated_at`,
		p.OwnerID, p.Name, p.Description, p.SystemPrompt, StatusDraft,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.SystemPrompt,
		&c.Status, &c.RAGEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating clone: %w", err)
	}

	s.logger.Debug("created clone", "id", c.ID, "name", c.Name)
	return &c, nil
}

// Get retrieves a clone by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Clone, error) {
	var c Clone
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, description, system_prompt, status, rag_enabled, created_at, updated_at
		FROM clones WHERE id = $1`, id,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.SystemPrompt,
		&c.Status, &c.RAGEnabled, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting clone %s: %w", id, err)
	}
	return &c, nil
}

// List returns clones for an owner, newest first.
func (s *Store) List(ctx context.Context, ownerID string, limit, offset int32) ([]*Clone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, name, description, system_prompt, status, rag_enabled, created_at, updated_at
		FROM clones WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing clones: %w", err)
	}
	defer rows.Close()

	var clones []*Clone
	for rows.Next() {
		var c Clone
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.SystemPrompt,
			&c.Status, &c.RAGEnabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning clone row: %w", err)
		}
		clones = append(clones, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clone rows: %w", err)
	}
	return clones, nil
}

// UpdateParams are the mutable clone fields.
// nil pointers leave the current value untouched.
type UpdateParams struct {
	Name         *string
	Description  *string
	SystemPrompt *string
}

// Update applies the non-nil fields of p and returns the updated clone.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*Clone, error) {
	var c Clone
	err := s.pool.QueryRow(ctx, `
		UPDATE clones SET
			name          = COALESCE($2, name),
			description   = COALESCE($3, description),
			system_prompt = COALESCE($4, system_prompt),
			updated_at    = now()
		WHERE id = $1
		RETURNING id, owner_id, name, description, system_prompt, status, rag_enabled, created_at, updated_at`,
		id, p.Name, p.Description, p.SystemPrompt,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.SystemPrompt,
		&c.Status, &c.RAGEnabled, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating clone %s: %w", id, err)
	}
	return &c, nil
}

// SetStatus updates the processing status and rag_enabled flag.
// rag_enabled turns on once processing has completed at least once.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string, ragEnabled bool) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE clones SET status = $2, rag_enabled = $3, updated_at = now()
		WHERE id = $1`, id, status, ragEnabled)
	if err != nil {
		return fmt.Errorf("updating clone status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated clone status", "id", id, "status", status, "rag_enabled", ragEnabled)
	return nil
}

// Delete removes a clone. Knowledge entries, sessions, and documents are
// removed by ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting clone %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted clone", "id", id)
	return nil
}
