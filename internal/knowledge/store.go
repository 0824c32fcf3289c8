package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const (
	// maxListLimit bounds list queries to prevent resource exhaustion.
	maxListLimit = 1000

	// defaultTopK is the similarity search result count when unspecified.
	defaultTopK = 5
)

// Store manages knowledge entries with a PostgreSQL backend.
// Embeddings live in a pgvector column on the same row, so local similarity
// search needs no separate vector store.
//
// Store is safe for concurrent use by multiple goroutines.
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

const entryColumns = `id, clone_id, title, source_type, content, COALESCE(url, ''),
	status, COALESCE(error_message, ''), chunk_count,
	COALESCE(processed_at, 'epoch'::timestamptz), created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CloneID, &e.Title, &e.SourceType, &e.Content, &e.URL,
		&e.Status, &e.ErrorMessage, &e.ChunkCount, &e.ProcessedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateParams are the caller-supplied fields for a new entry.
type CreateParams struct {
	CloneID    uuid.UUID
	Title      string
	SourceType string
	Content    string
	URL        string
}

// Create inserts a new entry in pending status.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Entry, error) {
	if !ValidSourceType(p.SourceType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceType, p.SourceType)
	}

	e, err := scanEntry(s.pool.QueryRow(ctx, `
		INSERT INTO knowledge (clone_id, title, source_type, content, url, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING `+entryColumns,
		p.CloneID, p.Title, p.SourceType, p.Content, p.URL, StatusPending))
	if err != nil {
		return nil, fmt.Errorf("creating knowledge entry: %w", err)
	}

	s.logger.Debug("created knowledge entry",
		"id", e.ID, "clone_id", e.CloneID, "source_type", e.SourceType)
	return e, nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM knowledge WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting knowledge entry %s: %w", id, err)
	}
	return e, nil
}

// ListByClone returns every entry for a clone, oldest first.
func (s *Store) ListByClone(ctx context.Context, cloneID uuid.UUID, limit int32) ([]*Entry, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM knowledge
		WHERE clone_id = $1 ORDER BY created_at ASC LIMIT $2`, cloneID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListByStatus returns a clone's entries in the given status, oldest first.
// Used by the processor to pick up pending work.
func (s *Store) ListByStatus(ctx context.Context, cloneID uuid.UUID, status string, limit int32) ([]*Entry, error) {
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM knowledge
		WHERE clone_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT $3`,
		cloneID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge entries by status: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning knowledge row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge rows: %w", err)
	}
	return entries, nil
}

// MarkProcessing transitions an entry to processing.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, `
		UPDATE knowledge SET status = $2, error_message = NULL, updated_at = now()
		WHERE id = $1`, StatusProcessing)
}

// MarkCompleted transitions an entry to completed, recording the chunk count
// reported by the backend and the local embedding.
// embedding may be nil when local embedding failed; the entry still
// completes, it just cannot serve as fallback context.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, chunkCount int, embedding []float32) error {
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE knowledge SET
			status = $2, chunk_count = $3, embedding = $4,
			error_message = NULL, processed_at = now(), updated_at = now()
		WHERE id = $1`, id, StatusCompleted, chunkCount, vec)
	if err != nil {
		return fmt.Errorf("marking knowledge entry completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed transitions an entry to failed with a user-facing message.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE knowledge SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, id, StatusFailed, message)
	if err != nil {
		return fmt.Errorf("marking knowledge entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetFailed moves every failed entry of a clone back to pending.
// Returns the number of entries reset.
func (s *Store) ResetFailed(ctx context.Context, cloneID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE knowledge SET status = $2, error_message = NULL, updated_at = now()
		WHERE clone_id = $1 AND status = $3`, cloneID, StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("resetting failed entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting knowledge entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns the number of a clone's entries per status.
func (s *Store) CountByStatus(ctx context.Context, cloneID uuid.UUID) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM knowledge WHERE clone_id = $1 GROUP BY status`, cloneID)
	if err != nil {
		return nil, fmt.Errorf("counting knowledge entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return counts, nil
}

// SearchSimilar returns a clone's completed entries most similar to the
// query embedding, ordered by cosine similarity. Used by the fallback query
// path to build inline context.
func (s *Store) SearchSimilar(ctx context.Context, cloneID uuid.UUID, embedding []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`, 1 - (embedding <=> $2) AS similarity
		FROM knowledge
		WHERE clone_id = $1 AND status = $3 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $4`, cloneID, vec, StatusCompleted, topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var e Entry
		var sim float32
		if err := rows.Scan(&e.ID, &e.CloneID, &e.Title, &e.SourceType, &e.Content, &e.URL,
			&e.Status, &e.ErrorMessage, &e.ChunkCount, &e.ProcessedAt,
			&e.CreatedAt, &e.UpdatedAt, &sim); err != nil {
			return nil, fmt.Errorf("scanning similarity row: %w", err)
		}
		results = append(results, Result{Entry: e, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similarity rows: %w", err)
	}
	return results, nil
}

func (s *Store) setStatus(ctx context.Context, id uuid.UUID, query, status string) error {
	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating knowledge status to %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
