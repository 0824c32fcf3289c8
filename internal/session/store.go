package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages session and message persistence with a PostgreSQL backend.
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

// Create creates a session for a clone.
func (s *Store) Create(ctx context.Context, cloneID uuid.UUID, title string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (clone_id, title)
		VALUES ($1, $2)
		RETURNING id, clone_id, title, created_at, updated_at`,
		cloneID, title,
	).Scan(&sess.ID, &sess.CloneID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "clone_id", cloneID)
	return &sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.clone_id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s WHERE s.id = $1`, id,
	).Scan(&sess.ID, &sess.CloneID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return &sess, nil
}

// ListByClone returns a clone's sessions, newest first.
func (s *Store) ListByClone(ctx context.Context, cloneID uuid.UUID, limit, offset int32) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.clone_id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s WHERE s.clone_id = $1
		ORDER BY s.updated_at DESC
		LIMIT $2 OFFSET $3`, cloneID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CloneID, &sess.Title,
			&sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and its messages (ON DELETE CASCADE).
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessageParams are the fields for appending a message.
type AddMessageParams struct {
	SessionID  uuid.UUID
	Role       string
	Content    string
	Source     string // only meaningful for assistant messages
	RAGEnabled bool
}

// AddMessage appends a message with the next sequence number.
// The sequence number is assigned inside a transaction so concurrent writes
// to the same session cannot collide.
func (s *Store) AddMessage(ctx context.Context, p AddMessageParams) (*Message, error) {
	if p.Role != RoleUser && p.Role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var msg Message
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, content, source, rag_enabled, sequence_number)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5,
			(SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages WHERE session_id = $1))
		RETURNING id, session_id, role, content, COALESCE(source, ''), rag_enabled, sequence_number, created_at`,
		p.SessionID, p.Role, p.Content, p.Source, p.RAGEnabled,
	).Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Source,
		&msg.RAGEnabled, &msg.SequenceNumber, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, p.SessionID); err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return &msg, nil
}

// Messages returns a session's messages in sequence order.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, COALESCE(source, ''), rag_enabled, sequence_number, created_at
		FROM messages WHERE session_id = $1
		ORDER BY sequence_number ASC
		LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Source,
			&m.RAGEnabled, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}
