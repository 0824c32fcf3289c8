// Package session provides persistence for clone conversation sessions.
//
// A session belongs to a clone and holds an ordered message history. Every
// assistant message records which path produced it (RAG backend or LLM
// fallback) so conversations remain auditable after the fact.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Answer sources recorded on assistant messages.
const (
	// SourceRAG marks answers served by the external RAG backend.
	SourceRAG = "rag"

	// SourceFallback marks answers served by the direct LLM path.
	SourceFallback = "llm_fallback"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidRole indicates an unknown message role.
	ErrInvalidRole = errors.New("invalid message role")
)

// Session represents a conversation session (application-level type).
type Session struct {
	ID           uuid.UUID
	CloneID      uuid.UUID
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message represents a single conversation message.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string // "user" | "assistant"
	Content        string
	Source         string // "rag" | "llm_fallback" | "" for user messages
	RAGEnabled     bool
	SequenceNumber int
	CreatedAt      time.Time
}
