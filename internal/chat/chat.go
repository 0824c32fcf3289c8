// Package chat orchestrates how a clone answers a query.
//
// Every query follows the same shape: try the advanced path (the external
// RAG backend, with retry) and, on any failure, fall back to a direct LLM
// completion carrying inline context retrieved from the local knowledge
// store. The answer always records which path served it so callers can tell
// the difference.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/session"
)

const (
	// maxQueryLength bounds user queries.
	maxQueryLength = 8000

	// maxContextChars bounds the inline context handed to the fallback
	// completion. Keeps the prompt within model context limits.
	maxContextChars = 6000

	// contextTopK is how many local entries feed the fallback context.
	contextTopK = 4

	// sessionTitleLength is how much of the first query becomes the
	// session title.
	sessionTitleLength = 80
)

// Sentinel errors for query orchestration.
var (
	// ErrEmptyQuery indicates a blank query.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong indicates the query exceeds maxQueryLength.
	ErrQueryTooLong = errors.New("query too long")

	// ErrAllPathsFailed indicates both the RAG path and the LLM fallback
	// failed. The wrapped error is the fallback failure.
	ErrAllPathsFailed = errors.New("all answer paths failed")
)

// RAGClient is the backend surface the agent needs.
// *backend.Client satisfies this.
type RAGClient interface {
	Query(ctx context.Context, req backend.QueryRequest) (*backend.QueryResponse, error)
}

// Completer is the direct-LLM surface the agent needs.
// *llm.Client satisfies this.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, contextText, query string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextSearcher retrieves local knowledge for fallback context.
// *knowledge.Store satisfies this.
type ContextSearcher interface {
	SearchSimilar(ctx context.Context, cloneID uuid.UUID, embedding []float32, topK int) ([]knowledge.Result, error)
}

// SessionStore is the persistence surface the agent needs.
// *session.Store satisfies this.
type SessionStore interface {
	Create(ctx context.Context, cloneID uuid.UUID, title string) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	AddMessage(ctx context.Context, p session.AddMessageParams) (*session.Message, error)
}

// Answer is the result of one query.
type Answer struct {
	Text       string
	Source     string // session.SourceRAG or session.SourceFallback
	RAGEnabled bool   // whether the RAG path served this answer
	SessionID  uuid.UUID
}

// Agent answers queries against a clone.
//
// Agent is stateless; all configuration is captured at construction and it
// is safe for concurrent use.
type Agent struct {
	rag       RAGClient
	completer Completer
	know      ContextSearcher
	sessions  SessionStore
	logger    *slog.Logger
}

// New creates an Agent.
func New(rag RAGClient, completer Completer, know ContextSearcher, sessions SessionStore, logger *slog.Logger) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		rag:       rag,
		completer: completer,
		know:      know,
		sessions:  sessions,
		logger:    logger,
	}, nil
}

// Answer answers query as clone c.
//
// sessionID may be uuid.Nil, in which case a new session is created titled
// after the query. The user message and the assistant's answer are both
// persisted; persistence failures degrade to log warnings rather than
// failing an otherwise good answer.
func (a *Agent) Answer(ctx context.Context, c *clone.Clone, query string, sessionID uuid.UUID) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if n := utf8.RuneCountInString(query); n > maxQueryLength {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrQueryTooLong, n, maxQueryLength)
	}

	sessionID, err := a.resolveSession(ctx, c.ID, query, sessionID)
	if err != nil {
		return nil, err
	}

	a.record(ctx, session.AddMessageParams{
		SessionID: sessionID,
		Role:      session.RoleUser,
		Content:   query,
	})

	answer := a.answerRAG(ctx, c, query, sessionID)
	if answer == nil {
		answer, err = a.answerFallback(ctx, c, query, sessionID)
		if err != nil {
			return nil, err
		}
	}

	a.record(ctx, session.AddMessageParams{
		SessionID:  sessionID,
		Role:       session.RoleAssistant,
		Content:    answer.Text,
		Source:     answer.Source,
		RAGEnabled: answer.RAGEnabled,
	})

	return answer, nil
}

// answerRAG tries the advanced path. Returns nil when the path is
// unavailable or failed; the caller falls back.
func (a *Agent) answerRAG(ctx context.Context, c *clone.Clone, query string, sessionID uuid.UUID) *Answer {
	if a.rag == nil || !c.RAGEnabled {
		// No index to query yet. Not a failure, just nothing to try.
		return nil
	}

	resp, err := a.rag.Query(ctx, backend.QueryRequest{
		CloneID: c.ID.String(),
		Query:   query,
		TopK:    contextTopK,
	})
	if err != nil {
		a.logger.Warn("RAG path failed, falling back to direct completion",
			"clone_id", c.ID,
			"category", backend.Category(err),
			"error", err)
		return nil
	}

	return &Answer{
		Text:       resp.Answer,
		Source:     session.SourceRAG,
		RAGEnabled: true,
		SessionID:  sessionID,
	}
}

// answerFallback serves the query with a direct completion plus inline
// context from the local knowledge store.
func (a *Agent) answerFallback(ctx context.Context, c *clone.Clone, query string, sessionID uuid.UUID) (*Answer, error) {
	contextText := a.localContext(ctx, c.ID, query)

	text, err := a.completer.Complete(ctx, c.SystemPrompt, contextText, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllPathsFailed, err)
	}

	return &Answer{
		Text:       text,
		Source:     session.SourceFallback,
		RAGEnabled: false,
		SessionID:  sessionID,
	}, nil
}

// localContext builds inline context from locally embedded knowledge.
// Best effort: any failure returns empty context, the completion proceeds
// on the persona alone.
func (a *Agent) localContext(ctx context.Context, cloneID uuid.UUID, query string) string {
	if a.know == nil {
		return ""
	}

	embedding, err := a.completer.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("query embedding failed, answering without context", "error", err)
		return ""
	}

	results, err := a.know.SearchSimilar(ctx, cloneID, embedding, contextTopK)
	if err != nil {
		a.logger.Warn("local context search failed, answering without context", "error", err)
		return ""
	}

	var sb strings.Builder
	for _, r := range results {
		if sb.Len()+len(r.Entry.Content) > maxContextChars {
			break
		}
		sb.WriteString(r.Entry.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// resolveSession returns an existing session's ID or creates a new session.
// A session is only resolvable through its own clone; another clone's
// session ID reads as not found.
func (a *Agent) resolveSession(ctx context.Context, cloneID uuid.UUID, query string, sessionID uuid.UUID) (uuid.UUID, error) {
	if sessionID != uuid.Nil {
		sess, err := a.sessions.Get(ctx, sessionID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving session: %w", err)
		}
		if sess.CloneID != cloneID {
			return uuid.Nil, fmt.Errorf("resolving session: %w", session.ErrNotFound)
		}
		return sess.ID, nil
	}

	title := query
	if r := []rune(title); len(r) > sessionTitleLength {
		title = string(r[:sessionTitleLength])
	}
	sess, err := a.sessions.Create(ctx, cloneID, title)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}
	return sess.ID, nil
}

// record persists a message, logging failures instead of propagating them.
func (a *Agent) record(ctx context.Context, p session.AddMessageParams) {
	if _, err := a.sessions.AddMessage(ctx, p); err != nil {
		a.logger.Warn("persisting message failed",
			"session_id", p.SessionID, "role", p.Role, "error", err)
	}
}
