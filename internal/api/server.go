// Package api implements the HTTP JSON API: clone and knowledge CRUD,
// query answering, sessions, documents, and the health probes. Handlers
// depend on small consumer-side interfaces so tests can swap in fakes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/chat"
	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger         *slog.Logger
	CloneStore     *clone.Store       // Required
	KnowledgeStore *knowledge.Store   // Required
	SessionStore   *session.Store     // Required
	DocumentStore  *document.Store    // Required
	Processor      *knowledge.Processor
	Agent          *chat.Agent
	Backend        *backend.Client // Optional: nil disables index drops and backend readiness
	Pool           *pgxpool.Pool   // Optional: nil disables pool stats in /ready
	CORSOrigins    []string        // Allowed origins for CORS
	IsDev          bool            // Disables HSTS
	TrustProxy     bool            // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst      int             // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.CloneStore == nil {
		return nil, errors.New("clone store is required")
	}
	if cfg.KnowledgeStore == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.SessionStore == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.DocumentStore == nil {
		return nil, errors.New("document store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// A nil *backend.Client must become a nil interface, not a typed nil.
	var dropper IndexDropper
	var pinger BackendPinger
	if cfg.Backend != nil {
		dropper = cfg.Backend
		pinger = cfg.Backend
	}

	ch := &cloneHandler{store: cfg.CloneStore, backend: dropper, logger: logger}
	kh := &knowledgeHandler{store: cfg.KnowledgeStore, processor: cfg.Processor, clones: cfg.CloneStore, logger: logger}
	sh := &sessionHandler{store: cfg.SessionStore, logger: logger}
	dh := &documentHandler{store: cfg.DocumentStore, clones: cfg.CloneStore, logger: logger}

	mux := http.NewServeMux()

	// Clone CRUD
	mux.HandleFunc("POST /api/v1/clones", ch.create)
	mux.HandleFunc("GET /api/v1/clones", ch.list)
	mux.HandleFunc("GET /api/v1/clones/{id}", ch.get)
	mux.HandleFunc("PATCH /api/v1/clones/{id}", ch.update)
	mux.HandleFunc("DELETE /api/v1/clones/{id}", ch.delete)

	// Knowledge
	mux.HandleFunc("POST /api/v1/clones/{id}/knowledge", kh.create)
	mux.HandleFunc("GET /api/v1/clones/{id}/knowledge", kh.list)
	mux.HandleFunc("GET /api/v1/knowledge/{id}", kh.get)
	mux.HandleFunc("DELETE /api/v1/knowledge/{id}", kh.delete)
	if cfg.Processor != nil {
		mux.HandleFunc("POST /api/v1/clones/{id}/process-knowledge", kh.process)
		mux.HandleFunc("POST /api/v1/clones/{id}/retry-processing", kh.retry)
	}

	// Query (only registered when an agent is configured)
	if cfg.Agent != nil {
		qh := &queryHandler{agent: cfg.Agent, clones: cfg.CloneStore, logger: logger}
		mux.HandleFunc("POST /api/v1/clones/{id}/query", qh.query)
	}

	// Sessions
	mux.HandleFunc("POST /api/v1/clones/{id}/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/clones/{id}/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sh.messages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)

	// Documents
	mux.HandleFunc("POST /api/v1/clones/{id}/documents", dh.create)
	mux.HandleFunc("GET /api/v1/clones/{id}/documents", dh.list)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.delete)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, pinger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
