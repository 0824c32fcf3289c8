// Package app provides application initialization and dependency wiring.
//
// App is the container that owns every long-lived component: the database
// pool, the LLM client, the stores, the backend client, and the knowledge
// processor. Setup builds it in dependency order; Close releases resources
// in reverse.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/chat"
	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/config"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/llm"
	"github.com/cloneai/cloneai/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	DBPool  *pgxpool.Pool
	LLM     *llm.Client
	Backend *backend.Client

	// Stores
	Clones    *clone.Store
	Knowledge *knowledge.Store
	Sessions  *session.Store
	Documents *document.Store

	// Orchestration
	Processor *knowledge.Processor
	Agent     *chat.Agent

	// Lifecycle
	otelCleanup func()
	dbCleanup   func()
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Ping verifies database connectivity.
func (a *App) Ping(ctx context.Context) error {
	return a.DBPool.Ping(ctx)
}
