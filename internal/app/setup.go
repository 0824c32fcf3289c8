package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloneai/cloneai/db"
	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/chat"
	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/config"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/llm"
	"github.com/cloneai/cloneai/internal/observability"
	"github.com/cloneai/cloneai/internal/retry"
	"github.com/cloneai/cloneai/internal/security"
	"github.com/cloneai/cloneai/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing first so every later component's spans are exported.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	llmClient, err := llm.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing llm client: %w", err)
	}
	a.LLM = llmClient

	backendClient, err := provideBackendClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Backend = backendClient

	a.Clones = clone.NewStore(pool, logger)
	a.Knowledge = knowledge.NewStore(pool, logger)
	a.Sessions = session.NewStore(pool, logger)
	a.Documents = document.NewStore(pool, logger)

	fetcher := knowledge.NewLinkFetcher(security.NewHTTP(), logger)
	a.Processor = knowledge.NewProcessor(a.Knowledge, backendClient, llmClient, fetcher, a.Clones, logger)

	agent, err := chat.New(backendClient, llmClient, a.Knowledge, a.Sessions, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}
	a.Agent = agent

	return a, nil
}

// provideOtelShutdown sets up trace export. Must run before any Genkit
// initialization so the TracerProvider has its processor registered.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		logger.Warn("trace export setup failed, continuing without tracing", "error", err)
		return func() {}
	}

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideBackendClient creates the external RAG backend client with the
// configured retry policy.
func provideBackendClient(cfg *config.Config, logger *slog.Logger) (*backend.Client, error) {
	retryCfg := retry.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		retryCfg.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		retryCfg.MaxDelay = cfg.RetryMaxDelay
	}

	client, err := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.BackendAPIKey,
		Timeout: cfg.BackendTimeout,
		Retry:   retryCfg,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	return client, nil
}
