package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const readinessTimeout = 2 * time.Second

// BackendPinger checks external backend reachability.
// *backend.Client satisfies this.
type BackendPinger interface {
	Health(ctx context.Context) error
}

// health is a simple liveness endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports whether the service can serve traffic.
//
// The database is required: a failed pool ping returns 503. The external
// backend is not: when it is down the service still serves fallback
// answers, so backend status only degrades the payload.
func readiness(pool *pgxpool.Pool, backend BackendPinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		body := map[string]any{"status": "ok", "backend": "ok"}
		status := http.StatusOK

		if pool == nil {
			body["status"] = "degraded"
			body["database"] = "not configured"
			status = http.StatusServiceUnavailable
		} else if err := pool.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			stat := pool.Stat()
			body["pool"] = map[string]any{
				"total_conns": stat.TotalConns(),
				"idle_conns":  stat.IdleConns(),
				"max_conns":   stat.MaxConns(),
			}
		}

		if backend == nil {
			body["backend"] = "not configured"
		} else if err := backend.Health(ctx); err != nil {
			body["backend"] = "unreachable"
		}

		writeJSON(w, status, body)
	})
}
