package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/knowledge"
	"github.com/cloneai/cloneai/internal/session"
)

// testServerConfig builds a minimal valid ServerConfig. The stores are
// wired with a nil pool: route and probe tests never touch the database.
func testServerConfig() ServerConfig {
	logger := testLogger()
	return ServerConfig{
		Logger:         logger,
		CloneStore:     clone.NewStore(nil, logger),
		KnowledgeStore: knowledge.NewStore(nil, logger),
		SessionStore:   session.NewStore(nil, logger),
		DocumentStore:  document.NewStore(nil, logger),
		IsDev:          true,
	}
}

func TestNewServer_RequiresStores(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"clone store", func(c *ServerConfig) { c.CloneStore = nil }},
		{"knowledge store", func(c *ServerConfig) { c.KnowledgeStore = nil }},
		{"session store", func(c *ServerConfig) { c.SessionStore = nil }},
		{"document store", func(c *ServerConfig) { c.DocumentStore = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			tt.mutate(&cfg)
			if _, err := NewServer(cfg); err == nil {
				t.Errorf("NewServer without %s: got nil error", tt.name)
			}
		})
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv, err := NewServer(testServerConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestServer_ReadinessWithoutDatabase(t *testing.T) {
	srv, err := NewServer(testServerConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with no pool configured", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	if body["backend"] != "not configured" {
		t.Errorf("backend = %v, want not configured", body["backend"])
	}
}

func TestServer_QueryRouteAbsentWithoutAgent(t *testing.T) {
	srv, err := NewServer(testServerConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/v1/clones/3f0f8f80-6dc7-4e4e-96a6-2f7f6f0d8a11/query", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no agent is configured", rec.Code)
	}
}

func TestServer_SecurityHeadersOnAPIRoutes(t *testing.T) {
	srv, err := NewServer(testServerConfig())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clones", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID header missing")
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set in dev mode: %q", got)
	}
}
