package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloneai/cloneai/internal/log"
	"github.com/cloneai/cloneai/internal/retry"
)

// fastRetry keeps client tests quick while preserving attempt counts.
func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
		Retry:   fastRetry(),
		Logger:  log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty base URL should fail")
	}
}

func TestClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/query" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"the answer","sources":["doc1"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Answer != "the answer" {
		t.Errorf("Answer = %q, want %q", resp.Answer, "the answer")
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "doc1" {
		t.Errorf("Sources = %v, want [doc1]", resp.Sources)
	}
}

func TestClient_Query_EmptyAnswerIsProcessingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer":""}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if !errors.Is(err, ErrProcessing) {
		t.Errorf("Query() error = %v, want ErrProcessing", err)
	}
}

func TestClient_Query_AuthFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"bad key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Query() error = %v, want ErrAuth", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (auth errors must not retry)", n)
	}
}

func TestClient_Query_NotFoundDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"no such index"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Query() error = %v, want ErrValidation", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (a 404 never recovers on retry)", n)
	}
}

func TestClient_Query_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"recovered"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Answer != "recovered" {
		t.Errorf("Answer = %q, want %q", resp.Answer, "recovered")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestClient_Query_ConnectionRefused(t *testing.T) {
	// Closed server: all attempts fail with a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Query(context.Background(), QueryRequest{CloneID: "c1", Query: "hello"})
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Query() error = %v, want ErrConnection", err)
	}
}

func TestClient_Process(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/process" {
			t.Errorf("path = %q, want /api/v1/process", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"chunk_count":7}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Process(context.Background(), ProcessRequest{
		CloneID:     "c1",
		KnowledgeID: "k1",
		SourceType:  "text",
		Content:     "some content",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if resp.ChunkCount != 7 {
		t.Errorf("ChunkCount = %d, want 7", resp.ChunkCount)
	}
}

func TestClient_Process_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid","message":"content is empty"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Process(context.Background(), ProcessRequest{CloneID: "c1", KnowledgeID: "k1"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Process() error = %v, want ErrValidation", err)
	}
}

func TestClient_DeleteIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/clones/c1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.DeleteIndex(context.Background(), "c1"); err != nil {
		t.Errorf("DeleteIndex() error = %v", err)
	}
}

func TestClient_Health_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.Health(context.Background()); err == nil {
		t.Error("Health() should fail on 503")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (health checks must not retry)", n)
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(Config{
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Retry:   retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger:  log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Health(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Errorf("Health() error = %v, want ErrTimeout", err)
	}
}
