// Package backend implements the REST client for the external RAG backend.
//
// The backend owns the retrieval pipeline (chunking, vector search,
// generation). This client covers the three calls the server makes:
// answering a query against a clone's index, processing a knowledge entry
// into the index, and dropping a clone's index. Transient failures are
// retried with exponential backoff; every error wraps a sentinel category
// from errors.go so handlers can map it to an HTTP status.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloneai/cloneai/internal/retry"
)

const (
	// maxResponseBytes bounds backend response bodies (CWE-400).
	maxResponseBytes = 4 * 1024 * 1024

	// defaultTimeout bounds a single backend request when the config
	// does not override it.
	defaultTimeout = 30 * time.Second
)

// Config configures the backend client.
type Config struct {
	BaseURL string        // Required: backend base URL (BACKEND_URL)
	APIKey  string        // Optional: bearer token
	Timeout time.Duration // Per-request timeout (default: 30s)
	Retry   retry.Config  // Retry policy (zero-value uses retry.DefaultConfig)
	Logger  *slog.Logger
}

// Client is the HTTP client for the RAG backend.
// Safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	retryCfg retry.Config
	logger   *slog.Logger
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	retryCfg.Retryable = Retryable

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		httpc:    &http.Client{Timeout: timeout},
		retryCfg: retryCfg,
		logger:   logger,
	}, nil
}

// QueryRequest is the payload for answering a user query via RAG.
type QueryRequest struct {
	CloneID string `json:"clone_id"`
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
}

// QueryResponse is the backend's answer to a RAG query.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// Query answers a user query against the clone's index.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	err := retry.Do(ctx, c.retryCfg, c.logger, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/api/v1/query", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Answer == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrProcessing)
	}
	return &resp, nil
}

// ProcessRequest is the payload for indexing one knowledge entry.
type ProcessRequest struct {
	CloneID     string `json:"clone_id"`
	KnowledgeID string `json:"knowledge_id"`
	Title       string `json:"title,omitempty"`
	SourceType  string `json:"source_type"`
	Content     string `json:"content"`
}

// ProcessResponse reports what the backend did with a knowledge entry.
type ProcessResponse struct {
	ChunkCount int `json:"chunk_count"`
}

// Process sends one knowledge entry to the backend for chunking and indexing.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (*ProcessResponse, error) {
	var resp ProcessResponse
	err := retry.Do(ctx, c.retryCfg, c.logger, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, "/api/v1/process", req, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteIndex drops every indexed chunk for a clone.
// Called on clone deletion; callers treat failure as non-fatal.
func (c *Client) DeleteIndex(ctx context.Context, cloneID string) error {
	return retry.Do(ctx, c.retryCfg, c.logger, func(ctx context.Context) error {
		return c.do(ctx, http.MethodDelete, "/api/v1/clones/"+cloneID, nil, nil)
	})
}

// Health checks backend reachability. A single attempt, no retries:
// readiness probes must answer fast.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one HTTP round trip, mapping failures onto sentinel categories.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding request: %v", ErrValidation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrValidation, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s: %v", ErrTimeout, method, path, err)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("request canceled: %w", err)
		}
		return fmt.Errorf("%w: %s %s: %v", ErrConnection, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	if catErr := statusError(resp.StatusCode); catErr != nil {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Message != "" {
			return fmt.Errorf("%w: %s (status %d)", catErr, eb.Message, resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", catErr, resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrProcessing, err)
		}
	}
	return nil
}

// isTimeout reports deadline errors surfaced through net.Error.
func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
