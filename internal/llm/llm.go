// Package llm wraps Genkit for the fallback completion path.
//
// When the RAG backend is unavailable, queries are answered by a direct
// model call with inline context retrieved from the local knowledge store.
// The same provider also supplies the embedder used to vectorize knowledge
// entries at processing time.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/cloneai/cloneai/internal/config"
)

// ErrEmptyResponse indicates the model produced no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Client issues direct completions and embeddings via Genkit.
// Safe for concurrent use; all fields are captured at construction.
type Client struct {
	g        *genkit.Genkit
	model    string // provider-qualified, e.g. "openai/gpt-4o-mini"
	embedder ai.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New initializes Genkit with the configured provider and returns a Client.
//
// Providers register their own models and embedders:
//   - openai: auto-registered in Init(), looked up by model name
//   - googleai: embedder created via GoogleAIEmbedder
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var g *genkit.Genkit
	var embedder ai.Embedder

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)

	default: // openai
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	}

	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}

	logger.Info("initialized LLM provider",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel)

	return &Client{
		g:        g,
		model:    cfg.Provider + "/" + cfg.ModelName,
		embedder: embedder,
		// 10 req/s sustained, burst of 30, below typical provider limits.
		limiter: rate.NewLimiter(10, 30),
		logger:  logger,
	}, nil
}

// Complete generates a single completion.
// systemPrompt is the clone persona; contextText, when non-empty, is
// prepended to the user query as inline knowledge.
func (c *Client) Complete(ctx context.Context, systemPrompt, contextText, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	prompt := query
	if contextText != "" {
		prompt = fmt.Sprintf("Use the following context to answer.\n\nContext:\n%s\n\nQuestion: %s",
			contextText, query)
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
