package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/cloneai/cloneai/internal/security"
)

const fetchTimeout = 15 * time.Second

// LinkFetcher downloads a link-type entry's URL and extracts its readable
// text before processing. URLs are user input, so every fetch goes through
// SSRF validation and a redirect-checking client.
type LinkFetcher struct {
	validator *security.HTTP
	client    *http.Client
	logger    *slog.Logger
}

// NewLinkFetcher creates a LinkFetcher.
func NewLinkFetcher(validator *security.HTTP, logger *slog.Logger) *LinkFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkFetcher{
		validator: validator,
		client:    validator.Client(fetchTimeout),
		logger:    logger,
	}
}

// Fetch downloads pageURL and returns its readable text content.
func (f *LinkFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if !security.IsURLSafe(pageURL) {
		return "", fmt.Errorf("unsafe URL: %s", pageURL)
	}
	if err := f.validator.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("validating URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "cloneai-knowledge/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.validator.MaxResponseSize()))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", pageURL, err)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}

	text, err := ExtractReadable(body, parsed)
	if err != nil {
		return "", fmt.Errorf("extracting content from %s: %w", pageURL, err)
	}

	f.logger.Debug("fetched link content", "url", pageURL, "bytes", len(text))
	return text, nil
}

// ExtractReadable extracts article text from an HTML document.
// Readability handles article-shaped pages; for pages it cannot parse into
// an article, fall back to collecting paragraph text with goquery.
func ExtractReadable(html []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	doc, qErr := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if qErr != nil {
		return "", fmt.Errorf("parsing HTML: %w", qErr)
	}

	var sb strings.Builder
	doc.Find("p, h1, h2, h3, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	})

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no readable content found")
	}
	return text, nil
}
