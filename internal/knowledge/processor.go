package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/backend"
	"github.com/cloneai/cloneai/internal/clone"
)

// processBatchLimit bounds how many entries one processing request handles.
const processBatchLimit = 500

// EntryStore is the store surface the processor needs.
// Interfaces are defined by the consumer; *Store satisfies this.
type EntryStore interface {
	ListByStatus(ctx context.Context, cloneID uuid.UUID, status string, limit int32) ([]*Entry, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, chunkCount int, embedding []float32) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	ResetFailed(ctx context.Context, cloneID uuid.UUID) (int, error)
	CountByStatus(ctx context.Context, cloneID uuid.UUID) (map[string]int, error)
}

// Indexer sends entries to the external RAG backend.
// *backend.Client satisfies this.
type Indexer interface {
	Process(ctx context.Context, req backend.ProcessRequest) (*backend.ProcessResponse, error)
}

// Embedder produces local embeddings for fallback retrieval.
// *llm.Client satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CloneStatusSetter updates the owning clone's lifecycle status.
// *clone.Store satisfies this.
type CloneStatusSetter interface {
	SetStatus(ctx context.Context, id uuid.UUID, status string, ragEnabled bool) error
}

// Fetcher resolves link-type entries to text. *LinkFetcher satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Processor drives the knowledge-processing pipeline for a clone:
// every pending entry is sent to the RAG backend (with retry handled by the
// backend client) and embedded locally, and its status row is updated as the
// pipeline advances. Entries are processed sequentially; a failure marks
// that entry failed and moves on rather than aborting the batch.
type Processor struct {
	entries EntryStore
	indexer Indexer

	// Optional. nil embedder skips local embeddings (fallback context
	// degrades to none); nil fetcher fails link entries.
	embedder Embedder
	fetcher  Fetcher

	clones CloneStatusSetter
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(entries EntryStore, indexer Indexer, embedder Embedder, fetcher Fetcher, clones CloneStatusSetter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		entries:  entries,
		indexer:  indexer,
		embedder: embedder,
		fetcher:  fetcher,
		clones:   clones,
		logger:   logger,
	}
}

// Report summarizes one processing run.
type Report struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ProcessPending processes every pending entry of a clone.
//
// The clone transitions to "processing" for the duration of the run, then to
// "ready" (all entries succeeded) or "error" (at least one failure).
// rag_enabled turns on as soon as the clone has any completed entry.
func (p *Processor) ProcessPending(ctx context.Context, cloneID uuid.UUID) (*Report, error) {
	pending, err := p.entries.ListByStatus(ctx, cloneID, StatusPending, processBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}

	report := &Report{Total: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	if err := p.clones.SetStatus(ctx, cloneID, clone.StatusProcessing, false); err != nil {
		return nil, fmt.Errorf("marking clone processing: %w", err)
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			// Leave the remaining entries pending; the run can be resumed.
			p.logger.Warn("processing interrupted",
				"clone_id", cloneID, "remaining", report.Total-report.Processed-report.Failed)
			break
		}

		if err := p.processOne(ctx, entry); err != nil {
			report.Failed++
			p.logger.Warn("knowledge entry failed",
				"entry_id", entry.ID, "clone_id", cloneID, "error", err)
			if markErr := p.entries.MarkFailed(ctx, entry.ID, userMessage(err)); markErr != nil {
				p.logger.Error("recording entry failure", "entry_id", entry.ID, "error", markErr)
			}
			continue
		}
		report.Processed++
	}

	if err := p.finishRun(ctx, cloneID); err != nil {
		return report, err
	}

	p.logger.Info("knowledge processing finished",
		"clone_id", cloneID,
		"total", report.Total,
		"processed", report.Processed,
		"failed", report.Failed)
	return report, nil
}

// RetryFailed resets a clone's failed entries to pending and reprocesses
// them. Returns the run report; Total counts the entries that were retried.
func (p *Processor) RetryFailed(ctx context.Context, cloneID uuid.UUID) (*Report, error) {
	reset, err := p.entries.ResetFailed(ctx, cloneID)
	if err != nil {
		return nil, fmt.Errorf("resetting failed entries: %w", err)
	}
	if reset == 0 {
		return &Report{}, nil
	}

	p.logger.Info("retrying failed knowledge entries", "clone_id", cloneID, "count", reset)
	return p.ProcessPending(ctx, cloneID)
}

// processOne runs one entry through the pipeline:
// mark processing → resolve content → backend index → local embed → complete.
func (p *Processor) processOne(ctx context.Context, entry *Entry) error {
	if err := p.entries.MarkProcessing(ctx, entry.ID); err != nil {
		return fmt.Errorf("marking entry processing: %w", err)
	}

	content := entry.Content
	if entry.SourceType == SourceTypeLink {
		if p.fetcher == nil {
			return fmt.Errorf("link entries are not supported: no fetcher configured")
		}
		fetched, err := p.fetcher.Fetch(ctx, entry.URL)
		if err != nil {
			return fmt.Errorf("fetching link content: %w", err)
		}
		content = fetched
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	resp, err := p.indexer.Process(ctx, backend.ProcessRequest{
		CloneID:     entry.CloneID.String(),
		KnowledgeID: entry.ID.String(),
		Title:       entry.Title,
		SourceType:  entry.SourceType,
		Content:     content,
	})
	if err != nil {
		return fmt.Errorf("backend processing: %w", err)
	}

	// Local embedding enables fallback retrieval when the backend is down.
	// Failure here is non-fatal: the entry is indexed remotely either way.
	var embedding []float32
	if p.embedder != nil {
		embedding, err = p.embedder.Embed(ctx, content)
		switch {
		case err != nil:
			p.logger.Warn("local embedding failed, entry completes without fallback context",
				"entry_id", entry.ID, "error", err)
			embedding = nil
		case len(embedding) != VectorDimension:
			// A wrong-size vector would be rejected by the embedding column
			// and turn a successfully indexed entry into a failure.
			p.logger.Warn("embedding dimension mismatch, entry completes without fallback context",
				"entry_id", entry.ID, "dimension", len(embedding), "want", VectorDimension)
			embedding = nil
		}
	}

	if err := p.entries.MarkCompleted(ctx, entry.ID, resp.ChunkCount, embedding); err != nil {
		return fmt.Errorf("marking entry completed: %w", err)
	}
	return nil
}

// finishRun recomputes the clone status from entry counts.
func (p *Processor) finishRun(ctx context.Context, cloneID uuid.UUID) error {
	counts, err := p.entries.CountByStatus(ctx, cloneID)
	if err != nil {
		return fmt.Errorf("counting entries after run: %w", err)
	}

	status := clone.StatusReady
	if counts[StatusFailed] > 0 {
		status = clone.StatusError
	}
	ragEnabled := counts[StatusCompleted] > 0

	if err := p.clones.SetStatus(ctx, cloneID, status, ragEnabled); err != nil {
		return fmt.Errorf("updating clone status after run: %w", err)
	}
	return nil
}

// userMessage converts a pipeline error into the user-facing error_message
// stored on the entry. The backend category name leads so the UI can group
// failures.
func userMessage(err error) string {
	if cat := backend.Category(err); cat != backend.CategoryUnknown {
		return fmt.Sprintf("%s: %s", cat, err.Error())
	}
	return err.Error()
}
