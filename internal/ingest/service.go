// Package ingest turns raw document bytes into chunks, embeddings,
// structured facts and citations.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"research-backend/internal/chunker"
	"research-backend/internal/documents"
	"research-backend/internal/embedding"
	"research-backend/internal/llm"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/telemetry"
)

// ErrAlreadyProcessing is returned when an ingestion is already running for
// the document.
var ErrAlreadyProcessing = errors.New("document is already processing")

// Service runs the ingestion pipeline for one document at a time per
// document id.
type Service struct {
	Docs      documents.Repo
	Chunks    documents.ChunksRepo
	Citations documents.CitationsRepo
	Embedder  embedding.Gateway
	LLM       llm.Client
	Splitter  chunker.Splitter
	Extract   func(data []byte, filename string) (string, error)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Ingest runs the full pipeline: extract text, chunk, embed, persist chunks,
// extract structured facts (failure tolerated), extract citations (zero is
// fine), then mark COMPLETED. Any step failure marks the document FAILED
// with a machine-readable reason. Re-ingesting a terminal document starts
// fresh and overwrites previous chunks and citations.
func (s *Service) Ingest(ctx context.Context, docID string, raw []byte, filename string) (err error) {
	if !s.acquire(docID) {
		return ErrAlreadyProcessing
	}
	defer s.release(docID)

	if err := s.beginProcessing(ctx, docID); err != nil {
		return err
	}

	metrics.IncIngestStarted()
	started := time.Now()
	s.logTransition(docID, documents.StatusProcessing, "")

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ingest panic: %v", rec)
			s.fail(ctx, docID, documents.ReasonInternalError, err)
		}
		metrics.ObserveIngestDurationMs(float64(time.Since(started).Milliseconds()))
	}()

	text, err := s.Extract(raw, filename)
	if err != nil {
		return s.fail(ctx, docID, documents.ReasonExtractionFailed, err)
	}

	pieces := s.Splitter.Split(text)
	if len(pieces) == 0 {
		return s.fail(ctx, docID, documents.ReasonExtractionFailed, errors.New("no text extracted"))
	}

	vectors, err := s.Embedder.Embed(ctx, pieces)
	if err != nil {
		return s.fail(ctx, docID, documents.ReasonEmbeddingFailed, err)
	}
	if len(vectors) != len(pieces) {
		return s.fail(ctx, docID, documents.ReasonEmbeddingFailed,
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces)))
	}

	chunks := make([]documents.TextChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = documents.TextChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Ordinal:    i,
			Text:       piece,
			Embedding:  vectors[i],
		}
	}
	if err := s.Chunks.ReplaceForDocument(ctx, docID, chunks); err != nil {
		return s.fail(ctx, docID, documents.ReasonStorageFailed, err)
	}

	// Structured facts are best-effort: a failed LLM call or unparseable
	// response is recorded, not fatal.
	facts := s.extractStructured(ctx, text)
	if err := s.Docs.SetStructuredData(ctx, docID, facts); err != nil {
		telemetry.Warn("ingest.structured_data_store_failed", map[string]any{
			"document_id": docID,
			"error":       err.Error(),
		})
	}

	citations := s.extractCitations(ctx, docID, text)
	if err := s.Citations.ReplaceForDocument(ctx, docID, citations); err != nil {
		telemetry.Warn("ingest.citations_store_failed", map[string]any{
			"document_id": docID,
			"error":       err.Error(),
		})
	}

	if err := s.Docs.TransitionStatus(ctx, docID, documents.StatusProcessing, documents.StatusCompleted); err != nil {
		return s.fail(ctx, docID, documents.ReasonStorageFailed, err)
	}

	metrics.IncIngestCompleted()
	s.logTransition(docID, documents.StatusCompleted, "")
	telemetry.Info("ingest.completed", map[string]any{
		"document_id": docID,
		"chunks":      len(chunks),
		"citations":   len(citations),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// beginProcessing moves the document into PROCESSING. PENDING documents and
// terminal documents (re-ingest) are eligible; a document already PROCESSING
// is rejected.
func (s *Service) beginProcessing(ctx context.Context, docID string) error {
	for _, from := range []string{documents.StatusPending, documents.StatusFailed, documents.StatusCompleted} {
		err := s.Docs.TransitionStatus(ctx, docID, from, documents.StatusProcessing)
		if err == nil {
			return nil
		}
		if errors.Is(err, documents.ErrConflict) {
			continue
		}
		return err
	}
	return ErrAlreadyProcessing
}

func (s *Service) fail(ctx context.Context, docID, reason string, cause error) error {
	metrics.IncIngestFailed()
	if err := s.Docs.MarkFailed(ctx, docID, reason); err != nil {
		telemetry.Error("ingest.mark_failed_error", map[string]any{
			"document_id": docID,
			"error":       err.Error(),
		})
	}
	s.logTransition(docID, documents.StatusFailed, reason)
	telemetry.Error("ingest.failed", map[string]any{
		"document_id": docID,
		"reason":      reason,
		"error":       cause.Error(),
	})
	return fmt.Errorf("ingest %s: %w", reason, cause)
}

func (s *Service) logTransition(docID, status, reason string) {
	fields := map[string]any{
		"document_id": docID,
		"status":      status,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	telemetry.Info("document.status_transition", fields)
}

func (s *Service) acquire(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = make(map[string]struct{})
	}
	if _, busy := s.inflight[docID]; busy {
		return false
	}
	s.inflight[docID] = struct{}{}
	return true
}

func (s *Service) release(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, docID)
}
