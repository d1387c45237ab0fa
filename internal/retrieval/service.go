// Package retrieval ranks stored chunks against a question by embedding
// similarity.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"research-backend/internal/documents"
	"research-backend/internal/embedding"
)

// ErrNoChunks is returned when none of the requested documents have any
// chunks. Distinct from an empty question match, which cannot happen while
// chunks exist: similarity always ranks something.
var ErrNoChunks = errors.New("no chunks for requested documents")

// ScoredChunk is one retrieval hit with its source attribution.
type ScoredChunk struct {
	DocumentID string  `json:"documentId"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Service answers similarity queries over ingested documents.
type Service struct {
	Chunks   documents.ChunksRepo
	Embedder embedding.Gateway
	TopK     int
}

// Retrieve embeds the question once and returns the top k chunks from the
// given document set by descending cosine similarity, ties broken by
// ascending (document id, ordinal). k <= 0 falls back to the configured
// default.
func (s *Service) Retrieve(ctx context.Context, docIDs []string, question string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = s.TopK
	}
	if k <= 0 {
		k = 5
	}

	vectors, err := s.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vectors))
	}

	hits, err := s.Chunks.NearestNeighbors(ctx, docIDs, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrNoChunks
	}

	out := make([]ScoredChunk, len(hits))
	for i, hit := range hits {
		out[i] = ScoredChunk{
			DocumentID: hit.Chunk.DocumentID,
			Filename:   hit.Filename,
			Ordinal:    hit.Chunk.Ordinal,
			Text:       hit.Chunk.Text,
			Score:      hit.Score,
		}
	}
	return out, nil
}
