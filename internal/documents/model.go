// Package documents stores uploaded and imported source documents together
// with their chunked embeddings and extracted citations.
package documents

import "time"

// Document statuses. Transitions are forward-only:
// PENDING -> PROCESSING -> COMPLETED | FAILED.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Failure reasons recorded when ingestion fails.
const (
	ReasonExtractionFailed = "extraction_failed"
	ReasonEmbeddingFailed  = "embedding_failed"
	ReasonStorageFailed    = "storage_failed"
	ReasonInternalError    = "internal_error"
)

// Document is a source document owned by a user. Imported marks documents
// pulled in by a literature review rather than uploaded directly.
type Document struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	Filename       string         `json:"filename"`
	Status         string         `json:"status"`
	FailureReason  string         `json:"failureReason,omitempty"`
	StructuredData map[string]any `json:"structuredData,omitempty"`
	Imported       bool           `json:"imported"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TextChunk is one contiguous piece of a document's extracted text. Ordinal
// is the chunk's zero-based position in the original document.
type TextChunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Embedding  []float32
}

// SimilarChunk is a chunk returned from a nearest-neighbor search, joined
// with the owning document's filename for attribution.
type SimilarChunk struct {
	Chunk    TextChunk
	Filename string
	Score    float64
}

// Citation is one bibliography entry extracted from a document's references
// section.
type Citation struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	Authors    string    `json:"authors,omitempty"`
	Year       int       `json:"year,omitempty"`
	RawText    string    `json:"rawText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
