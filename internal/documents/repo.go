package documents

import "context"

// Repo persists documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	// GetByID returns a document scoped to its owner.
	GetByID(ctx context.Context, ownerID, docID string) (Document, error)
	// ListByOwner lists non-deleted documents newest-first.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error)
	// TransitionStatus moves a document from one status to another. The
	// update only applies when the current status matches from; otherwise
	// ErrConflict is returned and the row is untouched.
	TransitionStatus(ctx context.Context, docID, from, to string) error
	// MarkFailed moves a document to FAILED with a failure reason. Only
	// non-terminal documents are eligible.
	MarkFailed(ctx context.Context, docID, reason string) error
	// SetStructuredData replaces the structured facts payload.
	SetStructuredData(ctx context.Context, docID string, data map[string]any) error
	// Delete soft-deletes a document. Chunks and citations are removed.
	Delete(ctx context.Context, ownerID, docID string) error
}

// ChunksRepo persists text chunks and serves vector similarity queries.
type ChunksRepo interface {
	// ReplaceForDocument atomically swaps all chunks for a document.
	ReplaceForDocument(ctx context.Context, docID string, chunks []TextChunk) error
	// NearestNeighbors returns up to limit chunks from the given document
	// set, ordered by descending cosine similarity. Ties break on
	// (document id, ordinal) ascending. Chunks outside docIDs are never
	// returned.
	NearestNeighbors(ctx context.Context, docIDs []string, embedding []float32, limit int) ([]SimilarChunk, error)
}

// CitationsRepo persists extracted citations.
type CitationsRepo interface {
	ReplaceForDocument(ctx context.Context, docID string, citations []Citation) error
	ListForDocument(ctx context.Context, ownerID, docID string) ([]Citation, error)
	ListForOwner(ctx context.Context, ownerID string) ([]Citation, error)
}
