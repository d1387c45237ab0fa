package documents

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{docs: make(map[string]Document)}
}

func (r *MemoryRepo) Create(_ context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, ownerID, docID string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	if !ok || doc.OwnerID != ownerID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []Document
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			all = append(all, doc)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *MemoryRepo) TransitionStatus(_ context.Context, docID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return ErrNotFound
	}
	if doc.Status != from {
		return ErrConflict
	}
	doc.Status = to
	doc.FailureReason = ""
	doc.UpdatedAt = time.Now().UTC()
	r.docs[docID] = doc
	return nil
}

func (r *MemoryRepo) MarkFailed(_ context.Context, docID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(doc.Status) {
		return ErrConflict
	}
	doc.Status = StatusFailed
	doc.FailureReason = reason
	doc.UpdatedAt = time.Now().UTC()
	r.docs[docID] = doc
	return nil
}

func (r *MemoryRepo) SetStructuredData(_ context.Context, docID string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return ErrNotFound
	}
	doc.StructuredData = data
	doc.UpdatedAt = time.Now().UTC()
	r.docs[docID] = doc
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, ownerID, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok || doc.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.docs, docID)
	return nil
}

// snapshot returns a copy of a document regardless of owner. Used by the
// memory chunk store to resolve status and filename.
func (r *MemoryRepo) snapshot(docID string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docID]
	return doc, ok
}

var _ Repo = (*MemoryRepo)(nil)

// MemoryChunksRepo is an in-memory ChunksRepo with brute-force cosine
// similarity search. Docs resolves chunk ownership and status.
type MemoryChunksRepo struct {
	Docs *MemoryRepo

	mu     sync.RWMutex
	chunks map[string][]TextChunk
}

// NewMemoryChunksRepo constructs an empty MemoryChunksRepo backed by docs.
func NewMemoryChunksRepo(docs *MemoryRepo) *MemoryChunksRepo {
	return &MemoryChunksRepo{Docs: docs, chunks: make(map[string][]TextChunk)}
}

func (r *MemoryChunksRepo) ReplaceForDocument(_ context.Context, docID string, chunks []TextChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[docID] = append([]TextChunk(nil), chunks...)
	return nil
}

func (r *MemoryChunksRepo) NearestNeighbors(_ context.Context, docIDs []string, embedding []float32, limit int) ([]SimilarChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	wanted := make(map[string]struct{}, len(docIDs))
	for _, id := range docIDs {
		wanted[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []SimilarChunk
	for docID, chunks := range r.chunks {
		if _, ok := wanted[docID]; !ok {
			continue
		}
		doc, ok := r.Docs.snapshot(docID)
		if !ok {
			continue
		}
		for _, chunk := range chunks {
			candidates = append(candidates, SimilarChunk{
				Chunk:    chunk,
				Filename: doc.Filename,
				Score:    cosineSimilarity(embedding, chunk.Embedding),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Chunk.DocumentID != candidates[j].Chunk.DocumentID {
			return candidates[i].Chunk.DocumentID < candidates[j].Chunk.DocumentID
		}
		return candidates[i].Chunk.Ordinal < candidates[j].Chunk.Ordinal
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ ChunksRepo = (*MemoryChunksRepo)(nil)

// MemoryCitationsRepo is an in-memory CitationsRepo.
type MemoryCitationsRepo struct {
	Docs *MemoryRepo

	mu        sync.RWMutex
	citations map[string][]Citation
}

// NewMemoryCitationsRepo constructs an empty MemoryCitationsRepo.
func NewMemoryCitationsRepo(docs *MemoryRepo) *MemoryCitationsRepo {
	return &MemoryCitationsRepo{Docs: docs, citations: make(map[string][]Citation)}
}

func (r *MemoryCitationsRepo) ReplaceForDocument(_ context.Context, docID string, citations []Citation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.citations[docID] = append([]Citation(nil), citations...)
	return nil
}

func (r *MemoryCitationsRepo) ListForDocument(_ context.Context, ownerID, docID string) ([]Citation, error) {
	doc, ok := r.Docs.snapshot(docID)
	if !ok || doc.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Citation(nil), r.citations[docID]...), nil
}

func (r *MemoryCitationsRepo) ListForOwner(_ context.Context, ownerID string) ([]Citation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Citation
	for docID, citations := range r.citations {
		doc, ok := r.Docs.snapshot(docID)
		if !ok || doc.OwnerID != ownerID {
			continue
		}
		out = append(out, citations...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ CitationsRepo = (*MemoryCitationsRepo)(nil)
