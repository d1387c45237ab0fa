package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"research-backend/internal/documents"
)

// termEmbedder maps text onto a fixed vocabulary axis so similarity follows
// term overlap, which makes ranking assertions readable.
type termEmbedder struct {
	vocab []string
}

func (e *termEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocab))
		lower := strings.ToLower(text)
		for j, term := range e.vocab {
			if strings.Contains(lower, term) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *termEmbedder) Dimension() int { return len(e.vocab) }

func newRetrievalFixture(t *testing.T) (*Service, *documents.MemoryChunksRepo, *documents.MemoryRepo) {
	t.Helper()
	docs := documents.NewMemoryRepo()
	chunks := documents.NewMemoryChunksRepo(docs)
	embedder := &termEmbedder{vocab: []string{"transformer", "attention", "convolution", "pooling"}}
	svc := &Service{Chunks: chunks, Embedder: embedder, TopK: 5}
	return svc, chunks, docs
}

func seedChunks(t *testing.T, docs *documents.MemoryRepo, chunks *documents.MemoryChunksRepo, docID, filename string, texts []string) {
	t.Helper()
	ctx := context.Background()
	err := docs.Create(ctx, documents.Document{
		ID: docID, OwnerID: "user-1", Filename: filename,
		Status: documents.StatusCompleted, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	embedder := &termEmbedder{vocab: []string{"transformer", "attention", "convolution", "pooling"}}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	records := make([]documents.TextChunk, len(texts))
	for i, text := range texts {
		records[i] = documents.TextChunk{
			ID:         docID + "-" + string(rune('a'+i)),
			DocumentID: docID,
			Ordinal:    i,
			Text:       text,
			Embedding:  vectors[i],
		}
	}
	if err := chunks.ReplaceForDocument(ctx, docID, records); err != nil {
		t.Fatalf("ReplaceForDocument: %v", err)
	}
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	svc, chunks, docs := newRetrievalFixture(t)
	seedChunks(t, docs, chunks, "doc-1", "attention.pdf", []string{
		"the transformer uses attention throughout",
		"convolution layers with pooling",
		"attention weights visualized",
	})

	hits, err := svc.Retrieve(context.Background(), []string{"doc-1"}, "how does attention work in a transformer", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Ordinal != 0 {
		t.Fatalf("expected transformer+attention chunk first, got ordinal %d", hits[0].Ordinal)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatal("results not in descending score order")
	}
	if hits[0].Filename != "attention.pdf" {
		t.Fatalf("filename attribution missing: %q", hits[0].Filename)
	}
}

func TestRetrieveNoChunks(t *testing.T) {
	svc, _, docs := newRetrievalFixture(t)
	err := docs.Create(context.Background(), documents.Document{
		ID: "doc-1", OwnerID: "user-1", Filename: "empty.pdf",
		Status: documents.StatusCompleted, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Retrieve(context.Background(), []string{"doc-1"}, "anything about attention", 3)
	if !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}

func TestRetrieveStaysInsideDocumentSet(t *testing.T) {
	svc, chunks, docs := newRetrievalFixture(t)
	seedChunks(t, docs, chunks, "doc-1", "a.pdf", []string{"attention here"})
	seedChunks(t, docs, chunks, "doc-2", "b.pdf", []string{"attention there"})

	hits, err := svc.Retrieve(context.Background(), []string{"doc-2"}, "attention", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, hit := range hits {
		if hit.DocumentID != "doc-2" {
			t.Fatalf("hit outside requested set: %+v", hit)
		}
	}
}

func TestRetrieveDefaultTopK(t *testing.T) {
	svc, chunks, docs := newRetrievalFixture(t)
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "attention passage"
	}
	seedChunks(t, docs, chunks, "doc-1", "a.pdf", texts)

	hits, err := svc.Retrieve(context.Background(), []string{"doc-1"}, "attention", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected configured default of 5, got %d", len(hits))
	}
	// Equal scores: deterministic tie-break on ordinal.
	for i, hit := range hits {
		if hit.Ordinal != i {
			t.Fatalf("tie-break order wrong at %d: ordinal %d", i, hit.Ordinal)
		}
	}
}
