package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"research-backend/internal/chunker"
	"research-backend/internal/documents"
	"research-backend/internal/extract"
	"research-backend/internal/llm"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }

type stubLLM struct {
	completeFn func(prompt string) (string, error)
}

func (s *stubLLM) Complete(_ context.Context, prompt string) (string, error) {
	if s.completeFn != nil {
		return s.completeFn(prompt)
	}
	return defaultStubResponse(prompt), nil
}

func (s *stubLLM) Stream(context.Context, string) (<-chan llm.Fragment, error) {
	return nil, errors.New("not implemented")
}

func defaultStubResponse(prompt string) string {
	if strings.Contains(prompt, "structured facts") {
		return `{"methodology": "survey", "dataset": "none", "key_findings": "things"}`
	}
	if strings.Contains(prompt, "references section") {
		return `[{"title": "First Paper", "authors": "Smith, J.", "year": 2020, "raw": "Smith, J. (2020). First Paper."},
			{"title": "Second Paper", "authors": "Jones, A.", "year": 2021, "raw": "Jones, A. (2021). Second Paper."}]`
	}
	return "{}"
}

type fixture struct {
	docs      *documents.MemoryRepo
	chunks    *documents.MemoryChunksRepo
	citations *documents.MemoryCitationsRepo
	svc       *Service
}

func newFixture(t *testing.T, embedder *stubEmbedder, model *stubLLM) *fixture {
	t.Helper()
	docs := documents.NewMemoryRepo()
	chunks := documents.NewMemoryChunksRepo(docs)
	citations := documents.NewMemoryCitationsRepo(docs)
	return &fixture{
		docs:      docs,
		chunks:    chunks,
		citations: citations,
		svc: &Service{
			Docs:      docs,
			Chunks:    chunks,
			Citations: citations,
			Embedder:  embedder,
			LLM:       model,
			Splitter:  chunker.New(200, 30),
			Extract:   extract.Text,
		},
	}
}

func seedPending(t *testing.T, f *fixture, docID string) {
	t.Helper()
	err := f.docs.Create(context.Background(), documents.Document{
		ID:        docID,
		OwnerID:   "user-1",
		Filename:  "paper.txt",
		Status:    documents.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func paperText() []byte {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Section %d discusses the method in depth. It compares against baselines.\n\n", i)
	}
	b.WriteString("References\n")
	b.WriteString("Smith, J. (2020). First Paper.\n")
	b.WriteString("Jones, A. (2021). Second Paper.\n")
	return []byte(b.String())
}

func TestIngestHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEmbedder{}, &stubLLM{})
	seedPending(t, f, "doc-1")

	if err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	doc, err := f.docs.GetByID(ctx, "user-1", "doc-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Status != documents.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", doc.Status, doc.FailureReason)
	}
	if doc.StructuredData["methodology"] != "survey" {
		t.Fatalf("structured data missing: %v", doc.StructuredData)
	}

	hits, err := f.chunks.NearestNeighbors(ctx, []string{"doc-1"}, []float32{1, 1, 0}, 100)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no chunks persisted")
	}
	for i, hit := range hits {
		if hit.Chunk.DocumentID != "doc-1" {
			t.Fatalf("hit %d has wrong document", i)
		}
	}

	cits, err := f.citations.ListForDocument(ctx, "user-1", "doc-1")
	if err != nil {
		t.Fatalf("ListForDocument: %v", err)
	}
	if len(cits) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(cits))
	}
	if cits[0].Title != "First Paper" || cits[0].Year != 2020 {
		t.Fatalf("citation mismatch: %+v", cits[0])
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEmbedder{}, &stubLLM{})
	seedPending(t, f, "doc-1")

	err := f.svc.Ingest(ctx, "doc-1", []byte{0xff, 0xfe, 0x01}, "blob.bin")
	if err == nil {
		t.Fatal("expected error")
	}

	doc, _ := f.docs.GetByID(ctx, "user-1", "doc-1")
	if doc.Status != documents.StatusFailed || doc.FailureReason != documents.ReasonExtractionFailed {
		t.Fatalf("expected FAILED/extraction_failed, got %s/%s", doc.Status, doc.FailureReason)
	}
}

func TestIngestEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEmbedder{err: errors.New("backend down")}, &stubLLM{})
	seedPending(t, f, "doc-1")

	if err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt"); err == nil {
		t.Fatal("expected error")
	}

	doc, _ := f.docs.GetByID(ctx, "user-1", "doc-1")
	if doc.Status != documents.StatusFailed || doc.FailureReason != documents.ReasonEmbeddingFailed {
		t.Fatalf("expected FAILED/embedding_failed, got %s/%s", doc.Status, doc.FailureReason)
	}
}

func TestIngestStructuredFactFailureTolerated(t *testing.T) {
	ctx := context.Background()
	model := &stubLLM{completeFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "structured facts") {
			return "sorry, I cannot do that", nil
		}
		return defaultStubResponse(prompt), nil
	}}
	f := newFixture(t, &stubEmbedder{}, model)
	seedPending(t, f, "doc-1")

	if err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	doc, _ := f.docs.GetByID(ctx, "user-1", "doc-1")
	if doc.Status != documents.StatusCompleted {
		t.Fatalf("expected COMPLETED despite structured-fact failure, got %s", doc.Status)
	}
	if _, ok := doc.StructuredData["error"]; !ok {
		t.Fatalf("expected error payload in structured data, got %v", doc.StructuredData)
	}
}

func TestIngestCitationLLMFallback(t *testing.T) {
	ctx := context.Background()
	model := &stubLLM{completeFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "references section") {
			return "", errors.New("model unavailable")
		}
		return defaultStubResponse(prompt), nil
	}}
	f := newFixture(t, &stubEmbedder{}, model)
	seedPending(t, f, "doc-1")

	if err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Heuristic fallback parses the two reference lines.
	cits, err := f.citations.ListForDocument(ctx, "user-1", "doc-1")
	if err != nil {
		t.Fatalf("ListForDocument: %v", err)
	}
	if len(cits) != 2 {
		t.Fatalf("expected 2 heuristic citations, got %d", len(cits))
	}
	if cits[0].Year != 2020 || cits[1].Year != 2021 {
		t.Fatalf("heuristic years wrong: %d, %d", cits[0].Year, cits[1].Year)
	}
}

func TestIngestNoReferencesSectionIsFine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEmbedder{}, &stubLLM{})
	seedPending(t, f, "doc-1")

	text := []byte(strings.Repeat("Plain prose without a bibliography. ", 30))
	if err := f.svc.Ingest(ctx, "doc-1", text, "notes.txt"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	doc, _ := f.docs.GetByID(ctx, "user-1", "doc-1")
	if doc.Status != documents.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", doc.Status)
	}
	cits, _ := f.citations.ListForDocument(ctx, "user-1", "doc-1")
	if len(cits) != 0 {
		t.Fatalf("expected no citations, got %d", len(cits))
	}
}

func TestIngestRejectsConcurrentTrigger(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	model := &stubLLM{completeFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "structured facts") {
			close(started)
			<-release
		}
		return defaultStubResponse(prompt), nil
	}}
	f := newFixture(t, &stubEmbedder{}, model)
	seedPending(t, f, "doc-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt")
	}()

	<-started
	err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt")
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("expected ErrAlreadyProcessing, got %v", err)
	}
	close(release)
	wg.Wait()
}

func TestIngestReingestTerminalDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEmbedder{}, &stubLLM{})
	seedPending(t, f, "doc-1")

	if err := f.svc.Ingest(ctx, "doc-1", paperText(), "paper.txt"); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	// Re-ingest with different content: chunks are replaced, not appended.
	short := []byte("Completely new content after reprocessing.")
	if err := f.svc.Ingest(ctx, "doc-1", short, "paper.txt"); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	hits, err := f.chunks.NearestNeighbors(ctx, []string{"doc-1"}, []float32{1, 1, 0}, 100)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 chunk after re-ingest, got %d", len(hits))
	}
	if hits[0].Chunk.Text != "Completely new content after reprocessing." {
		t.Fatalf("old content survived re-ingest: %q", hits[0].Chunk.Text)
	}
}
