package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"research-backend/internal/documents"
	"research-backend/internal/jobs"
	"research-backend/internal/llm"
	"research-backend/internal/papers"
)

type stubSearch struct {
	results []papers.Paper
	err     error
}

func (s *stubSearch) Search(context.Context, string, int) ([]papers.Paper, error) {
	return s.results, s.err
}

type stubFetcher struct {
	failURLs map[string]bool
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if f.failURLs[url] {
		return nil, errors.New("download failed")
	}
	return []byte("pdf bytes for " + url), nil
}

// stubIngestor drives documents to a terminal state the way the real
// pipeline would, failing any document whose filename contains "bad".
type stubIngestor struct {
	docs *documents.MemoryRepo

	mu       sync.Mutex
	ingested []string
}

func (s *stubIngestor) Ingest(ctx context.Context, docID string, _ []byte, filename string) error {
	s.mu.Lock()
	s.ingested = append(s.ingested, filename)
	s.mu.Unlock()

	if err := s.docs.TransitionStatus(ctx, docID, documents.StatusPending, documents.StatusProcessing); err != nil {
		return err
	}
	if strings.Contains(filename, "bad") {
		return s.docs.MarkFailed(ctx, docID, documents.ReasonExtractionFailed)
	}
	if err := s.docs.SetStructuredData(ctx, docID, map[string]any{"key_findings": "from " + filename}); err != nil {
		return err
	}
	return s.docs.TransitionStatus(ctx, docID, documents.StatusProcessing, documents.StatusCompleted)
}

type reviewLLM struct {
	filterErr    error
	filterReply  string
	synthesisErr error

	mu              sync.Mutex
	synthesisPrompt string
}

func (m *reviewLLM) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "most relevant") {
		if m.filterErr != nil {
			return "", m.filterErr
		}
		if m.filterReply != "" {
			return m.filterReply, nil
		}
		return "[1, 2, 3, 4, 5]", nil
	}
	if m.synthesisErr != nil {
		return "", m.synthesisErr
	}
	m.mu.Lock()
	m.synthesisPrompt = prompt
	m.mu.Unlock()
	return "A synthesized review citing every source.", nil
}

func (m *reviewLLM) Stream(context.Context, string) (<-chan llm.Fragment, error) {
	return nil, errors.New("not implemented")
}

func candidatePapers(n int) []papers.Paper {
	out := make([]papers.Paper, n)
	for i := range out {
		out[i] = papers.Paper{
			Title:   fmt.Sprintf("Paper %c", 'A'+i),
			Authors: []string{"Author"},
			Summary: "about the topic",
			PDFURL:  fmt.Sprintf("http://papers.test/%d.pdf", i),
		}
	}
	return out
}

type agentFixture struct {
	reviews  *MemoryRepo
	docs     *documents.MemoryRepo
	ingestor *stubIngestor
	agent    *Agent
	pool     *jobs.Pool
}

func newAgentFixture(t *testing.T, search *stubSearch, fetcher *stubFetcher, model *reviewLLM) *agentFixture {
	t.Helper()
	reviewRepo := NewMemoryRepo()
	docRepo := documents.NewMemoryRepo()
	ingestor := &stubIngestor{docs: docRepo}
	pool := jobs.NewPool(4)
	t.Cleanup(func() { _ = pool.Shutdown(5 * time.Second) })

	return &agentFixture{
		reviews:  reviewRepo,
		docs:     docRepo,
		ingestor: ingestor,
		pool:     pool,
		agent: &Agent{
			Reviews:       reviewRepo,
			Docs:          docRepo,
			Search:        search,
			Fetcher:       fetcher,
			Ingest:        ingestor,
			LLM:           model,
			IngestPool:    pool,
			MaxCandidates: 5,
			PaperTimeout:  2 * time.Second,
			PollInterval:  5 * time.Millisecond,
		},
	}
}

func (f *agentFixture) startReview(t *testing.T, topic string) LiteratureReview {
	t.Helper()
	now := time.Now().UTC()
	review := LiteratureReview{
		ID: "review-1", OwnerID: "user-1", Topic: topic,
		Status: StatusPending, CreatedAt: now, UpdatedAt: now,
	}
	if err := f.reviews.Create(context.Background(), review); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return review
}

func TestAgentPartialPaperFailureStillCompletes(t *testing.T) {
	search := &stubSearch{results: candidatePapers(5)}
	// One candidate's download fails; the other four survive.
	fetcher := &stubFetcher{failURLs: map[string]bool{"http://papers.test/2.pdf": true}}
	model := &reviewLLM{}
	f := newAgentFixture(t, search, fetcher, model)
	review := f.startReview(t, "attention mechanisms")

	f.agent.Run(context.Background(), review)

	got, err := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.Status, got.ErrorDetail)
	}
	if got.Result == "" {
		t.Fatal("result not stored")
	}

	// The four surviving sources are cited in the synthesis prompt.
	for _, title := range []string{"Paper A", "Paper B", "Paper D", "Paper E"} {
		if !strings.Contains(model.synthesisPrompt, title) {
			t.Fatalf("synthesis prompt missing %q", title)
		}
	}
	if strings.Contains(model.synthesisPrompt, "Paper C") {
		t.Fatal("failed paper leaked into synthesis prompt")
	}
}

func TestAgentSearchFailure(t *testing.T) {
	search := &stubSearch{err: errors.New("service unreachable")}
	f := newAgentFixture(t, search, &stubFetcher{}, &reviewLLM{})
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	got, _ := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if got.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if !strings.HasPrefix(got.ErrorDetail, ReasonSearchFailed) {
		t.Fatalf("expected %s detail, got %q", ReasonSearchFailed, got.ErrorDetail)
	}
	// Nothing was ingested: the agent failed before SUMMARIZING.
	if len(f.ingestor.ingested) != 0 {
		t.Fatalf("unexpected ingestions: %v", f.ingestor.ingested)
	}
}

func TestAgentEmptySearchResult(t *testing.T) {
	f := newAgentFixture(t, &stubSearch{}, &stubFetcher{}, &reviewLLM{})
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	got, _ := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if got.Status != StatusFailed || !strings.HasPrefix(got.ErrorDetail, ReasonSearchFailed) {
		t.Fatalf("expected FAILED/%s, got %s/%q", ReasonSearchFailed, got.Status, got.ErrorDetail)
	}
}

func TestAgentNoUsableSources(t *testing.T) {
	search := &stubSearch{results: candidatePapers(3)}
	fetcher := &stubFetcher{failURLs: map[string]bool{
		"http://papers.test/0.pdf": true,
		"http://papers.test/1.pdf": true,
		"http://papers.test/2.pdf": true,
	}}
	f := newAgentFixture(t, search, fetcher, &reviewLLM{})
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	got, _ := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if got.Status != StatusFailed || !strings.HasPrefix(got.ErrorDetail, ReasonNoUsableSources) {
		t.Fatalf("expected FAILED/%s, got %s/%q", ReasonNoUsableSources, got.Status, got.ErrorDetail)
	}
}

func TestAgentFilterFallbackKeepsRawOrder(t *testing.T) {
	search := &stubSearch{results: candidatePapers(8)}
	model := &reviewLLM{filterErr: errors.New("filter model down")}
	f := newAgentFixture(t, search, &stubFetcher{}, model)
	f.agent.MaxCandidates = 2
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	got, _ := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if got.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.Status, got.ErrorDetail)
	}
	// Fallback truncates the raw search order to the candidate bound.
	if len(f.ingestor.ingested) != 2 {
		t.Fatalf("expected 2 ingestions, got %v", f.ingestor.ingested)
	}
	for _, name := range f.ingestor.ingested {
		if name != "Paper-A.pdf" && name != "Paper-B.pdf" {
			t.Fatalf("unexpected candidate %q", name)
		}
	}
}

func TestAgentSynthesisFailure(t *testing.T) {
	search := &stubSearch{results: candidatePapers(2)}
	model := &reviewLLM{synthesisErr: errors.New("context too large")}
	f := newAgentFixture(t, search, &stubFetcher{}, model)
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	got, _ := f.reviews.GetByID(context.Background(), "user-1", "review-1")
	if got.Status != StatusFailed || !strings.HasPrefix(got.ErrorDetail, ReasonSynthesisFailed) {
		t.Fatalf("expected FAILED/%s, got %s/%q", ReasonSynthesisFailed, got.Status, got.ErrorDetail)
	}
}

func TestAgentImportedDocumentsAreMarked(t *testing.T) {
	search := &stubSearch{results: candidatePapers(1)}
	f := newAgentFixture(t, search, &stubFetcher{}, &reviewLLM{})
	review := f.startReview(t, "topic")

	f.agent.Run(context.Background(), review)

	docs, err := f.docs.ListByOwner(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 imported document, got %d", len(docs))
	}
	if !docs[0].Imported {
		t.Fatal("document not marked imported")
	}
	if docs[0].Status != documents.StatusCompleted {
		t.Fatalf("expected COMPLETED document, got %s", docs[0].Status)
	}
}
