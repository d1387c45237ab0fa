package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"research-backend/internal/documents"
	"research-backend/internal/jobs"
	"research-backend/internal/llm"
	"research-backend/internal/papers"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/telemetry"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Ingestor runs the document ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, docID string, raw []byte, filename string) error
}

// Agent executes one review as a strictly forward-moving state machine:
// SEARCHING finds and filters candidate papers, SUMMARIZING fetches and
// ingests them in parallel, SYNTHESIZING produces the final report.
type Agent struct {
	Reviews Repo
	Docs    documents.Repo
	Search  papers.SearchClient
	Fetcher Fetcher
	Ingest  Ingestor
	LLM     llm.Client

	// IngestPool runs per-paper ingestion jobs. It must be distinct from
	// the pool the agent itself runs on, otherwise agents waiting on their
	// ingests can starve the ingests of workers.
	IngestPool *jobs.Pool

	MaxCandidates int
	PaperTimeout  time.Duration
	PollInterval  time.Duration
}

// source is one successfully ingested paper's contribution to synthesis.
type source struct {
	Title      string
	DocumentID string
	Facts      map[string]any
}

// Run drives the review to a terminal state. Per-paper failures are dropped;
// the review fails only when search is unusable, no paper survives
// ingestion, or synthesis itself fails.
func (a *Agent) Run(ctx context.Context, review LiteratureReview) {
	metrics.IncReviewStarted()
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			a.fail(ctx, review.ID, ReasonInternalError, fmt.Sprintf("%v", rec))
		}
		metrics.ObserveReviewDurationMs(float64(time.Since(started).Milliseconds()))
	}()

	candidates, ok := a.searching(ctx, review)
	if !ok {
		return
	}
	sources, ok := a.summarizing(ctx, review, candidates)
	if !ok {
		return
	}
	a.synthesizing(ctx, review, sources)
}

func (a *Agent) searching(ctx context.Context, review LiteratureReview) ([]papers.Paper, bool) {
	if err := a.transition(ctx, review.ID, StatusSearching); err != nil {
		return nil, false
	}

	limit := a.maxCandidates()
	// Over-fetch so the relevance filter has something to choose from.
	results, err := a.Search.Search(ctx, review.Topic, limit*3)
	if err != nil {
		a.fail(ctx, review.ID, ReasonSearchFailed, err.Error())
		return nil, false
	}
	if len(results) == 0 {
		a.fail(ctx, review.ID, ReasonSearchFailed, "no papers found for topic")
		return nil, false
	}

	return a.filterCandidates(ctx, review.Topic, results), true
}

// filterCandidates asks the LLM to pick the most relevant papers; on any
// filtering failure it falls back to the raw search order truncated to the
// candidate bound.
func (a *Agent) filterCandidates(ctx context.Context, topic string, results []papers.Paper) []papers.Paper {
	limit := a.maxCandidates()
	if len(results) <= limit {
		return results
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Select the %d papers most relevant to the topic %q.\n", limit, topic)
	b.WriteString("Respond with a JSON array of the selected paper numbers, most relevant first, and nothing else.\n\n")
	for i, p := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, p.Title, truncateRunes(p.Summary, 400))
	}

	raw, err := a.LLM.Complete(ctx, b.String())
	if err != nil {
		telemetry.Warn("review.filter_failed", map[string]any{"error": err.Error()})
		return results[:limit]
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return results[:limit]
	}
	var picks []int
	if err := json.Unmarshal([]byte(raw[start:end+1]), &picks); err != nil {
		return results[:limit]
	}

	var selected []papers.Paper
	seen := make(map[int]struct{})
	for _, n := range picks {
		idx := n - 1
		if idx < 0 || idx >= len(results) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		selected = append(selected, results[idx])
		if len(selected) == limit {
			break
		}
	}
	if len(selected) == 0 {
		return results[:limit]
	}
	return selected
}

func (a *Agent) summarizing(ctx context.Context, review LiteratureReview, candidates []papers.Paper) ([]source, bool) {
	if err := a.transition(ctx, review.ID, StatusSummarizing); err != nil {
		return nil, false
	}

	var mu sync.Mutex
	var sources []source
	var wg sync.WaitGroup
	for _, paper := range candidates {
		wg.Add(1)
		go func(paper papers.Paper) {
			defer wg.Done()
			src, ok := a.processPaper(ctx, review, paper)
			if !ok {
				return
			}
			mu.Lock()
			sources = append(sources, src)
			mu.Unlock()
		}(paper)
	}
	wg.Wait()

	if len(sources) == 0 {
		a.fail(ctx, review.ID, ReasonNoUsableSources, "no candidate paper was ingested successfully")
		return nil, false
	}
	return sources, true
}

// processPaper fetches one candidate, creates an imported document, submits
// it to the ingestion pool and polls until the document reaches a terminal
// state or the per-paper timeout elapses. Any failure drops the paper.
func (a *Agent) processPaper(ctx context.Context, review LiteratureReview, paper papers.Paper) (source, bool) {
	data, err := a.Fetcher.Fetch(ctx, paper.PDFURL)
	if err != nil {
		telemetry.Warn("review.paper_fetch_failed", map[string]any{
			"review_id": review.ID,
			"title":     paper.Title,
			"error":     err.Error(),
		})
		return source{}, false
	}

	doc := documents.Document{
		ID:        uuid.NewString(),
		OwnerID:   review.OwnerID,
		Filename:  importedFilename(paper.Title),
		Status:    documents.StatusPending,
		Imported:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Docs.Create(ctx, doc); err != nil {
		telemetry.Warn("review.paper_create_failed", map[string]any{
			"review_id": review.ID,
			"title":     paper.Title,
			"error":     err.Error(),
		})
		return source{}, false
	}

	submitted := a.IngestPool.Submit("review-ingest", func(jobCtx context.Context) {
		// Errors surface through the document's status.
		_ = a.Ingest.Ingest(jobCtx, doc.ID, data, doc.Filename)
	})
	if !submitted {
		return source{}, false
	}

	final, ok := a.awaitDocument(ctx, review.OwnerID, doc.ID)
	if !ok || final.Status != documents.StatusCompleted {
		return source{}, false
	}
	return source{Title: paper.Title, DocumentID: doc.ID, Facts: final.StructuredData}, true
}

// awaitDocument polls a document until it is terminal or the per-paper
// timeout elapses.
func (a *Agent) awaitDocument(ctx context.Context, ownerID, docID string) (documents.Document, bool) {
	timeout := a.PaperTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	interval := a.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		doc, err := a.Docs.GetByID(ctx, ownerID, docID)
		if err == nil && documents.IsTerminal(doc.Status) {
			return doc, true
		}
		if time.Now().After(deadline) {
			telemetry.Warn("review.paper_timeout", map[string]any{"document_id": docID})
			return documents.Document{}, false
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return documents.Document{}, false
		}
	}
}

func (a *Agent) synthesizing(ctx context.Context, review LiteratureReview, sources []source) {
	if err := a.transition(ctx, review.ID, StatusSynthesizing); err != nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a cohesive literature review on the topic %q using the structured notes below. ", review.Topic)
	b.WriteString("Cite each source by its title. Cover methodology, datasets and key findings, and note disagreements between sources.\n\n")
	for _, src := range sources {
		facts, err := json.Marshal(src.Facts)
		if err != nil {
			facts = []byte("{}")
		}
		fmt.Fprintf(&b, "Source: %s\nNotes: %s\n\n", src.Title, facts)
	}

	result, err := a.LLM.Complete(ctx, b.String())
	if err != nil {
		a.fail(ctx, review.ID, ReasonSynthesisFailed, err.Error())
		return
	}
	if strings.TrimSpace(result) == "" {
		a.fail(ctx, review.ID, ReasonSynthesisFailed, "empty synthesis result")
		return
	}

	if err := a.Reviews.Complete(ctx, review.ID, result); err != nil {
		telemetry.Error("review.complete_failed", map[string]any{
			"review_id": review.ID,
			"error":     err.Error(),
		})
		return
	}
	metrics.IncReviewCompleted()
	a.logTransition(review.ID, StatusCompleted, "")
}

func (a *Agent) transition(ctx context.Context, reviewID, status string) error {
	if err := a.Reviews.UpdateStatus(ctx, reviewID, status); err != nil {
		telemetry.Error("review.transition_failed", map[string]any{
			"review_id": reviewID,
			"status":    status,
			"error":     err.Error(),
		})
		return err
	}
	a.logTransition(reviewID, status, "")
	return nil
}

func (a *Agent) fail(ctx context.Context, reviewID, reason, detail string) {
	metrics.IncReviewFailed()
	message := reason
	if detail != "" {
		message = reason + ": " + detail
	}
	if err := a.Reviews.Fail(ctx, reviewID, message); err != nil {
		telemetry.Error("review.fail_store_error", map[string]any{
			"review_id": reviewID,
			"error":     err.Error(),
		})
	}
	a.logTransition(reviewID, StatusFailed, reason)
}

func (a *Agent) logTransition(reviewID, status, reason string) {
	fields := map[string]any{
		"review_id": reviewID,
		"status":    status,
	}
	if reason != "" {
		fields["reason"] = reason
	}
	telemetry.Info("review.status_transition", fields)
}

func (a *Agent) maxCandidates() int {
	if a.MaxCandidates > 0 {
		return a.MaxCandidates
	}
	return 5
}

func importedFilename(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, title)
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "imported-paper"
	}
	return truncateRunes(cleaned, 120) + ".pdf"
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
