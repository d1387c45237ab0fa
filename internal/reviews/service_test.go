package reviews

import (
	"context"
	"errors"
	"testing"
	"time"

	"research-backend/internal/jobs"
)

func newServiceFixture(t *testing.T, search *stubSearch, model *reviewLLM) (*Service, *agentFixture) {
	t.Helper()
	f := newAgentFixture(t, search, &stubFetcher{}, model)
	agentPool := jobs.NewPool(2)
	t.Cleanup(func() { _ = agentPool.Shutdown(5 * time.Second) })
	svc := &Service{Reviews: f.reviews, Agent: f.agent, Pool: agentPool}
	return svc, f
}

func awaitTerminal(t *testing.T, svc *Service, ownerID, reviewID string) LiteratureReview {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		review, err := svc.Get(context.Background(), ownerID, reviewID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if IsTerminal(review.Status) {
			return review
		}
		if time.Now().After(deadline) {
			t.Fatalf("review stuck in %s", review.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartRunsReviewToCompletion(t *testing.T) {
	svc, _ := newServiceFixture(t, &stubSearch{results: candidatePapers(2)}, &reviewLLM{})

	review, err := svc.Start(context.Background(), "user-1", "  graph neural networks  ")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if review.Status != StatusPending {
		t.Fatalf("expected PENDING snapshot, got %s", review.Status)
	}
	if review.Topic != "graph neural networks" {
		t.Fatalf("topic not trimmed: %q", review.Topic)
	}

	final := awaitTerminal(t, svc, "user-1", review.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.ErrorDetail)
	}
	if final.Result == "" {
		t.Fatal("result not stored")
	}
}

func TestStartEmptyTopic(t *testing.T) {
	svc, _ := newServiceFixture(t, &stubSearch{}, &reviewLLM{})
	if _, err := svc.Start(context.Background(), "user-1", "   "); !errors.Is(err, ErrEmptyTopic) {
		t.Fatalf("expected ErrEmptyTopic, got %v", err)
	}
}

func TestGetActiveReturnsLatest(t *testing.T) {
	svc, f := newServiceFixture(t, &stubSearch{results: candidatePapers(1)}, &reviewLLM{})
	ctx := context.Background()

	if _, err := svc.GetActive(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no reviews, got %v", err)
	}

	base := time.Now().UTC()
	for i, id := range []string{"old", "new"} {
		err := f.reviews.Create(ctx, LiteratureReview{
			ID: id, OwnerID: "user-1", Topic: "t",
			Status:    StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	active, err := svc.GetActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != "new" {
		t.Fatalf("expected latest review, got %s", active.ID)
	}
}

func TestListNewestFirstAndDelete(t *testing.T) {
	svc, f := newServiceFixture(t, &stubSearch{}, &reviewLLM{})
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"r1", "r2", "r3"} {
		err := f.reviews.Create(ctx, LiteratureReview{
			ID: id, OwnerID: "user-1", Topic: "t",
			Status:    StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := svc.List(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].ID != "r3" || got[2].ID != "r1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	if err := svc.Delete(ctx, "user-1", "r2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "user-1", "r2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
