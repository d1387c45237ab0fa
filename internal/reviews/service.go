package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-backend/internal/jobs"
	"research-backend/internal/shared/telemetry"
)

// ErrEmptyTopic is returned when a review is requested without a topic.
var ErrEmptyTopic = errors.New("topic must not be empty")

// Service starts reviews and serves status snapshots.
type Service struct {
	Reviews Repo
	Agent   *Agent
	// Pool runs agent executions. Distinct from the agent's ingest pool.
	Pool *jobs.Pool
}

// Start creates a PENDING review and schedules its agent run. The returned
// snapshot is the freshly created record; progress is observed by polling.
func (s *Service) Start(ctx context.Context, ownerID, topic string) (LiteratureReview, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return LiteratureReview{}, ErrEmptyTopic
	}

	now := time.Now().UTC()
	review := LiteratureReview{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Topic:     topic,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Reviews.Create(ctx, review); err != nil {
		return LiteratureReview{}, err
	}

	submitted := s.Pool.Submit("review", func(jobCtx context.Context) {
		s.Agent.Run(jobCtx, review)
	})
	if !submitted {
		if err := s.Reviews.Fail(ctx, review.ID, ReasonInternalError+": worker pool unavailable"); err != nil {
			telemetry.Error("review.fail_store_error", map[string]any{
				"review_id": review.ID,
				"error":     err.Error(),
			})
		}
		return LiteratureReview{}, errors.New("review could not be scheduled")
	}

	telemetry.Info("review.started", map[string]any{
		"review_id": review.ID,
		"owner_id":  ownerID,
	})
	return review, nil
}

// Get returns one review scoped to its owner.
func (s *Service) Get(ctx context.Context, ownerID, reviewID string) (LiteratureReview, error) {
	return s.Reviews.GetByID(ctx, ownerID, reviewID)
}

// GetActive returns the owner's most recent non-deleted review so a client
// reconnecting mid-run can resume observing progress. Idempotent.
func (s *Service) GetActive(ctx context.Context, ownerID string) (LiteratureReview, error) {
	return s.Reviews.GetLatestByOwner(ctx, ownerID)
}

// List lists the owner's reviews newest-first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]LiteratureReview, error) {
	return s.Reviews.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete soft-deletes a review.
func (s *Service) Delete(ctx context.Context, ownerID, reviewID string) error {
	return s.Reviews.Delete(ctx, ownerID, reviewID)
}
