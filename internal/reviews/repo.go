package reviews

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a review does not exist or is not visible to
// the requesting owner.
var ErrNotFound = errors.New("review not found")

// Repo persists literature reviews.
type Repo interface {
	Create(ctx context.Context, review LiteratureReview) error
	GetByID(ctx context.Context, ownerID, reviewID string) (LiteratureReview, error)
	// GetLatestByOwner returns the most recent non-deleted review.
	GetLatestByOwner(ctx context.Context, ownerID string) (LiteratureReview, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]LiteratureReview, error)
	// UpdateStatus moves a review to a new non-terminal status.
	UpdateStatus(ctx context.Context, reviewID, status string) error
	// Complete marks a review COMPLETED with its synthesized result.
	Complete(ctx context.Context, reviewID, result string) error
	// Fail marks a review FAILED with an error detail.
	Fail(ctx context.Context, reviewID, detail string) error
	// Delete soft-deletes a review.
	Delete(ctx context.Context, ownerID, reviewID string) error
}
