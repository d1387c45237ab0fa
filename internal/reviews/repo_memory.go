package reviews

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	reviews map[string]LiteratureReview
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reviews: make(map[string]LiteratureReview)}
}

func (r *MemoryRepo) Create(_ context.Context, review LiteratureReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = review.CreatedAt
	}
	r.reviews[review.ID] = review
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, ownerID, reviewID string) (LiteratureReview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.reviews[reviewID]
	if !ok || review.OwnerID != ownerID {
		return LiteratureReview{}, ErrNotFound
	}
	return review, nil
}

func (r *MemoryRepo) GetLatestByOwner(_ context.Context, ownerID string) (LiteratureReview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest LiteratureReview
	found := false
	for _, review := range r.reviews {
		if review.OwnerID != ownerID {
			continue
		}
		if !found || review.CreatedAt.After(latest.CreatedAt) ||
			(review.CreatedAt.Equal(latest.CreatedAt) && review.ID > latest.ID) {
			latest = review
			found = true
		}
	}
	if !found {
		return LiteratureReview{}, ErrNotFound
	}
	return latest, nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]LiteratureReview, error) {
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

	var all []LiteratureReview
	for _, review := range r.reviews {
		if review.OwnerID == ownerID {
			all = append(all, review)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
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

func (r *MemoryRepo) UpdateStatus(_ context.Context, reviewID, status string) error {
	return r.mutate(reviewID, func(review *LiteratureReview) {
		review.Status = status
	})
}

func (r *MemoryRepo) Complete(_ context.Context, reviewID, result string) error {
	return r.mutate(reviewID, func(review *LiteratureReview) {
		review.Status = StatusCompleted
		review.Result = result
	})
}

func (r *MemoryRepo) Fail(_ context.Context, reviewID, detail string) error {
	return r.mutate(reviewID, func(review *LiteratureReview) {
		review.Status = StatusFailed
		review.ErrorDetail = detail
	})
}

func (r *MemoryRepo) Delete(_ context.Context, ownerID, reviewID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[reviewID]
	if !ok || review.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.reviews, reviewID)
	return nil
}

func (r *MemoryRepo) mutate(reviewID string, fn func(*LiteratureReview)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.reviews[reviewID]
	if !ok {
		return ErrNotFound
	}
	if IsTerminal(review.Status) {
		return ErrNotFound
	}
	fn(&review)
	review.UpdatedAt = time.Now().UTC()
	r.reviews[reviewID] = review
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
