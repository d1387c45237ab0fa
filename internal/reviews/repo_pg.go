package reviews

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new review.
func (r *PGRepo) Create(ctx context.Context, review LiteratureReview) error {
	const query = `
INSERT INTO literature_reviews (id, owner_id, topic, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.DB.ExecContext(ctx, query,
		review.ID,
		review.OwnerID,
		review.Topic,
		review.Status,
		review.CreatedAt,
	)
	return err
}

// GetByID returns a review scoped to its owner.
func (r *PGRepo) GetByID(ctx context.Context, ownerID, reviewID string) (LiteratureReview, error) {
	const query = `
SELECT id, owner_id, topic, status, result, error_detail, created_at, updated_at
FROM literature_reviews
WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
LIMIT 1`
	return scanReview(r.DB.QueryRowContext(ctx, query, reviewID, ownerID))
}

// GetLatestByOwner returns the most recent non-deleted review.
func (r *PGRepo) GetLatestByOwner(ctx context.Context, ownerID string) (LiteratureReview, error) {
	const query = `
SELECT id, owner_id, topic, status, result, error_detail, created_at, updated_at
FROM literature_reviews
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`
	return scanReview(r.DB.QueryRowContext(ctx, query, ownerID))
}

// ListByOwner lists non-deleted reviews newest-first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]LiteratureReview, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, owner_id, topic, status, result, error_detail, created_at, updated_at
FROM literature_reviews
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiteratureReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, rows.Err()
}

// UpdateStatus moves a review to a new status. Terminal reviews are left
// untouched.
func (r *PGRepo) UpdateStatus(ctx context.Context, reviewID, status string) error {
	const query = `
UPDATE literature_reviews
SET status = $1, updated_at = now()
WHERE id = $2 AND status NOT IN ($3, $4) AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, status, reviewID, StatusCompleted, StatusFailed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete marks a review COMPLETED with its result.
func (r *PGRepo) Complete(ctx context.Context, reviewID, result string) error {
	const query = `
UPDATE literature_reviews
SET status = $1, result = $2, updated_at = now()
WHERE id = $3 AND status NOT IN ($1, $4) AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, StatusCompleted, result, reviewID, StatusFailed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail marks a review FAILED with an error detail.
func (r *PGRepo) Fail(ctx context.Context, reviewID, detail string) error {
	const query = `
UPDATE literature_reviews
SET status = $1, error_detail = $2, updated_at = now()
WHERE id = $3 AND status NOT IN ($1, $4) AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, StatusFailed, detail, reviewID, StatusCompleted)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a review.
func (r *PGRepo) Delete(ctx context.Context, ownerID, reviewID string) error {
	const query = `
UPDATE literature_reviews
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, reviewID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (LiteratureReview, error) {
	var review LiteratureReview
	var result sql.NullString
	var errorDetail sql.NullString
	err := row.Scan(
		&review.ID,
		&review.OwnerID,
		&review.Topic,
		&review.Status,
		&result,
		&errorDetail,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LiteratureReview{}, ErrNotFound
		}
		return LiteratureReview{}, err
	}
	if result.Valid {
		review.Result = result.String
	}
	if errorDetail.Valid {
		review.ErrorDetail = errorDetail.String
	}
	return review, nil
}

var _ Repo = (*PGRepo)(nil)
