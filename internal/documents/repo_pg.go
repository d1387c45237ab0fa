package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, owner_id, filename, status, imported, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.Status,
		doc.Imported,
		doc.CreatedAt,
	)
	return err
}

// GetByID returns a document scoped to its owner.
func (r *PGRepo) GetByID(ctx context.Context, ownerID, docID string) (Document, error) {
	const query = `
SELECT id, owner_id, filename, status, failure_reason, structured_data, imported, created_at, updated_at
FROM documents
WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, docID, ownerID))
}

// ListByOwner lists non-deleted documents newest-first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
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
SELECT id, owner_id, filename, status, failure_reason, structured_data, imported, created_at, updated_at
FROM documents
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// TransitionStatus moves a document from one status to another under a
// current-status guard.
func (r *PGRepo) TransitionStatus(ctx context.Context, docID, from, to string) error {
	const query = `
UPDATE documents
SET status = $1,
    failure_reason = NULL,
    updated_at = now()
WHERE id = $2 AND status = $3 AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, to, docID, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.classifyMiss(ctx, docID)
	}
	return nil
}

// MarkFailed moves a non-terminal document to FAILED with a reason.
func (r *PGRepo) MarkFailed(ctx context.Context, docID, reason string) error {
	const query = `
UPDATE documents
SET status = $1,
    failure_reason = $2,
    updated_at = now()
WHERE id = $3 AND status NOT IN ($4, $1) AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, StatusFailed, reason, docID, StatusCompleted)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.classifyMiss(ctx, docID)
	}
	return nil
}

// SetStructuredData replaces the structured facts payload.
func (r *PGRepo) SetStructuredData(ctx context.Context, docID string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	const query = `
UPDATE documents
SET structured_data = $1::jsonb,
    updated_at = now()
WHERE id = $2 AND deleted_at IS NULL`

	res, err := r.DB.ExecContext(ctx, query, payload, docID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a document and removes its chunks and citations.
func (r *PGRepo) Delete(ctx context.Context, ownerID, docID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE documents
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`, docID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM text_chunks WHERE document_id = $1`, docID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM citations WHERE document_id = $1`, docID); err != nil {
		return err
	}
	return tx.Commit()
}

// classifyMiss distinguishes a missing document from a status guard miss.
func (r *PGRepo) classifyMiss(ctx context.Context, docID string) error {
	var status string
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM documents WHERE id = $1 AND deleted_at IS NULL`, docID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var failureReason sql.NullString
	var structured sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.Status,
		&failureReason,
		&structured,
		&doc.Imported,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if failureReason.Valid {
		doc.FailureReason = failureReason.String
	}
	if structured.Valid {
		doc.StructuredData = map[string]any{}
		if err := json.Unmarshal([]byte(structured.String), &doc.StructuredData); err != nil {
			doc.StructuredData = nil
		}
	}
	return doc, nil
}

var _ Repo = (*PGRepo)(nil)

// PGChunksRepo implements ChunksRepo using Postgres with pgvector.
type PGChunksRepo struct {
	DB *sql.DB
}

// ReplaceForDocument atomically swaps all chunks for a document.
func (r *PGChunksRepo) ReplaceForDocument(ctx context.Context, docID string, chunks []TextChunk) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM text_chunks WHERE document_id = $1`, docID); err != nil {
		return err
	}
	const insert = `
INSERT INTO text_chunks (id, document_id, ordinal, chunk_text, embedding)
VALUES ($1, $2, $3, $4, $5::vector)`
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, insert,
			chunk.ID,
			docID,
			chunk.Ordinal,
			chunk.Text,
			encodeVector(chunk.Embedding),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// NearestNeighbors runs a cosine-distance search over the given document
// set. pgvector's <=> operator returns cosine distance, so similarity is
// 1 - distance.
func (r *PGChunksRepo) NearestNeighbors(ctx context.Context, docIDs []string, embedding []float32, limit int) ([]SimilarChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT c.id, c.document_id, c.ordinal, c.chunk_text, c.embedding::text, d.filename,
       1 - (c.embedding <=> $1::vector) AS score
FROM text_chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.document_id = ANY($2) AND d.deleted_at IS NULL
ORDER BY c.embedding <=> $1::vector ASC, c.document_id ASC, c.ordinal ASC
LIMIT $3`

	rows, err := r.DB.QueryContext(ctx, query, encodeVector(embedding), docIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarChunk
	for rows.Next() {
		var sc SimilarChunk
		var rawVec string
		if err := rows.Scan(
			&sc.Chunk.ID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.Ordinal,
			&sc.Chunk.Text,
			&rawVec,
			&sc.Filename,
			&sc.Score,
		); err != nil {
			return nil, err
		}
		if vec, err := decodeVector(rawVec); err == nil {
			sc.Chunk.Embedding = vec
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

var _ ChunksRepo = (*PGChunksRepo)(nil)

// PGCitationsRepo implements CitationsRepo using Postgres.
type PGCitationsRepo struct {
	DB *sql.DB
}

// ReplaceForDocument atomically swaps all citations for a document.
func (r *PGCitationsRepo) ReplaceForDocument(ctx context.Context, docID string, citations []Citation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM citations WHERE document_id = $1`, docID); err != nil {
		return err
	}
	const insert = `
INSERT INTO citations (id, document_id, title, authors, year, raw_text, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, c := range citations {
		if _, err := tx.ExecContext(ctx, insert,
			c.ID,
			docID,
			c.Title,
			c.Authors,
			c.Year,
			c.RawText,
			c.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListForDocument lists citations for one owner-scoped document.
func (r *PGCitationsRepo) ListForDocument(ctx context.Context, ownerID, docID string) ([]Citation, error) {
	const query = `
SELECT c.id, c.document_id, c.title, c.authors, c.year, c.raw_text, c.created_at
FROM citations c
JOIN documents d ON d.id = c.document_id
WHERE c.document_id = $1 AND d.owner_id = $2 AND d.deleted_at IS NULL
ORDER BY c.created_at ASC, c.id ASC`
	return r.queryCitations(ctx, query, docID, ownerID)
}

// ListForOwner lists citations across all of an owner's documents.
func (r *PGCitationsRepo) ListForOwner(ctx context.Context, ownerID string) ([]Citation, error) {
	const query = `
SELECT c.id, c.document_id, c.title, c.authors, c.year, c.raw_text, c.created_at
FROM citations c
JOIN documents d ON d.id = c.document_id
WHERE d.owner_id = $1 AND d.deleted_at IS NULL
ORDER BY c.created_at ASC, c.id ASC`
	return r.queryCitations(ctx, query, ownerID)
}

func (r *PGCitationsRepo) queryCitations(ctx context.Context, query string, args ...any) ([]Citation, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Citation
	for rows.Next() {
		var c Citation
		var authors sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Title, &authors, &year, &c.RawText, &c.CreatedAt); err != nil {
			return nil, err
		}
		if authors.Valid {
			c.Authors = authors.String
		}
		if year.Valid {
			c.Year = int(year.Int64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ CitationsRepo = (*PGCitationsRepo)(nil)
