// Package reviews runs literature reviews: search an external paper index,
// ingest the best candidates and synthesize a cited report.
package reviews

import "time"

// Review statuses. Strictly forward-moving:
// PENDING -> SEARCHING -> SUMMARIZING -> SYNTHESIZING -> COMPLETED | FAILED.
const (
	StatusPending      = "PENDING"
	StatusSearching    = "SEARCHING"
	StatusSummarizing  = "SUMMARIZING"
	StatusSynthesizing = "SYNTHESIZING"
	StatusCompleted    = "COMPLETED"
	StatusFailed       = "FAILED"
)

// Failure reasons recorded in ErrorDetail when a review fails.
const (
	ReasonSearchFailed    = "search_failed"
	ReasonNoUsableSources = "no_usable_sources"
	ReasonSynthesisFailed = "synthesis_failed"
	ReasonInternalError   = "internal_error"
)

// LiteratureReview is one long-running review job. Result is set only at
// COMPLETED; ErrorDetail only at FAILED.
type LiteratureReview struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Topic       string    `json:"topic"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	ErrorDetail string    `json:"errorDetail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
