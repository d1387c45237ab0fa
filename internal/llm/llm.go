// Package llm abstracts chat-completion providers.
package llm

import (
	"context"
	"errors"
)

// Fragment is one increment of a streamed completion. A Fragment with a
// non-nil Err is terminal; no further fragments follow it.
type Fragment struct {
	Text string
	Err  error
}

// Client is a stateless completion backend, shareable by any number of
// concurrent callers.
type Client interface {
	// Complete returns the full completion for a prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream returns completion fragments as the backend produces them.
	// The channel is closed when the stream ends, after a terminal error
	// fragment if the backend failed mid-stream.
	Stream(ctx context.Context, prompt string) (<-chan Fragment, error)
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("llm client not configured")

// PlaceholderClient is a stub used when no provider is wired.
type PlaceholderClient struct{}

// Complete returns ErrNotConfigured.
func (PlaceholderClient) Complete(ctx context.Context, prompt string) (string, error) {
	_ = ctx
	_ = prompt
	return "", ErrNotConfigured
}

// Stream returns ErrNotConfigured.
func (PlaceholderClient) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	_ = ctx
	_ = prompt
	return nil, ErrNotConfigured
}
