package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	retryBaseDelay = 300 * time.Millisecond
	maxAttempts    = 3
)

type retryingClient struct {
	base Client
}

// WithRetry wraps a client so Complete retries transient backend faults with
// exponential backoff. Streams are never retried: a consumer may already have
// seen fragments, so a mid-stream failure surfaces as a terminal fragment.
func WithRetry(base Client) Client {
	if base == nil {
		return nil
	}
	return retryingClient{base: base}
}

func (r retryingClient) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := r.base.Complete(ctx, prompt)
		if err == nil || !IsTransient(err) {
			return resp, err
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}
	return "", lastErr
}

func (r retryingClient) Stream(ctx context.Context, prompt string) (<-chan Fragment, error) {
	return r.base.Stream(ctx, prompt)
}

// IsTransient reports whether an error from an LLM or embedding backend is
// worth retrying: timeouts, connection faults, rate limiting, and 5xx-class
// responses. Malformed-input style failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "unavailable") {
		return true
	}
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
