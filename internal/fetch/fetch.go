// Package fetch downloads remote files for the import pipeline.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrFetch wraps network and HTTP failures while downloading a remote file.
var ErrFetch = errors.New("remote fetch failed")

// maxDownloadBytes caps a single download; arXiv PDFs are well under this.
const maxDownloadBytes = 64 << 20

// Client downloads remote files with bounded retries.
type Client struct {
	httpClient *http.Client
	maxRetries int
}

// NewClient constructs a fetch client.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
	}
}

// Fetch downloads url and returns its bytes. 429/5xx and network errors are
// retried with backoff; 4xx responses fail fast.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data, retryable, err := c.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFetch, lastErr.Error())
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("status %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, true, err
	}
	if len(data) > maxDownloadBytes {
		return nil, false, fmt.Errorf("response larger than %d bytes", maxDownloadBytes)
	}
	return data, false, nil
}
