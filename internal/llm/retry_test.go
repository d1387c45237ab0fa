package llm

import (
	"context"
	"errors"
	"testing"
)

type countingClient struct {
	completeCalls int
	streamCalls   int
	errs          []error
	reply         string
}

func (c *countingClient) Complete(context.Context, string) (string, error) {
	c.completeCalls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return "", err
	}
	return c.reply, nil
}

func (c *countingClient) Stream(context.Context, string) (<-chan Fragment, error) {
	c.streamCalls++
	return nil, errors.New("status 503 from backend")
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	base := &countingClient{
		errs:  []error{errors.New("status 503 from backend")},
		reply: "ok",
	}
	client := WithRetry(base)

	got, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected reply %q", got)
	}
	if base.completeCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", base.completeCalls)
	}
}

func TestCompleteFailsFastOnPermanentErrors(t *testing.T) {
	permanent := errors.New("invalid request payload")
	base := &countingClient{errs: []error{permanent, permanent, permanent}}
	client := WithRetry(base)

	_, err := client.Complete(context.Background(), "prompt")
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if base.completeCalls != 1 {
		t.Fatalf("expected single attempt, got %d", base.completeCalls)
	}
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("rate limit exceeded")
	base := &countingClient{errs: []error{transient, transient, transient, transient}}
	client := WithRetry(base)

	_, err := client.Complete(context.Background(), "prompt")
	if !errors.Is(err, transient) {
		t.Fatalf("expected transient error after exhaustion, got %v", err)
	}
	if base.completeCalls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, base.completeCalls)
	}
}

func TestStreamIsNeverRetried(t *testing.T) {
	base := &countingClient{}
	client := WithRetry(base)

	if _, err := client.Stream(context.Background(), "prompt"); err == nil {
		t.Fatal("expected stream error to pass through")
	}
	if base.streamCalls != 1 {
		t.Fatalf("expected single stream attempt, got %d", base.streamCalls)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("status 502 from backend"), true},
		{errors.New("429 too many requests"), true},
		{errors.New("quota exceeded for project"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("invalid api key"), false},
		{errors.New("model not found"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
