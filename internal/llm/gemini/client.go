// Package gemini implements llm.Client using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"research-backend/internal/llm"
)

// Client calls a Gemini generative model.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient constructs a new Gemini client.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	gm := genaiClient.GenerativeModel(model)
	var temp float32
	gm.SetTemperature(temp)
	return &Client{client: genaiClient, model: gm}, nil
}

// Complete returns the full completion for a prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini response empty content")
	}
	return text, nil
}

// Stream returns completion fragments as the model produces them.
func (c *Client) Stream(ctx context.Context, prompt string) (<-chan llm.Fragment, error) {
	iter := c.model.GenerateContentStream(ctx, genai.Text(prompt))

	out := make(chan llm.Fragment)
	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				emit(ctx, out, llm.Fragment{Err: fmt.Errorf("gemini stream: %w", err)})
				return
			}
			if text := responseText(resp); text != "" {
				if !emit(ctx, out, llm.Fragment{Text: text}) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error { return c.client.Close() }

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
	}
	return strings.Join(parts, "")
}

func emit(ctx context.Context, out chan<- llm.Fragment, f llm.Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ llm.Client = (*Client)(nil)
