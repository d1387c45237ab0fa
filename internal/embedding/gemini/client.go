// Package gemini implements embedding.Gateway on the Gemini embedding API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"research-backend/internal/embedding"
)

// Client embeds batches through a Gemini embedding model.
type Client struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	dimension int
}

// NewClient constructs a Gemini embeddings client.
func NewClient(ctx context.Context, apiKey, model string, dimension int) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		client:    genaiClient,
		model:     genaiClient.EmbeddingModel(model),
		dimension: dimension,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (c *Client) Dimension() int { return c.dimension }

// Embed sends the whole batch in one BatchEmbedContents call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyBatch
	}

	batch := c.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := c.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini embeddings returned %d vectors for %d inputs", got, len(texts))
	}

	vectors := make([][]float32, 0, len(texts))
	for _, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != c.dimension {
			return nil, fmt.Errorf("gemini embeddings dimension mismatch, want %d", c.dimension)
		}
		vectors = append(vectors, emb.Values)
	}
	return vectors, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error { return c.client.Close() }

var _ embedding.Gateway = (*Client)(nil)
