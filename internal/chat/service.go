// Package chat answers questions over ingested documents with a streaming
// LLM response grounded in retrieved context.
package chat

import (
	"context"
	"fmt"
	"strings"

	"research-backend/internal/llm"
	"research-backend/internal/retrieval"
	"research-backend/internal/shared/metrics"
)

// Service orchestrates retrieval-augmented chat.
type Service struct {
	Retriever *retrieval.Service
	LLM       llm.Client
	TopK      int
}

// Ask retrieves the top-k passages for the question, builds a grounded
// prompt and streams the model's answer. Retrieval failures are returned as
// an error before any streaming starts; an LLM failure before the first
// fragment arrives is delivered as a single error fragment, and a mid-stream
// failure as a terminal error fragment after the fragments already emitted.
// Nothing is persisted; cancelling ctx stops the stream.
func (s *Service) Ask(ctx context.Context, docIDs []string, question string) (<-chan llm.Fragment, error) {
	k := s.TopK
	if k <= 0 {
		k = 5
	}

	passages, err := s.Retriever.Retrieve(ctx, docIDs, question, k)
	if err != nil {
		return nil, err
	}

	metrics.IncChatStream()
	prompt := buildPrompt(passages, question)

	stream, err := s.LLM.Stream(ctx, prompt)
	if err != nil {
		out := make(chan llm.Fragment, 1)
		out <- llm.Fragment{Err: fmt.Errorf("chat stream: %w", err)}
		close(out)
		return out, nil
	}
	return stream, nil
}

func buildPrompt(passages []retrieval.ScoredChunk, question string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context passages below. ")
	b.WriteString("If the context does not contain the answer, say so. ")
	b.WriteString("Cite passages by their source label.\n\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n\n", i+1, p.Filename, p.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
