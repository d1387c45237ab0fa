package ingest

import (
	"context"
	"encoding/json"
	"strings"
)

// structuredPromptLimit bounds how much document text goes into the facts
// prompt.
const structuredPromptLimit = 8000

const structuredPrompt = `You are extracting structured facts from an academic paper.
Respond with a single JSON object and nothing else, using exactly these keys:
{"methodology": "...", "dataset": "...", "key_findings": "..."}
Use "unknown" for anything the text does not state.

Paper text:
`

// extractStructured asks the LLM for methodology, dataset and key findings.
// Failures are recorded in the returned payload instead of aborting the
// pipeline.
func (s *Service) extractStructured(ctx context.Context, text string) map[string]any {
	prompt := structuredPrompt + truncateRunes(text, structuredPromptLimit)

	raw, err := s.LLM.Complete(ctx, prompt)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	payload := extractJSONObject(raw)
	if payload == "" {
		return map[string]any{"error": "no JSON object in model response"}
	}

	var facts map[string]any
	if err := json.Unmarshal([]byte(payload), &facts); err != nil {
		return map[string]any{"error": "unparseable model response: " + err.Error()}
	}
	return facts
}

// extractJSONObject returns the outermost {...} block in raw, tolerating
// markdown fences and prose around it.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
