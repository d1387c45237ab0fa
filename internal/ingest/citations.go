package ingest

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"research-backend/internal/documents"
	"research-backend/internal/shared/telemetry"
)

// referenceHeaders mark the start of a bibliography section. Matched
// case-insensitively against the last occurrence in the document, since
// papers may mention "references" in running text.
var referenceHeaders = []string{"references", "bibliography", "works cited"}

// citationsPromptLimit bounds how much of the references section goes into
// the parsing prompt.
const citationsPromptLimit = 8000

const citationsPrompt = `The following text is the references section of an academic paper.
Parse it into a JSON array and respond with the array and nothing else. Each
element: {"title": "...", "authors": "...", "year": 2020, "raw": "the original entry text"}.
Use 0 for an unknown year and "" for unknown fields.

References:
`

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// extractCitations locates the references section and parses it into
// citation records, preferring the LLM and falling back to a line-based
// heuristic. A document without a references section yields no citations.
func (s *Service) extractCitations(ctx context.Context, docID, text string) []documents.Citation {
	section := referencesSection(text)
	if section == "" {
		return nil
	}

	entries := s.parseWithLLM(ctx, section)
	if entries == nil {
		entries = parseHeuristically(section)
	}

	now := time.Now().UTC()
	citations := make([]documents.Citation, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Raw) == "" {
			continue
		}
		title := strings.TrimSpace(e.Title)
		if title == "" {
			title = truncateRunes(strings.TrimSpace(e.Raw), 200)
		}
		citations = append(citations, documents.Citation{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Title:      title,
			Authors:    strings.TrimSpace(e.Authors),
			Year:       e.Year,
			RawText:    strings.TrimSpace(e.Raw),
			CreatedAt:  now,
		})
	}
	return citations
}

// referencesSection returns the text after the last bibliography header, or
// "" when no header is found.
func referencesSection(text string) string {
	lower := strings.ToLower(text)
	best := -1
	bestLen := 0
	for _, header := range referenceHeaders {
		if idx := strings.LastIndex(lower, header); idx > best {
			best = idx
			bestLen = len(header)
		}
	}
	if best < 0 {
		return ""
	}
	return strings.TrimSpace(text[best+bestLen:])
}

type citationEntry struct {
	Title   string `json:"title"`
	Authors string `json:"authors"`
	Year    int    `json:"year"`
	Raw     string `json:"raw"`
}

// parseWithLLM returns nil when the model call or parse fails, signalling
// the caller to fall back.
func (s *Service) parseWithLLM(ctx context.Context, section string) []citationEntry {
	prompt := citationsPrompt + truncateRunes(section, citationsPromptLimit)

	raw, err := s.LLM.Complete(ctx, prompt)
	if err != nil {
		telemetry.Warn("ingest.citation_llm_failed", map[string]any{"error": err.Error()})
		return nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}

	var entries []citationEntry
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		telemetry.Warn("ingest.citation_parse_failed", map[string]any{"error": err.Error()})
		return nil
	}
	return entries
}

// parseHeuristically treats each sufficiently long line as one bibliography
// entry and pulls a plausible publication year out of it.
func parseHeuristically(section string) []citationEntry {
	var entries []citationEntry
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) < 20 {
			continue
		}
		entry := citationEntry{Raw: line}
		if match := yearPattern.FindString(line); match != "" {
			var year int
			for _, d := range match {
				year = year*10 + int(d-'0')
			}
			entry.Year = year
		}
		entries = append(entries, entry)
	}
	return entries
}
