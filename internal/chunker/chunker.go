// Package chunker splits normalized document text into overlapping passages
// sized for embedding.
package chunker

import "strings"

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 750
	// DefaultOverlap is roughly 15% of DefaultSize.
	DefaultOverlap = 112
)

// Splitter produces ordered, overlapping chunks from a single text.
// The same input and configuration always yield the same output.
type Splitter struct {
	size    int
	overlap int
}

// New constructs a Splitter. Non-positive size falls back to DefaultSize;
// overlap is capped at a quarter of size so every chunk makes forward progress.
func New(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/4 {
		overlap = size / 4
	}
	return Splitter{size: size, overlap: overlap}
}

// Split cuts text into chunks of roughly the configured size. Cuts prefer
// paragraph breaks, then sentence ends, then whitespace, then a hard cut.
// Each chunk after the first starts with the trailing overlap characters of
// the previous chunk, so dropping that prefix from every chunk but the first
// reconstructs the original text exactly.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		coreMax := s.size
		if len(chunks) > 0 {
			coreMax = s.size - s.overlap
		}
		if pos+coreMax >= len(runes) {
			chunks = append(chunks, s.withOverlap(chunks, string(runes[pos:])))
			break
		}
		cut := s.cutPoint(runes, pos, pos+coreMax)
		chunks = append(chunks, s.withOverlap(chunks, string(runes[pos:cut])))
		pos = cut
	}
	return chunks
}

func (s Splitter) withOverlap(prior []string, core string) string {
	if len(prior) == 0 || s.overlap == 0 {
		return core
	}
	prev := []rune(prior[len(prior)-1])
	if len(prev) < s.overlap {
		return prior[len(prior)-1] + core
	}
	return string(prev[len(prev)-s.overlap:]) + core
}

// cutPoint returns the exclusive end of the next core segment, somewhere in
// (start, limit]. Boundary candidates that would leave less than a third of
// the window as core are skipped in favor of the next separator class.
func (s Splitter) cutPoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	minCore := (limit - start) / 3

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		if cut := runeLen(window[:idx+2]); cut >= minCore {
			return start + cut
		}
	}
	if idx := lastSentenceEnd(window); idx >= 0 {
		if cut := runeLen(window[:idx+1]); cut >= minCore {
			return start + cut
		}
	}
	if idx := strings.LastIndexAny(window, " \n\t"); idx >= 0 {
		if cut := runeLen(window[:idx+1]); cut >= minCore {
			return start + cut
		}
	}
	return limit
}

// lastSentenceEnd returns the byte index of the last terminal punctuation
// mark that is followed by whitespace, or -1.
func lastSentenceEnd(window string) int {
	best := -1
	for _, sep := range []string{". ", ".\n", "? ", "?\n", "! ", "!\n"} {
		if idx := strings.LastIndex(window, sep); idx > best {
			best = idx
		}
	}
	return best
}

func runeLen(s string) int {
	return len([]rune(s))
}
