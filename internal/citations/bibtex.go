// Package citations formats stored citation records as bibliographies.
package citations

import (
	"fmt"
	"strings"

	"research-backend/internal/documents"
)

// FormatBibTeX renders citations as a BibTeX bibliography. Pure and
// synchronous; entries with no title fall back to their raw text. Keys are
// derived from the first author surname and year, deduplicated with a
// suffix.
func FormatBibTeX(docFilename string, cits []documents.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%% Citations extracted from %s\n", docFilename)

	seen := make(map[string]int)
	for _, c := range cits {
		key := citeKey(c)
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = fmt.Sprintf("%s-%d", key, n+1)
		} else {
			seen[key] = 1
		}

		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = strings.TrimSpace(c.RawText)
		}

		fmt.Fprintf(&b, "\n@misc{%s,\n", key)
		fmt.Fprintf(&b, "  title = {%s},\n", escape(title))
		if authors := strings.TrimSpace(c.Authors); authors != "" {
			fmt.Fprintf(&b, "  author = {%s},\n", escape(authors))
		}
		if c.Year > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", c.Year)
		}
		fmt.Fprintf(&b, "  note = {%s},\n", escape(strings.TrimSpace(c.RawText)))
		b.WriteString("}\n")
	}
	return b.String()
}

// citeKey builds a stable key like "smith2020" from the citation fields.
func citeKey(c documents.Citation) string {
	name := firstAuthorSurname(c.Authors)
	if name == "" {
		name = firstWord(c.Title)
	}
	if name == "" {
		name = "ref"
	}
	if c.Year > 0 {
		return fmt.Sprintf("%s%d", name, c.Year)
	}
	return name
}

func firstAuthorSurname(authors string) string {
	first := authors
	for _, sep := range []string{" and ", ";", ","} {
		if idx := strings.Index(first, sep); idx >= 0 {
			first = first[:idx]
		}
	}
	words := strings.Fields(first)
	if len(words) == 0 {
		return ""
	}
	return sanitizeKey(words[len(words)-1])
}

func firstWord(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	return sanitizeKey(words[0])
}

func sanitizeKey(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, s))
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "{", "\\{")
	s = strings.ReplaceAll(s, "}", "\\}")
	return s
}
