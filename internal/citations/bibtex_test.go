package citations

import (
	"strings"
	"testing"

	"research-backend/internal/documents"
)

func TestFormatBibTeXKeysAndFields(t *testing.T) {
	out := FormatBibTeX("paper.pdf", []documents.Citation{
		{Title: "Attention Is All You Need", Authors: "Vaswani, A. and Shazeer, N.", Year: 2017, RawText: "Vaswani et al. 2017."},
		{Title: "Deep Residual Learning", Authors: "He, K.", Year: 2016, RawText: "He et al. 2016."},
	})

	if !strings.HasPrefix(out, "% Citations extracted from paper.pdf\n") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "@misc{vaswani2017,") {
		t.Fatalf("missing vaswani2017 entry:\n%s", out)
	}
	if !strings.Contains(out, "@misc{he2016,") {
		t.Fatalf("missing he2016 entry:\n%s", out)
	}
	if !strings.Contains(out, "  title = {Attention Is All You Need},") {
		t.Fatalf("missing title field:\n%s", out)
	}
	if !strings.Contains(out, "  author = {Vaswani, A. and Shazeer, N.},") {
		t.Fatalf("missing author field:\n%s", out)
	}
	if !strings.Contains(out, "  year = {2017},") {
		t.Fatalf("missing year field:\n%s", out)
	}
	if !strings.Contains(out, "  note = {Vaswani et al. 2017.},") {
		t.Fatalf("missing note field:\n%s", out)
	}
}

func TestFormatBibTeXDeduplicatesKeys(t *testing.T) {
	out := FormatBibTeX("paper.pdf", []documents.Citation{
		{Title: "First", Authors: "Smith, J.", Year: 2020, RawText: "Smith 2020a."},
		{Title: "Second", Authors: "Smith, J.", Year: 2020, RawText: "Smith 2020b."},
		{Title: "Third", Authors: "Smith, J.", Year: 2020, RawText: "Smith 2020c."},
	})

	for _, key := range []string{"@misc{smith2020,", "@misc{smith2020-2,", "@misc{smith2020-3,"} {
		if !strings.Contains(out, key) {
			t.Fatalf("missing key %q:\n%s", key, out)
		}
	}
}

func TestFormatBibTeXFallbacks(t *testing.T) {
	out := FormatBibTeX("paper.pdf", []documents.Citation{
		// No title: raw text serves as the title, first title word as key base.
		{Authors: "", Year: 0, RawText: "An unstructured reference line."},
		// No authors: key falls back to the first title word.
		{Title: "Untitled Manuscript", Year: 1999, RawText: "raw"},
	})

	if !strings.Contains(out, "  title = {An unstructured reference line.},") {
		t.Fatalf("raw-text title fallback missing:\n%s", out)
	}
	if !strings.Contains(out, "@misc{ref,") {
		t.Fatalf("expected bare ref key for empty fields:\n%s", out)
	}
	if !strings.Contains(out, "@misc{untitled1999,") {
		t.Fatalf("expected title-word key:\n%s", out)
	}
	if strings.Contains(out, "  author = {},") {
		t.Fatal("empty author field should be omitted")
	}
}

func TestFormatBibTeXEscapesBraces(t *testing.T) {
	out := FormatBibTeX("paper.pdf", []documents.Citation{
		{Title: "On {Curly} Notation", Authors: "Lee, B.", Year: 2022, RawText: "Lee {2022}."},
	})

	if !strings.Contains(out, `title = {On \{Curly\} Notation}`) {
		t.Fatalf("braces not escaped in title:\n%s", out)
	}
	if !strings.Contains(out, `note = {Lee \{2022\}.}`) {
		t.Fatalf("braces not escaped in note:\n%s", out)
	}
}

func TestFormatBibTeXEmpty(t *testing.T) {
	out := FormatBibTeX("paper.pdf", nil)
	if out != "% Citations extracted from paper.pdf\n" {
		t.Fatalf("expected header only, got:\n%s", out)
	}
}
