// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadable indicates corrupt or unsupported input bytes.
var ErrUnreadable = errors.New("unreadable document")

// Text extracts plain text from raw document bytes. Supported formats: PDF
// (github.com/ledongthuc/pdf), DOCX (word/document.xml inside the zip), and
// plain text / markdown passthrough. Empty extraction results are treated as
// unreadable so callers never chunk an empty document.
func Text(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnreadable)
	}

	var (
		text string
		err  error
	)
	switch detectFormat(data, filename) {
	case formatPDF:
		text, err = extractPDF(data)
	case formatDOCX:
		text, err = extractDOCX(data)
	case formatText:
		text = string(data)
	default:
		return "", fmt.Errorf("%w: unsupported format for %q", ErrUnreadable, filename)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreadable, err.Error())
	}

	text = normalize(text)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrUnreadable)
	}
	return text, nil
}

type format int

const (
	formatUnknown format = iota
	formatPDF
	formatDOCX
	formatText
)

func detectFormat(data []byte, filename string) format {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return formatPDF
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		if hasZipEntry(data, "word/document.xml") {
			return formatDOCX
		}
		return formatUnknown
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return formatPDF
	case ".docx":
		return formatDOCX
	case ".txt", ".md", ".text", "":
		if utf8.Valid(data) {
			return formatText
		}
	}
	if utf8.Valid(data) {
		return formatText
	}
	return formatUnknown
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return buf.String()
}

func hasZipEntry(data []byte, entry string) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == entry {
			return true
		}
	}
	return false
}

// normalize collapses Windows line endings and trims surrounding whitespace.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
