// Package pdftext extracts plain text from PDF attachments.
package pdftext

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var magic = []byte("%PDF-")

// IsPDF reports whether filename names a PDF document.
func IsPDF(filename string) bool {
	return strings.EqualFold(path.Ext(strings.TrimSpace(filename)), ".pdf")
}

// Extract returns the text of at most maxPages pages (all pages when
// maxPages <= 0). Pages that fail to decode are skipped.
func Extract(content []byte, maxPages int) (text string, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, " \r\n\t"), magic) {
		return "", fmt.Errorf("not a pdf document")
	}

	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	pages := r.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimSpace(s))
	}
	return b.String(), nil
}
