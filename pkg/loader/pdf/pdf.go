package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageText extracts the embedded text layer of a single PDF page
// (1-based). Scanned publications usually have no text layer; callers
// should fall back to OCR when the result is empty.
func PageText(input []byte, pageNum int) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	if pageNum < 1 || pageNum > r.NumPage() {
		return "", fmt.Errorf("page %d out of range (1-%d)", pageNum, r.NumPage())
	}

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}

	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d text: %w", pageNum, err)
	}
	return strings.TrimSpace(text), nil
}

// PageCount returns the number of pages reported by the PDF structure.
func PageCount(input []byte) (int, error) {
	r, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return r.NumPage(), nil
}
