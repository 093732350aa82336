package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractTextExtractor runs local Tesseract OCR on page images. It is
// the offline alternative to the vision-model extractor, selected via
// OCR_ADAPTER=tesseract.
type TesseractTextExtractor struct {
	languages []string

	// gosseract clients are not safe for concurrent use
	mu sync.Mutex
}

// NewTesseractTextExtractor creates a Tesseract-backed extractor. With no
// languages given, Tesseract's default (eng) applies.
func NewTesseractTextExtractor(languages ...string) *TesseractTextExtractor {
	return &TesseractTextExtractor{languages: languages}
}

// ExtractPageText runs OCR over the PNG bytes and returns the recognized
// text.
func (e *TesseractTextExtractor) ExtractPageText(ctx context.Context, png []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}

	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
