package extract

import (
	"context"

	"bionexus/pkg/common"
)

// TextExtractor turns a rendered page image into text. Implementations
// cover AI-vision OCR and local Tesseract OCR.
type TextExtractor interface {
	ExtractPageText(ctx context.Context, png []byte) (string, error)
}

// EntityExtractor identifies typed biomedical entities and the
// relationships between them in the text of a single page.
type EntityExtractor interface {
	ExtractEntities(
		ctx context.Context,
		pub common.Publication,
		pageText string,
	) ([]common.Entity, []common.Relationship, error)
}

// Embedder produces the fixed-dimension embedding vector for a page.
type Embedder interface {
	EmbedPage(ctx context.Context, text string) ([]float32, error)
}
