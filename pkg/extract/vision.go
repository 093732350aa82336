package extract

import (
	"context"
	"time"

	"bionexus/pkg/ai"
	"bionexus/pkg/loader"
)

// VisionTextExtractor transcribes page images through a vision-capable
// model.
type VisionTextExtractor struct {
	client  ai.Client
	timeout time.Duration
}

// NewVisionTextExtractor creates a vision OCR extractor. A timeout of zero
// falls back to two minutes per page.
func NewVisionTextExtractor(client ai.Client, timeout time.Duration) *VisionTextExtractor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &VisionTextExtractor{
		client:  client,
		timeout: timeout,
	}
}

// ExtractPageText sends the rendered page to the vision model and returns
// the transcription.
func (e *VisionTextExtractor) ExtractPageText(ctx context.Context, png []byte) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.client.GenerateImageDescription(rCtx, ai.PageOCRPrompt, loader.PNGImageData(png))
}
