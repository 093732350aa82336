package extract

import (
	"context"
	"time"

	"bionexus/pkg/ai"
)

// AIEmbedder produces page embeddings through the configured embedding
// model.
type AIEmbedder struct {
	client  ai.Client
	timeout time.Duration
}

// NewAIEmbedder creates a model-backed embedder. A timeout of zero falls
// back to one minute per page.
func NewAIEmbedder(client ai.Client, timeout time.Duration) *AIEmbedder {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &AIEmbedder{
		client:  client,
		timeout: timeout,
	}
}

// EmbedPage returns the embedding vector for the page text.
func (e *AIEmbedder) EmbedPage(ctx context.Context, text string) ([]float32, error) {
	rCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.client.GenerateEmbedding(rCtx, []byte(text))
}
