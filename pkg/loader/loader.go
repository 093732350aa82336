package loader

import (
	"context"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
)

// FileLoader fetches the raw bytes of a scanned publication from its
// backing store. Implementations may load from the local filesystem or
// S3-compatible object storage.
type FileLoader interface {
	GetFileBytes(ctx context.Context, doc common.Document) ([]byte, error)
	GetBase64(ctx context.Context, doc common.Document) (ai.ImageData, error)
}

// CacheKey generates a unique cache key for a document based on its ID
// and path.
func CacheKey(doc common.Document) string {
	return doc.ID + ":" + doc.Path
}
