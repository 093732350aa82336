package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PageImageSink archives rendered page images in object storage.
type PageImageSink struct {
	client *s3.Client
}

func NewPageImageSink(client *s3.Client) *PageImageSink {
	return &PageImageSink{client: client}
}

func (s *PageImageSink) StorePageImage(ctx context.Context, pubID string, pageNumber int, png []byte) (string, error) {
	return PutPageImage(ctx, s.client, pubID, pageNumber, png)
}
