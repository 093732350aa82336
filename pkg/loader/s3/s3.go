package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"bionexus/pkg/ai"
	"bionexus/pkg/common"
	"bionexus/pkg/loader"
)

// S3FileLoader is a FileLoader implementation that loads scanned
// publications from an S3-compatible bucket using the AWS SDK v2.
type S3FileLoader struct {
	bucket string
	client *s3.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3FileLoaderWithClient creates a new S3FileLoader using an existing
// s3.Client. This is useful when reusing a preconfigured AWS client.
func NewS3FileLoaderWithClient(bucket string, client *s3.Client) *S3FileLoader {
	return &S3FileLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// NewS3FileLoaderParams defines the configuration parameters for creating
// a new S3FileLoader.
//
// Endpoint allows overriding the S3 endpoint for S3-compatible storage
// like MinIO.
type NewS3FileLoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3FileLoader creates a new S3FileLoader using the provided
// parameters. It initializes an AWS S3 client with static credentials and
// the given endpoint/region.
func NewS3FileLoader(ctx context.Context, params NewS3FileLoaderParams) (*S3FileLoader, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg)

	return &S3FileLoader{
		bucket: params.Bucket,
		client: client,
		cache:  make(map[string][]byte),
	}, nil
}

// GetFileBytes retrieves the contents of the given document from the
// configured S3 bucket.
func (l *S3FileLoader) GetFileBytes(ctx context.Context, doc common.Document) ([]byte, error) {
	cacheKey := loader.CacheKey(doc)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(doc.Path),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// GetBase64 retrieves the document and returns it encoded as base64 with
// the appropriate MIME prefix.
func (l *S3FileLoader) GetBase64(ctx context.Context, doc common.Document) (ai.ImageData, error) {
	b, err := l.GetFileBytes(ctx, doc)
	if err != nil {
		return ai.ImageData{}, err
	}

	return ai.ImageData{
		Base64:     base64.StdEncoding.EncodeToString(b),
		MimePrefix: loader.Base64Prefix(doc.Path),
	}, nil
}
