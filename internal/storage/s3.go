// Package storage keeps rendered page images in S3-compatible object
// storage so retrieval and export can serve the original scans without
// re-rendering PDFs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"bionexus/internal/util"
)

// NewS3Client builds an S3 client from the env configuration. Path-style
// addressing keeps MinIO and other S3-compatible stores working.
func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// PageImageKey is the object key for one rendered page.
func PageImageKey(pubID string, pageNumber int) string {
	return fmt.Sprintf("pages/%s/%03d.png", pubID, pageNumber)
}

// PutPageImage stores a rendered page and returns its object key.
func PutPageImage(ctx context.Context, client *s3.Client, pubID string, pageNumber int, png []byte) (string, error) {
	bucket := util.GetEnv("AWS_BUCKET")
	key := PageImageKey(pubID, pageNumber)

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(png),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return "", fmt.Errorf("upload page image: %w", err)
	}
	return key, nil
}

// GetPageImage fetches a stored page image by its object key.
func GetPageImage(ctx context.Context, client *s3.Client, key string) ([]byte, error) {
	bucket := util.GetEnv("AWS_BUCKET")

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get page image: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("read page image: %w", err)
	}
	return buf.Bytes(), nil
}

// DeletePublicationImages removes every stored page image of a
// publication, paging through the listing as needed.
func DeletePublicationImages(ctx context.Context, client *s3.Client, pubID string) error {
	bucket := util.GetEnv("AWS_BUCKET")
	prefix := "pages/" + pubID + "/"

	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("list page images for %s: %w", pubID, err)
		}
		if len(listOutput.Contents) == 0 {
			return nil
		}

		var objects []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("delete page images for %s: %w", pubID, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			return nil
		}
	}
}
