// Package blob reads invoice documents from S3 compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

var (
	// ErrNotFound means the object key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrTooLarge means the object exceeds the caller's size limit.
	ErrTooLarge = errors.New("object too large")
)

// Object is an open object body. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Client wraps the S3 client for document reads
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new S3 client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 document storage is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRetryMaxAttempts(max(cfg.RetryMaxAttempts, 1)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3 compatible services such as Backblaze B2 and MinIO need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Blob] Initialized S3 client for bucket: %s", cfg.BucketName)
	return &Client{s3Client: s3Client, config: cfg}, nil
}

// Open starts reading an object. Objects larger than maxSize are rejected
// with ErrTooLarge before any body bytes are read.
func (c *Client) Open(ctx context.Context, key string, maxSize int64) (*Object, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get object %s: %v", apperrors.ErrTransient, key, err)
	}

	size := aws.ToInt64(out.ContentLength)
	if maxSize > 0 && size > maxSize {
		_ = out.Body.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, size)
	}

	return &Object{
		Body:        out.Body,
		Size:        size,
		ContentType: aws.ToString(out.ContentType),
	}, nil
}
