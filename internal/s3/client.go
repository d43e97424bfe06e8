// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/netSkope/list-import-tool/internal/util"
	"go.uber.org/zap"
)

const (
	// Max retries for S3 operations
	maxS3Retries = 5
	// Initial retry delay
	initialRetryDelay = 1 * time.Second
)

// ObjectAPI is the subset of the S3 client used for reading inputs and
// uploading reports.
type ObjectAPI interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client reads CSV inputs from S3 and uploads error reports to it.
type Client struct {
	api        ObjectAPI
	uploader   *manager.Uploader
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewClient creates an S3 client from the AWS credential chain. A custom
// endpoint (LocalStack) switches to path-style addressing.
func NewClient(ctx context.Context, opts util.AWSOptions, logger *zap.Logger) (*Client, error) {
	awsCfg, err := util.LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})
	if opts.Endpoint != "" {
		logger.Info("Using custom S3 endpoint", zap.String("endpoint", opts.Endpoint))
	}
	return NewClientFromAPI(api, logger), nil
}

// NewClientFromAPI wraps an existing S3 API implementation.
func NewClientFromAPI(api ObjectAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api: api,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = 10 * 1024 * 1024 // 10MB per part
			u.Concurrency = 3             // 3 concurrent uploads
		}),
		logger:     logger,
		retryDelay: initialRetryDelay,
	}
}

// ParseURI splits s3://bucket/key into bucket and key.
func ParseURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 URI: %q", uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URI needs a bucket and a key: %q", uri)
	}
	return bucket, key, nil
}

// Open returns the object body. The caller closes it.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	c.logger.Info("Opened S3 object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", aws.ToInt64(out.ContentLength)))
	return out.Body, nil
}

// Upload uploads body to S3 with automatic multipart for large payloads.
func (c *Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	c.logger.Info("Uploading to S3",
		zap.String("bucket", bucket),
		zap.String("key", key))

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}

	c.logger.Info("Upload completed", zap.String("key", key))
	return nil
}

// UploadWithRetry uploads data with retry logic.
func (c *Client) UploadWithRetry(ctx context.Context, bucket, key string, data []byte) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= maxS3Retries; attempt++ {
		err := c.Upload(ctx, bucket, key, bytes.NewReader(data))
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < maxS3Retries {
			c.logger.Warn("Upload failed, retrying",
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxS3Retries),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxS3Retries, lastErr)
}
