package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	appconfig "github.com/baechuer/content-platform/internal/config"
)

// S3Client wraps the AWS S3 client for MinIO/R2 media blobs.
type S3Client struct {
	client   *s3.Client
	bucket   string
	endpoint string
	log      zerolog.Logger
}

// NewS3Client creates a client for the configured endpoint and bucket.
func NewS3Client(ctx context.Context, cfg *appconfig.Config, log zerolog.Logger) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewFromConfig(awsCfg, cfg.S3Endpoint, cfg.MediaBucket, cfg.S3UsePathStyle, log), nil
}

// NewFromConfig builds the client from an existing aws.Config.
func NewFromConfig(awsCfg aws.Config, endpoint, bucket string, pathStyle bool, log zerolog.Logger) *S3Client {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return &S3Client{
		client:   client,
		bucket:   bucket,
		endpoint: strings.TrimRight(endpoint, "/"),
		log:      log,
	}
}

// DeleteObject removes the blob. A blob that is already gone is success.
func (c *S3Client) DeleteObject(ctx context.Context, objectKey string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object %s: %w", objectKey, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (c *S3Client) Ping(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	return err
}

// EnsureBucket creates the media bucket if it doesn't exist.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	if err := c.Ping(ctx); err == nil {
		return nil
	}
	c.log.Info().Str("bucket", c.bucket).Msg("creating bucket")
	if _, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// PublicURL returns the path-style URL of an object.
func (c *S3Client) PublicURL(objectKey string) string {
	return c.endpoint + "/" + c.bucket + "/" + objectKey
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
