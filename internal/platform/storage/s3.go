package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/shared"
)

var _ receipt.Store = (*S3Store)(nil)

// S3Store keeps receipts in any S3-compatible bucket (AWS S3, MinIO and the like)
type S3Store struct {
	client     *s3.Client
	bucket     string
	publicBase string
	maxSize    int64
	logger     *slog.Logger
}

// NewS3Store creates the store from configuration
func NewS3Store(cfg *config.ReceiptsConfig, logger *slog.Logger) (*S3Store, error) {
	if cfg == nil {
		return nil, errors.New("receipts configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("receipts bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("receipts access key and secret key are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid receipts endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}

	return newS3Store(client, cfg.Bucket, publicBase, cfg.MaxSizeBytes, logger), nil
}

func newS3Store(client *s3.Client, bucket, publicBase string, maxSize int64, logger *slog.Logger) *S3Store {
	return &S3Store{
		client:     client,
		bucket:     bucket,
		publicBase: publicBase,
		maxSize:    maxSize,
		logger:     logger,
	}
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating receipts bucket", "bucket", s.bucket)
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload stores data under objectPath and returns its public URL
func (s *S3Store) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if err := validateUpload(objectPath, contentType, data, s.maxSize); err != nil {
		return "", err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectPath),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(receipt.NormalizeContentType(contentType)),
	})
	if err != nil {
		s.logger.Error("Failed to upload receipt", "bucket", s.bucket, "key", objectPath, "error", err)
		return "", classifyS3Error("receipt upload", err)
	}

	return objectURL(s.publicBase, objectPath), nil
}

// Delete removes the object behind publicURL
func (s *S3Store) Delete(ctx context.Context, publicURL string) error {
	objectPath, err := objectPathFromURL(s.publicBase, publicURL)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return classifyS3Error("receipt delete", err)
	}
	return nil
}

// classifyS3Error marks throttling, server-side and transport failures as transient
func classifyS3Error(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s canceled: %w", op, err)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return shared.NewTransientError(op, err)
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return shared.NewTransientError(op, err)
}
