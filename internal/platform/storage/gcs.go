package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/shared"
)

var _ receipt.Store = (*GCSStore)(nil)

// GCSStore keeps receipts in a Google Cloud Storage bucket
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
	maxSize    int64
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGCSStore creates the store. Without a credentials file it relies on
// Application Default Credentials.
func NewGCSStore(ctx context.Context, cfg *config.ReceiptsConfig, logger *slog.Logger) (*GCSStore, error) {
	if cfg == nil {
		return nil, errors.New("receipts configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("receipts bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + cfg.Bucket
	}

	return &GCSStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
		maxSize:    cfg.MaxSizeBytes,
		timeout:    2 * time.Minute,
		logger:     logger,
	}, nil
}

// Upload writes data to the bucket and returns the object's public URL
func (s *GCSStore) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if err := validateUpload(objectPath, contentType, data, s.maxSize); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = receipt.NormalizeContentType(contentType)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		s.logger.Error("Failed to write receipt to GCS", "bucket", s.bucket, "object", objectPath, "error", err)
		return "", classifyGCSError("receipt upload", err)
	}
	if err := w.Close(); err != nil {
		s.logger.Error("Failed to finalize receipt upload", "bucket", s.bucket, "object", objectPath, "error", err)
		return "", classifyGCSError("receipt upload", err)
	}

	return objectURL(s.publicBase, objectPath), nil
}

// Delete removes the object behind publicURL. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, publicURL string) error {
	objectPath, err := objectPathFromURL(s.publicBase, publicURL)
	if err != nil {
		return err
	}

	err = s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return classifyGCSError("receipt delete", err)
	}
	return nil
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func classifyGCSError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return shared.NewTransientError(op, err)
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s canceled: %w", op, err)
	}
	return shared.NewTransientError(op, err)
}
