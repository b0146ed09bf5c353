// Package storage holds the receipt object store adapters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/receipt"
)

// ErrForeignURL is returned when a URL was not issued by this store
var ErrForeignURL = errors.New("receipt URL does not belong to this store")

// NewReceiptStore builds the adapter selected by cfg.Driver
func NewReceiptStore(ctx context.Context, cfg *config.ReceiptsConfig, logger *slog.Logger) (receipt.Store, error) {
	switch cfg.Driver {
	case "s3":
		store, err := NewS3Store(cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		return NewGCSStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown receipts driver %q", cfg.Driver)
	}
}

// objectURL joins the public base and an object path
func objectURL(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(objectPath, "/")
}

// objectPathFromURL reverses objectURL
func objectPathFromURL(base, publicURL string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", ErrForeignURL
	}
	objectPath := strings.TrimPrefix(publicURL, prefix)
	if i := strings.IndexAny(objectPath, "?#"); i >= 0 {
		objectPath = objectPath[:i]
	}
	if objectPath == "" {
		return "", ErrForeignURL
	}
	return objectPath, nil
}

// validateUpload repeats the attachment checks at the store boundary
func validateUpload(objectPath, contentType string, data []byte, maxSize int64) error {
	if objectPath == "" {
		return errors.New("object path is required")
	}
	a := receipt.Attachment{FileName: objectPath, ContentType: contentType, Data: data}
	return a.Validate(maxSize)
}
