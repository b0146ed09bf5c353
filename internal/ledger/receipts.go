package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/platform/retry"
)

// receiptUploader pushes attachments to the receipt store, retrying transient failures
type receiptUploader struct {
	store   receipt.Store
	policy  retry.Policy
	maxSize int64
	now     func() time.Time
	logger  *slog.Logger
}

func newReceiptUploader(store receipt.Store, maxAttempts int, backoff time.Duration, maxSize int64, logger *slog.Logger) *receiptUploader {
	return &receiptUploader{
		store: store,
		policy: retry.Policy{
			MaxAttempts: maxAttempts,
			Backoff:     backoff,
			ShouldRetry: shared.IsTransient,
		},
		maxSize: maxSize,
		now:     time.Now,
		logger:  logger,
	}
}

func (u *receiptUploader) validate(a *receipt.Attachment) error {
	return a.Validate(u.maxSize)
}

// upload stores a and returns its public URL
func (u *receiptUploader) upload(ctx context.Context, userID, transactionID uuid.UUID, a *receipt.Attachment) (string, error) {
	contentType := a.ResolvedContentType()
	objectPath := receipt.ObjectPath(userID, transactionID, contentType, u.now())

	var url string
	attempts, err := retry.Do(ctx, u.policy, func(ctx context.Context, attempt int) error {
		var uploadErr error
		url, uploadErr = u.store.Upload(ctx, objectPath, contentType, a.Data)
		if uploadErr != nil {
			u.logger.Warn("Receipt upload attempt failed",
				"transaction_id", transactionID.String(),
				"attempt", attempt,
				"error", uploadErr,
			)
		}
		return uploadErr
	})
	if err != nil {
		u.logger.Error("Failed to upload receipt",
			"transaction_id", transactionID.String(),
			"attempts", attempts,
			"error", err,
		)
		return "", err
	}
	return url, nil
}

// discard deletes a receipt blob that is no longer referenced. Failures only leave
// an orphaned object behind.
func (u *receiptUploader) discard(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := u.store.Delete(ctx, url); err != nil {
		u.logger.Warn("Failed to delete receipt", "url", url, "error", err)
	}
}
