// Package receipt validates receipt attachments and lays out their object paths.
package receipt

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// MaxSize is the largest accepted attachment, in bytes
const MaxSize int64 = 5 * 1024 * 1024

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypePDF  = "application/pdf"
	ContentTypeWebP = "image/webp"
)

var allowedContentTypes = map[string]string{
	ContentTypeJPEG: "jpg",
	ContentTypePNG:  "png",
	ContentTypePDF:  "pdf",
}

// Attachment is an uploaded receipt file held in memory
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// NormalizeContentType lowercases ct, drops parameters and folds image/jpg into image/jpeg
func NormalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return ContentTypeJPEG
	}
	return ct
}

// InferContentType guesses the type from the file extension, defaulting to JPEG
func InferContentType(fileName string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(fileName), ".")) {
	case "png":
		return ContentTypePNG
	case "pdf":
		return ContentTypePDF
	case "webp":
		return ContentTypeWebP
	default:
		return ContentTypeJPEG
	}
}

// ResolvedContentType is the declared type, or the inferred one when none was declared
func (a *Attachment) ResolvedContentType() string {
	if ct := NormalizeContentType(a.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return InferContentType(a.FileName)
}

// Validate checks size and type. maxSize <= 0 means MaxSize.
func (a *Attachment) Validate(maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if len(a.Data) == 0 {
		return shared.NewValidationError("receipt", "file is empty")
	}
	if int64(len(a.Data)) > maxSize {
		return shared.NewValidationError("receipt", fmt.Sprintf("file too large, maximum is %d MB", maxSize/(1024*1024)))
	}
	if _, ok := allowedContentTypes[a.ResolvedContentType()]; !ok {
		return shared.NewValidationError("receipt", "file type not allowed, accepted types are JPG, PNG and PDF")
	}
	return nil
}

// ObjectPath lays out receipts/<user>/<transaction>/<unix millis>.<ext>
func ObjectPath(userID, transactionID uuid.UUID, contentType string, now time.Time) string {
	ext, ok := allowedContentTypes[NormalizeContentType(contentType)]
	if !ok {
		ext = "jpeg"
	}
	return fmt.Sprintf("receipts/%s/%s/%d.%s", userID, transactionID, now.UnixMilli(), ext)
}

// Store keeps receipt objects and hands out their public URLs
type Store interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)

	// Delete removes the object behind a URL previously returned by Upload
	Delete(ctx context.Context, publicURL string) error
}

// UploadFailedError reports a transaction that was saved while its receipt was not
type UploadFailedError struct {
	TransactionID uuid.UUID
	Err           error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("transaction %s saved but receipt upload failed: %v", e.TransactionID, e.Err)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Err
}
