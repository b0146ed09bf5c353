package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebank-ledger/internal/config"
	"github.com/bytebank-ledger/internal/domain/shared"
)

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int
}

func (f *fakeS3) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	status, ok := f.status[r.Method]
	f.mu.Unlock()

	if !ok {
		status = http.StatusOK
	}
	if status >= 300 {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>TestError</Code><Message>injected</Message></Error>`)
		}
		return
	}
	w.WriteHeader(status)
}

func (f *fakeS3) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestS3Store(t *testing.T, fake *fakeS3) *S3Store {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		Credentials:      credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		RetryMaxAttempts: 1,
	})
	return newS3Store(client, "byte-bank", "https://cdn.bytebank.dev/byte-bank", 0, newTestLogger())
}

func TestNewS3Store_Validation(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewS3Store(nil, newTestLogger())
		assert.Error(t, err)
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := NewS3Store(&config.ReceiptsConfig{AccessKey: "k", SecretKey: "s"}, newTestLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := NewS3Store(&config.ReceiptsConfig{Bucket: "byte-bank"}, newTestLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key and secret key")
	})

	t.Run("public base defaults to endpoint and bucket", func(t *testing.T) {
		store, err := NewS3Store(&config.ReceiptsConfig{
			Bucket:       "byte-bank",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     "http://localhost:9000/",
			UsePathStyle: true,
		}, newTestLogger())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000/byte-bank", store.publicBase)
	})
}

func TestS3Store_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		fake := &fakeS3{}
		store := newTestS3Store(t, fake)

		url, err := store.Upload(ctx, "receipts/u1/t1/1.jpg", "image/jpg", []byte("jpeg-bytes"))
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.bytebank.dev/byte-bank/receipts/u1/t1/1.jpg", url)

		req := fake.last()
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/byte-bank/receipts/u1/t1/1.jpg", req.Path)
		assert.Equal(t, "image/jpeg", req.ContentType)
	})

	t.Run("rejected before any request", func(t *testing.T) {
		fake := &fakeS3{}
		store := newTestS3Store(t, fake)

		_, err := store.Upload(ctx, "receipts/u1/t1/1.gif", "image/gif", []byte("gif"))
		assert.ErrorIs(t, err, shared.ValidationError{})
		assert.Empty(t, fake.requests)
	})

	t.Run("server error is transient", func(t *testing.T) {
		fake := &fakeS3{status: map[string]int{http.MethodPut: http.StatusServiceUnavailable}}
		store := newTestS3Store(t, fake)

		_, err := store.Upload(ctx, "receipts/u1/t1/1.png", "image/png", []byte("png"))
		require.Error(t, err)
		assert.True(t, shared.IsTransient(err))
	})

	t.Run("access denied is terminal", func(t *testing.T) {
		fake := &fakeS3{status: map[string]int{http.MethodPut: http.StatusForbidden}}
		store := newTestS3Store(t, fake)

		_, err := store.Upload(ctx, "receipts/u1/t1/1.png", "image/png", []byte("png"))
		require.Error(t, err)
		assert.False(t, shared.IsTransient(err))
	})
}

func TestS3Store_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		fake := &fakeS3{status: map[string]int{http.MethodDelete: http.StatusNoContent}}
		store := newTestS3Store(t, fake)

		err := store.Delete(ctx, "https://cdn.bytebank.dev/byte-bank/receipts/u1/t1/1.jpg")
		require.NoError(t, err)

		req := fake.last()
		assert.Equal(t, http.MethodDelete, req.Method)
		assert.Equal(t, "/byte-bank/receipts/u1/t1/1.jpg", req.Path)
	})

	t.Run("foreign url", func(t *testing.T) {
		fake := &fakeS3{}
		store := newTestS3Store(t, fake)

		err := store.Delete(ctx, "https://elsewhere.dev/x.jpg")
		assert.ErrorIs(t, err, ErrForeignURL)
		assert.Empty(t, fake.requests)
	})
}

func TestS3Store_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		fake := &fakeS3{}
		store := newTestS3Store(t, fake)

		require.NoError(t, store.EnsureBucket(ctx))
		require.Len(t, fake.requests, 1)
		assert.Equal(t, http.MethodHead, fake.requests[0].Method)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		fake := &fakeS3{status: map[string]int{http.MethodHead: http.StatusNotFound}}
		store := newTestS3Store(t, fake)

		require.NoError(t, store.EnsureBucket(ctx))
		require.Len(t, fake.requests, 2)
		assert.Equal(t, http.MethodPut, fake.requests[1].Method)
		assert.Equal(t, "/byte-bank", strings.TrimSuffix(fake.requests[1].Path, "/"))
	})
}
