package workerpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_SubmitAndWait(t *testing.T) {
	pool, err := New(2, newTestLogger())
	require.NoError(t, err)
	defer pool.Shutdown(time.Second)

	tests := []struct {
		name          string
		task          Task
		expectedError error
	}{
		{
			name:          "successful task",
			task:          func(ctx context.Context) error { return nil },
			expectedError: nil,
		},
		{
			name:          "failing task",
			task:          func(ctx context.Context) error { return errors.New("provisioning failed") },
			expectedError: errors.New("provisioning failed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pool.SubmitAndWait(context.Background(), "test", tt.task)
			if tt.expectedError != nil {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPool_SubmitAndWaitHonoursContext(t *testing.T) {
	pool, err := New(1, newTestLogger())
	require.NoError(t, err)
	defer pool.Shutdown(time.Second)

	release := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = pool.SubmitAndWait(ctx, "slow", func(ctx context.Context) error {
		<-release
		return nil
	})
	close(release)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_Concurrency(t *testing.T) {
	pool, err := New(5, newTestLogger())
	require.NoError(t, err)

	var counter atomic.Int32
	numTasks := 10
	var wg sync.WaitGroup
	wg.Add(numTasks)

	for i := 0; i < numTasks; i++ {
		require.NoError(t, pool.Submit(context.Background(), "count", func(ctx context.Context) error {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			counter.Add(1)
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(numTasks), counter.Load())
	assert.Equal(t, 5, pool.Capacity())
	require.NoError(t, pool.Shutdown(time.Second))
}

func TestPool_ShutdownDrainsInFlightWork(t *testing.T) {
	pool, err := New(2, newTestLogger())
	require.NoError(t, err)

	var finished atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), "drain", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	require.NoError(t, pool.Shutdown(time.Second))
	assert.True(t, finished.Load())

	err = pool.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestPool_ShutdownTimeout(t *testing.T) {
	pool, err := New(1, newTestLogger())
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Submit(context.Background(), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	}))

	err = pool.Shutdown(20 * time.Millisecond)
	assert.Error(t, err)
}

func TestPool_PanicIsContained(t *testing.T) {
	pool, err := New(1, newTestLogger())
	require.NoError(t, err)
	defer pool.Shutdown(time.Second)

	require.NoError(t, pool.Submit(context.Background(), "panics", func(ctx context.Context) error {
		panic("boom")
	}))

	err = pool.SubmitAndWait(context.Background(), "after", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
