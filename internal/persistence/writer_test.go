package persistence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

func TestWriterQueue_RetriesAndDrainsOnShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := NewWriterQueue(logger, 8)

	var attempts, writes atomic.Int32
	queue.Enqueue("flaky", func(context.Context) error {
		if attempts.Add(1) < 2 {
			return errors.New("busy")
		}
		writes.Add(1)
		return nil
	})
	queue.Enqueue("ok", func(context.Context) error {
		writes.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	queue.Start(ctx)
	queue.Wait()

	if writes.Load() != 2 {
		t.Fatalf("expected both writes to complete, got %d", writes.Load())
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected flaky write to be retried once, got %d attempts", attempts.Load())
	}
}
