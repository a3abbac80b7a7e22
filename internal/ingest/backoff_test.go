package ingest

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 0, want: 5 * time.Second},
		{failures: 1, want: 7500 * time.Millisecond},
		{failures: 3, want: 16875 * time.Millisecond},
		{failures: 10, want: 60 * time.Second},
		{failures: -1, want: 5 * time.Second},
	}

	for _, tc := range tests {
		if got := BackoffDelay(tc.failures, 5*time.Second, 60*time.Second); got != tc.want {
			t.Fatalf("failures=%d: expected %v, got %v", tc.failures, tc.want, got)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	if got := jitterWith(time.Second, 0); got != 750*time.Millisecond {
		t.Fatalf("expected lower bound 750ms, got %v", got)
	}
	if got := jitterWith(time.Second, 1); got != 1250*time.Millisecond {
		t.Fatalf("expected upper bound 1250ms, got %v", got)
	}
	for i := 0; i < 100; i++ {
		got := Jitter(time.Second)
		if got < 750*time.Millisecond || got > 1250*time.Millisecond {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
}

func TestSleepWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sleepWithContext(ctx, time.Hour) {
		t.Fatalf("expected cancelled sleep to return false")
	}
}
