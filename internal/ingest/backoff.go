package ingest

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const (
	backoffFactor = 1.5
	jitterRatio   = 0.25
)

// BackoffDelay returns base*1.5^failures capped at max, before jitter.
func BackoffDelay(failures int, base, max time.Duration) time.Duration {
	if failures < 0 {
		failures = 0
	}
	d := float64(base) * math.Pow(backoffFactor, float64(failures))
	if max > 0 && d > float64(max) {
		return max
	}

	return time.Duration(d)
}

// Jitter spreads d uniformly over [0.75*d, 1.25*d].
func Jitter(d time.Duration) time.Duration {
	return jitterWith(d, rand.Float64())
}

func jitterWith(d time.Duration, r float64) time.Duration {
	return time.Duration(float64(d) * (1 - jitterRatio + 2*jitterRatio*r))
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
