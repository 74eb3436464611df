package fetcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/IshaanNene/hotboard/internal/config"
)

// Backoff curves.
const (
	CurveFixed       = "fixed"
	CurveLinear      = "linear"
	CurveExponential = "exponential"
)

// maxBackoff caps any single wait between attempts.
const maxBackoff = 2 * time.Minute

// RetryPolicy decides how often and how long to wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Curve      string
	Jitter     bool
}

// PolicyFromConfig builds the retry policy for the HTTP fetcher.
func PolicyFromConfig(cfg *config.FetcherConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		Curve:      cfg.BackoffCurve,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	var d time.Duration
	switch p.Curve {
	case CurveLinear:
		d = p.Backoff * time.Duration(n)
	case CurveExponential:
		d = p.Backoff << (n - 1)
	default:
		d = p.Backoff
	}
	if d > maxBackoff || d < 0 {
		d = maxBackoff
	}
	if p.Jitter {
		d = RandomDelay(d)
	}
	return d
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}
