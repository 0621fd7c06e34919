package embedder

import (
	"context"
	"time"

	"github.com/graphmem/graphmem/internal/errs"
)

// RetryConfig controls the exponential backoff applied around transient
// embedder failures (spec §4.17): initial 1s, doubling, capped at 10s,
// up to 3 attempts.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the spec §4.17 defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
}

// Retrying wraps an Embedder with exponential-backoff retry. On
// exhaustion it returns an EmbedderUnavailable error; callers (the query
// planner) are expected to drop the semantic layer for that query.
type Retrying struct {
	inner Embedder
	cfg   RetryConfig
}

// NewRetrying wraps inner with the given retry policy.
func NewRetrying(inner Embedder, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &Retrying{inner: inner, cfg: cfg}
}

func (r *Retrying) Dimensions() int { return r.inner.Dimensions() }
func (r *Retrying) ModelID() string { return r.inner.ModelID() }

// Embed retries the inner embedder's call with exponential backoff.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vecs, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if attempt == r.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return nil, errs.Wrap(errs.KindEmbedderUnavailable, "embedder failed after retries", lastErr)
}
