package logging

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	defaultThrottleEvery = 12 * time.Second
	defaultThrottleBurst = 5
)

// ThrottledAdapter rate-limits warnings and errors so a failing endpoint cannot flood the log.
// Debug and info events pass through unchanged.
type ThrottledAdapter struct {
	inner     Adapter
	limiter   *rate.Limiter
	throttled atomic.Bool
	dropped   atomic.Int64
}

// NewThrottled allows one warning or error per every, with the given burst.
// Non-positive values fall back to five events per minute.
func NewThrottled(inner Adapter, every time.Duration, burst int) *ThrottledAdapter {
	if inner == nil {
		inner = NewNoopAdapter()
	}

	if every <= 0 {
		every = defaultThrottleEvery
	}

	if burst <= 0 {
		burst = defaultThrottleBurst
	}

	return &ThrottledAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Debug implements Adapter.
func (t *ThrottledAdapter) Debug(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	t.inner.Debug(ctx, msg, attrs...)
}

// Info implements Adapter.
func (t *ThrottledAdapter) Info(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	t.inner.Info(ctx, msg, attrs...)
}

// Warn implements Adapter.
func (t *ThrottledAdapter) Warn(ctx context.Context, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx) {
		t.inner.Warn(ctx, msg, attrs...)
	}
}

// Error implements Adapter.
func (t *ThrottledAdapter) Error(ctx context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	if t.allow(ctx) {
		t.inner.Error(ctx, err, msg, attrs...)
	}
}

// Dropped returns the number of events suppressed so far.
func (t *ThrottledAdapter) Dropped() int64 {
	return t.dropped.Load()
}

func (t *ThrottledAdapter) allow(ctx context.Context) bool {
	if t.limiter.Allow() {
		if t.throttled.Swap(false) {
			t.inner.Info(ctx, "diagnostic logging resumed", attribute.Int64("suppressed", t.dropped.Load()))
		}

		return true
	}

	t.dropped.Add(1)

	if !t.throttled.Swap(true) {
		t.inner.Warn(ctx, "too many diagnostic messages, throttling further warnings")
	}

	return false
}
