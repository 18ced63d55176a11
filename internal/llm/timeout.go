package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutProvider bounds every call with a per-request deadline.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps p so each Generate call runs under its own deadline.
// A zero or negative timeout returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &TimeoutProvider{inner: p, timeout: d}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.inner.Generate(callCtx, req)
	if err == nil {
		return resp, nil
	}

	// Only our own deadline becomes a backend error; a cancelled caller
	// context is passed through untouched.
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, &ErrProviderUnavailable{Err: ErrTimeout}
	}
	return nil, err
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}
