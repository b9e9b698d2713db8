package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum spacing between requests, shared by every
// backend. Callers block until their slot comes up.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle; spacing <= 0 disables it.
func NewThrottle(spacing time.Duration) *Throttle {
	if spacing <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(spacing), 1)}
}

// Wait blocks until the next request may be made or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
