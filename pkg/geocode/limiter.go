package geocode

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttler spaces outbound provider calls. Wait blocks before a call and
// Done marks that the call has returned.
type Throttler interface {
	Wait(ctx context.Context) error
	Done()
}

// RateLimiter guarantees a minimum interval between the return of one
// provider call and the start of the next. One instance is shared by every
// call in a run; there is no burst allowance.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
}

// NewRateLimiter creates a RateLimiter. An interval <= 0 disables throttling.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	l := &RateLimiter{interval: interval}
	if interval <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		l.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return l
}

// Interval returns the configured minimum spacing.
func (l *RateLimiter) Interval() time.Duration { return l.interval }

// Wait blocks until the interval since the previous Done has elapsed.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: rate limit wait")
	}
	return nil
}

// Done restarts the interval from now. The token bucket is replaced by one
// whose only token was spent at return time.
func (l *RateLimiter) Done() {
	if l.interval <= 0 {
		return
	}
	now := time.Now()
	lim := rate.NewLimiter(rate.Every(l.interval), 1)
	lim.AllowN(now, 1)

	l.mu.Lock()
	l.limiter = lim
	l.mu.Unlock()
}

type noopThrottler struct{}

func (noopThrottler) Wait(context.Context) error { return nil }
func (noopThrottler) Done()                      {}
