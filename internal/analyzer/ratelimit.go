package analyzer

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces requests so the service's per-minute quota is never exceeded.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for the given requests-per-minute quota.
// A non-positive quota disables pacing.
func NewLimiter(requestsPerMinute int) *Limiter {
	l := &Limiter{
		now:   time.Now,
		sleep: sleepContext,
	}
	if requestsPerMinute > 0 {
		l.interval = time.Minute / time.Duration(requestsPerMinute)
	}
	return l
}

// Wait blocks until the next request may be sent, or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	var wait time.Duration
	if l.interval > 0 && !l.last.IsZero() {
		if elapsed := l.now().Sub(l.last); elapsed < l.interval {
			wait = l.interval - elapsed
		}
	}
	l.last = l.now().Add(wait)
	l.mu.Unlock()

	if wait > 0 {
		return l.sleep(ctx, wait)
	}
	return ctx.Err()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
