package market

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"call-ath-tracker/internal/observability"
)

// Budget is the provider's shared request allowance. It combines a token
// bucket (requests per minute) with a fixed minimum gap between consecutive
// calls. One Budget is shared by every goroutine talking to the provider.
type Budget struct {
	name        string
	limiter     *rate.Limiter
	minInterval time.Duration

	mu       sync.Mutex
	nextCall time.Time
}

// NewBudget creates a budget allowing requestsPerMinute with the given burst,
// never issuing two calls closer than minInterval.
// A non-positive requestsPerMinute disables the token bucket.
func NewBudget(name string, requestsPerMinute float64, burst int, minInterval time.Duration) *Budget {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &Budget{
		name:        name,
		limiter:     rate.NewLimiter(limit, burst),
		minInterval: minInterval,
	}
}

// Unlimited returns a budget that never waits. Intended for tests.
func Unlimited(name string) *Budget {
	return NewBudget(name, 0, 1, 0)
}

// Wait blocks until a call may be issued or ctx is done.
func (b *Budget) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.RecordBudgetWait(b.name, time.Since(start).Seconds())
	}()

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if b.minInterval <= 0 {
		return nil
	}

	// Reserve the next slot under the lock, sleep outside it.
	b.mu.Lock()
	now := time.Now()
	slot := b.nextCall
	if slot.Before(now) {
		slot = now
	}
	b.nextCall = slot.Add(b.minInterval)
	b.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tokens returns the currently available tokens in the bucket.
func (b *Budget) Tokens() float64 {
	return b.limiter.Tokens()
}
