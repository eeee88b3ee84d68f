package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker in process. Used in memory mode and tests.
type MemoryLocker struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	leases map[string]Lease
}

// NewMemoryLocker creates an in-process locker. A zero ttl uses DefaultTTL.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryLocker{
		ttl:    ttl,
		now:    time.Now,
		leases: make(map[string]Lease),
	}
}

// Acquire takes the lease for key or returns ErrHeld.
func (l *MemoryLocker) Acquire(_ context.Context, key string) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.ExpiresAt) {
		return nil, ErrHeld
	}

	held := Lease{Key: key, Token: uuid.NewString(), ExpiresAt: now.Add(l.ttl)}
	l.leases[key] = held
	return &held, nil
}

// Release drops the lease if still owned.
func (l *MemoryLocker) Release(_ context.Context, held *Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[held.Key]
	if !ok || cur.Token != held.Token {
		return ErrNotHeld
	}
	delete(l.leases, held.Key)
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
