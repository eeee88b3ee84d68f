// Package lease provides per-asset single-flight leases so that scans and
// audits never resolve the same asset concurrently.
package lease

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a crashed worker can block an asset.
const DefaultTTL = 5 * time.Minute

var (
	// ErrHeld is returned by Acquire when another owner holds the lease.
	ErrHeld = errors.New("lease held by another owner")

	// ErrNotHeld is returned by Release when the lease expired or was taken
	// over by another owner.
	ErrNotHeld = errors.New("lease not held")
)

// Lease is an acquired lock on a key.
type Lease struct {
	Key       string
	Token     string // owner token, checked on release
	ExpiresAt time.Time
}

// Locker acquires and releases leases.
type Locker interface {
	// Acquire takes the lease for key or returns ErrHeld.
	Acquire(ctx context.Context, key string) (*Lease, error)

	// Release drops the lease if it is still owned by l.Token.
	Release(ctx context.Context, l *Lease) error
}

// AssetKey returns the lease key for an asset.
func AssetKey(assetID string) string {
	return "ath:" + assetID
}

// With runs fn while holding the lease for key. Returns ErrHeld without
// calling fn when the lease is taken. Release errors are returned only when
// fn succeeded.
func With(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	held, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}

	fnErr := fn(ctx)

	// Release with a fresh context so a cancelled request still frees the key.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	relErr := l.Release(releaseCtx, held)

	if fnErr != nil {
		return fnErr
	}
	if relErr != nil && !errors.Is(relErr, ErrNotHeld) {
		return relErr
	}
	return nil
}
