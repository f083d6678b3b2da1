package lease

import (
	"context"
	"sync"
	"time"

	"NewsDigest/internal/ports"
)

// LocalLease serialises runs within one process.
type LocalLease struct {
	mu sync.Mutex
}

var _ ports.RunLease = (*LocalLease)(nil)

// NewLocalLease returns an unlocked lease.
func NewLocalLease() *LocalLease {
	return &LocalLease{}
}

// Acquire never blocks; ttl is ignored because the holder always releases in-process.
func (l *LocalLease) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, ports.ErrLeaseHeld
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}
