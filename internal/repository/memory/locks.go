package memory

import (
	"context"
	"sync"
	"time"
)

type Locks struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocks() *Locks {
	return &Locks{held: make(map[int64]bool)}
}

func (l *Locks) LockOrder(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[orderID] {
		return false, nil
	}
	l.held[orderID] = true
	return true, nil
}

func (l *Locks) UnlockOrder(ctx context.Context, orderID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, orderID)
	return nil
}
