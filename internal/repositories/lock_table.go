package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// lockTable hands out exclusive, timeout-bounded locks keyed by row id.
// Each slot is a one-element semaphore so waiting can be abandoned.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

// lockSlot counts the holder and waiters; it is dropped once none remain.
type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (t *lockTable) ref(key string) *lockSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		t.slots[key] = s
	}
	s.refs++
	return s
}

func (t *lockTable) unref(key string, s *lockSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(t.slots, key)
	}
}

// acquire blocks until key is free, ctx is done or timeout elapses.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	s := t.ref(key)

	// fast path, also avoids allocating a timer when uncontended
	select {
	case s.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-timer.C:
		t.unref(key, s)
		return fmt.Errorf("lock %s: %w", key, ErrLockTimeout)
	case <-ctx.Done():
		t.unref(key, s)
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (t *lockTable) release(key string) {
	t.mu.Lock()
	s := t.slots[key]
	t.mu.Unlock()
	<-s.ch
	t.unref(key, s)
}
