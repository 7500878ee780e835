// Package cache remembers which checkout requests have already produced an
// order, so a retried request returns the same order instead of a second one.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// KeyIdemOrderCreate maps a client idempotency key to the created order id.
const KeyIdemOrderCreate = "idem:order:create:%s"

// DefaultTTL is how long a completed key is remembered.
const DefaultTTL = 24 * time.Hour

const pendingMarker = "__pending__"

// ErrInFlight is returned by Begin while another request holds the key.
var ErrInFlight = errors.New("idempotency key is in flight")

// IdempotencyStore claims keys for the duration of a checkout.
type IdempotencyStore interface {
	// Begin claims key. It returns the order id of a completed request with
	// the same key, "" when the caller now owns the key, or ErrInFlight.
	Begin(ctx context.Context, key string) (string, error)
	// Complete records the order created under key.
	Complete(ctx context.Context, key, orderID string) error
	// Abort frees key after a failed checkout so the client may retry.
	Abort(ctx context.Context, key string) error
}

func orderCreateKey(key string) string {
	return fmt.Sprintf(KeyIdemOrderCreate, key)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryIdempotencyStore keeps keys in process memory. It is used when no
// Redis address is configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryIdempotencyStore creates a new MemoryIdempotencyStore.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryIdempotencyStore{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) Begin(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := orderCreateKey(key)
	now := s.now()
	if e, ok := s.entries[k]; ok && now.Before(e.expiresAt) {
		if e.value == pendingMarker {
			return "", ErrInFlight
		}
		return e.value, nil
	}
	s.entries[k] = memoryEntry{value: pendingMarker, expiresAt: now.Add(s.ttl)}
	return "", nil
}

func (s *MemoryIdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[orderCreateKey(key)] = memoryEntry{value: orderID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Abort(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, orderCreateKey(key))
	return nil
}
