package diag

import (
	"context"
	"time"

	"github.com/vietddude/fleetclient/internal/infra/redis"
)

// CorrelationStore is the subset of the Redis client the mirror needs.
type CorrelationStore interface {
	PushCorrelation(ctx context.Context, operation, id string, limit int, ttl time.Duration) error
}

var _ CorrelationStore = (*redis.Client)(nil)

// RedisMirror copies recorded ids into Redis lists.
type RedisMirror struct {
	store   CorrelationStore
	limit   int
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisMirror keeps limit ids per operation, expiring idle lists after ttl.
func NewRedisMirror(store CorrelationStore, limit int, ttl time.Duration) *RedisMirror {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &RedisMirror{store: store, limit: limit, ttl: ttl, timeout: 2 * time.Second}
}

// Mirror implements Mirror.
func (m *RedisMirror) Mirror(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.PushCorrelation(ctx, e.Operation, e.CorrelationID, m.limit, m.ttl)
}
