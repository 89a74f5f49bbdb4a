package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned when a key is absent. Callers treat a miss as
// "go to the database", never as a failure.
var ErrCacheMiss = errors.New("cache: key not found")

// CacheService is the read-through cache used for attempt state. Values
// are JSON-encoded; Get decodes into dest.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// AttemptStateKey is the cache key for one attempt's aggregated state.
func AttemptStateKey(attemptID uint) string {
	return fmt.Sprintf("attempt_state:%d", attemptID)
}
