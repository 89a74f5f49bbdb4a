package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "progress_retry_queue"

// RedisStore is the durable Store: entries live in a Redis list and
// survive process restarts. Head of the list is the front of the queue.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		key:    defaultQueueKey,
	}
}

func (s *RedisStore) Push(ctx context.Context, entries ...*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values, err := marshalEntries(entries)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("queue push: %w", err)
	}
	return nil
}

func (s *RedisStore) PushFront(ctx context.Context, entries ...*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// LPUSH prepends one at a time, so feed it in reverse to keep the
	// entries' relative order.
	values := make([]interface{}, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		data, err := json.Marshal(entries[i])
		if err != nil {
			return fmt.Errorf("queue marshal: %w", err)
		}
		values = append(values, data)
	}
	if err := s.client.LPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("queue push front: %w", err)
	}
	return nil
}

// PopAll snapshots and clears the list in one MULTI/EXEC so concurrent
// pushes land either wholly in the snapshot or wholly after it.
func (s *RedisStore) PopAll(ctx context.Context) ([]*Entry, error) {
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, s.key, 0, -1)
	pipe.Del(ctx, s.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue pop: %w", err)
	}

	raw := rangeCmd.Val()
	entries := make([]*Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("queue decode: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func marshalEntries(entries []*Entry) ([]interface{}, error) {
	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("queue marshal: %w", err)
		}
		values = append(values, data)
	}
	return values, nil
}
