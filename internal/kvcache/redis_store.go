package kvcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultOpTimeout = 2 * time.Second

	pipelineBatchSize = 500
	scanCount         = 1000
)

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

type Option func(*RedisStore)

// WithTimeout bounds every round trip issued by the store.
func WithTimeout(timeout time.Duration) Option {
	return func(s *RedisStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	store := &RedisStore{
		client:  client,
		timeout: DefaultOpTimeout,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// BatchGet reads all keys with a single MGET.
func (s *RedisStore) BatchGet(ctx context.Context, keys []string) ([]Result, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("%w: no client", ErrUnavailable)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	values, err := s.client.MGet(opCtx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget: %w", ErrUnavailable, err)
	}

	results := make([]Result, len(keys))
	for i, raw := range values {
		switch v := raw.(type) {
		case nil:
		case string:
			results[i] = Result{Value: []byte(v), Found: true}
		case []byte:
			results[i] = Result{Value: v, Found: true}
		default:
			return nil, fmt.Errorf("kvcache: mget: unexpected value type %T", raw)
		}
	}
	return results, nil
}

// BatchSet writes all items through pipelines, flushing every pipelineBatchSize items.
func (s *RedisStore) BatchSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("%w: no client", ErrUnavailable)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	pipe := s.client.Pipeline()
	queued := 0

	flush := func() error {
		if queued == 0 {
			return nil
		}
		if _, err := pipe.Exec(opCtx); err != nil {
			return fmt.Errorf("%w: set pipeline exec: %w", ErrUnavailable, err)
		}
		pipe = s.client.Pipeline()
		queued = 0
		return nil
	}

	for _, item := range items {
		pipe.Set(opCtx, item.Key, item.Value, item.TTL)
		queued++
		if queued >= pipelineBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("%w: no client", ErrUnavailable)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Unlink(opCtx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: unlink: %w", ErrUnavailable, err)
	}
	return nil
}

// DeleteByPrefix walks the keyspace with SCAN and unlinks every matching key.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("%w: no client", ErrUnavailable)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	pattern := escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(opCtx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("%w: scan %q: %w", ErrUnavailable, pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Unlink(opCtx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: unlink: %w", ErrUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("%w: no client", ErrUnavailable)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
