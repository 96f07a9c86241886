package kvcache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every failure caused by the backing store being unreachable
// or misbehaving. Callers treat it as a signal to degrade, not to fail.
var ErrUnavailable = errors.New("kvcache: store unavailable")

// Result is one slot of a batched read. Found distinguishes an absent key from
// a key holding an empty value.
type Result struct {
	Value []byte
	Found bool
}

// Item is one key written by BatchSet. A zero TTL keeps the key until deleted.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Store is the batch read / batch write capability the caches need.
type Store interface {
	BatchGet(ctx context.Context, keys []string) ([]Result, error)
	BatchSet(ctx context.Context, items []Item) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
}
