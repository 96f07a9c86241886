package listcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"warnlist/internal/config"
	"warnlist/internal/domain"
	"warnlist/internal/kvcache"
	"warnlist/internal/warninglist"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	IndexKey         = "warnlist:index"
	EntriesKeyPrefix = "warnlist:entries:"
	// MemoKeyPrefix namespaces lookup memo entries. Every invalidation purges it.
	MemoKeyPrefix = "warnlist:wlc:"
)

// ListStore is the source of truth the cache fills from.
type ListStore interface {
	FindEnabled(ctx context.Context) ([]domain.ListSummary, error)
	FindEntries(ctx context.Context, id uint) ([]string, error)
}

// Cache keeps the enabled-list index and normalized entry sets in two tiers: a
// process-local tier that lives for one lookup batch and an optional
// distributed tier shared by all instances.
type Cache struct {
	store  ListStore
	kv     kvcache.Store
	keyTTL func() time.Duration

	group singleflight.Group

	mu          sync.Mutex
	index       []domain.ListSummary
	indexLoaded bool
	entries     map[uint]*warninglist.EntrySet
}

type Option func(*Cache)

// WithKeyTTL overrides how long index and entries keys live in the
// distributed tier. It defaults to the list refresh interval, so a set written
// by a lookup racing an invalidation is replaced within one refresh cycle.
func WithKeyTTL(fn func() time.Duration) Option {
	return func(c *Cache) {
		if fn != nil {
			c.keyTTL = fn
		}
	}
}

// New builds a cache over store. kv may be nil, in which case only the local tier is used.
func New(store ListStore, kv kvcache.Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		kv:      kv,
		keyTTL:  config.GetRefreshInterval,
		entries: make(map[uint]*warninglist.EntrySet),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func EntriesKey(id uint) string {
	return EntriesKeyPrefix + strconv.FormatUint(uint64(id), 10)
}

// BeginBatch drops the process-local tier.
func (c *Cache) BeginBatch() {
	c.mu.Lock()
	c.index = nil
	c.indexLoaded = false
	c.entries = make(map[uint]*warninglist.EntrySet)
	c.mu.Unlock()
}

// Enabled returns the enabled lists ordered by id.
func (c *Cache) Enabled(ctx context.Context) ([]domain.ListSummary, error) {
	c.mu.Lock()
	if c.indexLoaded {
		index := c.index
		c.mu.Unlock()
		return index, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(IndexKey, func() (any, error) {
		if index, ok := c.readIndex(ctx); ok {
			return index, nil
		}
		return c.fillIndex(ctx)
	})
	if err != nil {
		return nil, err
	}

	index := v.([]domain.ListSummary)
	c.mu.Lock()
	c.index = index
	c.indexLoaded = true
	c.mu.Unlock()
	return index, nil
}

// Entries returns the normalized entries of an enabled list.
func (c *Cache) Entries(ctx context.Context, list domain.ListSummary) (*warninglist.EntrySet, error) {
	c.mu.Lock()
	if set, ok := c.entries[list.ID]; ok {
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()

	key := EntriesKey(list.ID)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if set, ok := c.readEntries(ctx, list); ok {
			return set, nil
		}
		return c.fillEntries(ctx, list)
	})
	if err != nil {
		return nil, err
	}

	set := v.(*warninglist.EntrySet)
	c.mu.Lock()
	c.entries[list.ID] = set
	c.mu.Unlock()
	return set, nil
}

// Invalidate refreshes the cache after list id changed. Memo entries and the
// index are rebuilt; only list id's entries are recomputed, and its key is
// dropped when the list is no longer enabled.
func (c *Cache) Invalidate(ctx context.Context, id uint) error {
	c.purge(ctx, IndexKey)
	c.BeginBatch()

	index, err := c.fillIndex(ctx)
	if err != nil {
		return err
	}
	c.setLocalIndex(index)

	for _, list := range index {
		if list.ID != id {
			continue
		}
		set, err := c.fillEntries(ctx, list)
		if err != nil {
			return err
		}
		c.setLocalEntries(list.ID, set)
		return nil
	}

	c.deleteKeys(ctx, EntriesKey(id))
	return nil
}

// InvalidateAll drops every cached key and rebuilds the index and all enabled lists.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.purge(ctx, IndexKey)
	c.purgePrefix(ctx, EntriesKeyPrefix)
	c.BeginBatch()

	index, err := c.fillIndex(ctx)
	if err != nil {
		return err
	}
	c.setLocalIndex(index)

	for _, list := range index {
		set, err := c.fillEntries(ctx, list)
		if err != nil {
			return err
		}
		c.setLocalEntries(list.ID, set)
	}
	return nil
}

func (c *Cache) setLocalIndex(index []domain.ListSummary) {
	c.mu.Lock()
	c.index = index
	c.indexLoaded = true
	c.mu.Unlock()
}

func (c *Cache) setLocalEntries(id uint, set *warninglist.EntrySet) {
	c.mu.Lock()
	c.entries[id] = set
	c.mu.Unlock()
}

func (c *Cache) fillIndex(ctx context.Context) ([]domain.ListSummary, error) {
	index, err := c.store.FindEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled warninglists: %w", err)
	}
	if index == nil {
		index = []domain.ListSummary{}
	}
	c.write(ctx, IndexKey, index)
	return index, nil
}

func (c *Cache) fillEntries(ctx context.Context, list domain.ListSummary) (*warninglist.EntrySet, error) {
	raw, err := c.store.FindEntries(ctx, list.ID)
	if err != nil {
		return nil, fmt.Errorf("load entries of warninglist %d: %w", list.ID, err)
	}
	set := warninglist.Normalize(list.Type, raw)
	values := set.Values()
	if values == nil {
		values = []string{}
	}
	c.write(ctx, EntriesKey(list.ID), values)
	return set, nil
}

func (c *Cache) readIndex(ctx context.Context) ([]domain.ListSummary, bool) {
	payload, ok := c.read(ctx, IndexKey)
	if !ok {
		return nil, false
	}
	var index []domain.ListSummary
	if err := json.Unmarshal(payload, &index); err != nil {
		log.Warn("List cache: discarding malformed index", "error", err)
		return nil, false
	}
	if index == nil {
		index = []domain.ListSummary{}
	}
	return index, true
}

func (c *Cache) readEntries(ctx context.Context, list domain.ListSummary) (*warninglist.EntrySet, bool) {
	key := EntriesKey(list.ID)
	payload, ok := c.read(ctx, key)
	if !ok {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(payload, &values); err != nil {
		log.Warn("List cache: discarding malformed entries", "key", key, "error", err)
		return nil, false
	}
	return warninglist.Normalize(list.Type, values), true
}

func (c *Cache) read(ctx context.Context, key string) ([]byte, bool) {
	if c.kv == nil {
		return nil, false
	}
	results, err := c.kv.BatchGet(ctx, []string{key})
	if err != nil {
		log.Warn("List cache: distributed read failed", "key", key, "error", err)
		return nil, false
	}
	if len(results) != 1 || !results[0].Found {
		return nil, false
	}
	return results[0].Value, true
}

func (c *Cache) write(ctx context.Context, key string, value any) {
	if c.kv == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Warn("List cache: encode failed", "key", key, "error", err)
		return
	}
	if err := c.kv.BatchSet(ctx, []kvcache.Item{{Key: key, Value: payload, TTL: c.keyTTL()}}); err != nil {
		log.Warn("List cache: distributed write failed", "key", key, "error", err)
	}
}

// purge removes keys together with every lookup memo entry.
func (c *Cache) purge(ctx context.Context, keys ...string) {
	c.purgePrefix(ctx, MemoKeyPrefix)
	c.deleteKeys(ctx, keys...)
}

func (c *Cache) purgePrefix(ctx context.Context, prefix string) {
	if c.kv == nil {
		return
	}
	if err := c.kv.DeleteByPrefix(ctx, prefix); err != nil {
		log.Warn("List cache: prefix purge failed", "prefix", prefix, "error", err)
	}
}

func (c *Cache) deleteKeys(ctx context.Context, keys ...string) {
	if c.kv == nil || len(keys) == 0 {
		return
	}
	if err := c.kv.Delete(ctx, keys...); err != nil {
		log.Warn("List cache: delete failed", "keys", keys, "error", err)
	}
}
