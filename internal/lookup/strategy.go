package lookup

import (
	"context"
	"time"

	"warnlist/internal/domain"
	"warnlist/internal/kvcache"
	"warnlist/internal/listcache"
	"warnlist/internal/warninglist"

	"github.com/charmbracelet/log"
)

// Strategy resolves the matches of the indicators selected for checking.
// The returned slice is aligned with items.
type Strategy interface {
	Lookup(ctx context.Context, lists []domain.ListSummary, items []domain.Indicator) ([][]domain.Match, error)
}

// DirectLookup runs every indicator through the matcher.
type DirectLookup struct {
	cache    *listcache.Cache
	counters *counters
}

func (d *DirectLookup) Lookup(ctx context.Context, lists []domain.ListSummary, items []domain.Indicator) ([][]domain.Match, error) {
	out := make([][]domain.Match, len(items))
	for i, item := range items {
		matches, err := checkIndicator(ctx, d.cache, lists, item, d.counters)
		if err != nil {
			return nil, err
		}
		out[i] = matches
	}
	return out, nil
}

// CachedLookup serves indicators from the memo cache and checks only the misses.
// A failed batched read is returned as kvcache.ErrUnavailable; a failed write-back
// is only logged.
type CachedLookup struct {
	cache    *listcache.Cache
	kv       kvcache.Store
	ttl      func() time.Duration
	counters *counters
}

func (c *CachedLookup) Lookup(ctx context.Context, lists []domain.ListSummary, items []domain.Indicator) ([][]domain.Match, error) {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = MemoKey(item.Type, item.Value)
	}

	cached, err := c.kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([][]domain.Match, len(items))
	var writeBack []kvcache.Item
	ttl := c.ttl()

	for i, item := range items {
		if i < len(cached) && cached[i].Found {
			matches, err := decodeMemo(cached[i].Value, lists)
			if err == nil {
				if len(cached[i].Value) == 0 {
					c.counters.negativeHits.Add(1)
				} else {
					c.counters.memoHits.Add(1)
				}
				out[i] = matches
				continue
			}
			log.Warn("Lookup: recomputing unreadable memo entry", "type", item.Type, "error", err)
		}

		c.counters.memoMisses.Add(1)
		matches, err := checkIndicator(ctx, c.cache, lists, item, c.counters)
		if err != nil {
			return nil, err
		}
		out[i] = matches

		payload, err := encodeMemo(matches)
		if err != nil {
			log.Warn("Lookup: memo encode failed", "type", item.Type, "error", err)
			continue
		}
		writeBack = append(writeBack, kvcache.Item{Key: keys[i], Value: payload, TTL: ttl})
	}

	if len(writeBack) > 0 {
		if err := c.kv.BatchSet(ctx, writeBack); err != nil {
			log.Warn("Lookup: memo write-back failed", "items", len(writeBack), "error", err)
		}
	}

	return out, nil
}

// checkIndicator tests one indicator against every applicable list, in index order.
func checkIndicator(ctx context.Context, cache *listcache.Cache, lists []domain.ListSummary, item domain.Indicator, c *counters) ([]domain.Match, error) {
	var matches []domain.Match
	for _, list := range lists {
		if !list.AppliesTo(item.Type) {
			continue
		}
		set, err := cache.Entries(ctx, list)
		if err != nil {
			return nil, err
		}
		c.checks.Add(1)
		if res, ok := warninglist.CheckValue(set, item.Type, item.Value); ok {
			matches = append(matches, domain.Match{
				ListID:   list.ID,
				ListName: list.Name,
				Entry:    res.Entry,
				Value:    res.Value,
			})
		}
	}
	return matches, nil
}
