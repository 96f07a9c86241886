package lookup

import (
	"context"
	"errors"
	"time"

	"warnlist/internal/config"
	"warnlist/internal/domain"
	"warnlist/internal/kvcache"
	"warnlist/internal/listcache"

	"github.com/charmbracelet/log"
)

// Result holds the matches of every submitted indicator, aligned with the
// input, and the lists matched anywhere in the batch.
type Result struct {
	Annotations [][]domain.Match `json:"annotations"`
	Lists       map[uint]string  `json:"lists"`
}

// Pipeline annotates batches of indicators. It is safe for concurrent use.
type Pipeline struct {
	cache    *listcache.Cache
	kv       kvcache.Store
	settings func() config.Config

	direct   *DirectLookup
	cached   *CachedLookup
	counters counters
}

type Option func(*Pipeline)

// WithSettings replaces the settings source, config.GetConfig by default.
func WithSettings(fn func() config.Config) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.settings = fn
		}
	}
}

// New builds a pipeline. kv may be nil, in which case every batch runs direct.
func New(cache *listcache.Cache, kv kvcache.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:    cache,
		kv:       kv,
		settings: config.GetConfig,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.direct = &DirectLookup{cache: cache, counters: &p.counters}
	if kv != nil {
		p.cached = &CachedLookup{
			cache:    cache,
			kv:       kv,
			ttl:      func() time.Duration { return p.settings().MemoTTL() },
			counters: &p.counters,
		}
	}
	return p
}

// Annotate reports, per indicator, every enabled list that warns about it.
// Indicators not flagged for detection are skipped unless warn_for_all is set.
func (p *Pipeline) Annotate(ctx context.Context, items []domain.Indicator) (Result, error) {
	return p.annotate(ctx, items, p.settings().WarnForAll)
}

// Filter reports whether value is absent from every applicable enabled list,
// regardless of its detection flag.
func (p *Pipeline) Filter(ctx context.Context, item domain.Indicator) (bool, error) {
	result, err := p.annotate(ctx, []domain.Indicator{item}, true)
	if err != nil {
		return false, err
	}
	return len(result.Annotations[0]) == 0, nil
}

// Stats returns a snapshot of the lookup counters.
func (p *Pipeline) Stats() Stats {
	return p.counters.snapshot()
}

func (p *Pipeline) annotate(ctx context.Context, items []domain.Indicator, ignoreIDS bool) (Result, error) {
	result := Result{
		Annotations: make([][]domain.Match, len(items)),
		Lists:       make(map[uint]string),
	}
	if len(items) == 0 {
		return result, nil
	}

	p.cache.BeginBatch()
	lists, err := p.cache.Enabled(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(lists) == 0 {
		return result, nil
	}

	var (
		positions []int
		eligible  []domain.Indicator
	)
	for i, item := range items {
		if !ignoreIDS && !item.ToIDS {
			continue
		}
		if !coveredByAny(lists, item.Type) {
			continue
		}
		positions = append(positions, i)
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return result, nil
	}

	matches, err := p.lookup(ctx, lists, eligible)
	if err != nil {
		return Result{}, err
	}

	for n, pos := range positions {
		result.Annotations[pos] = matches[n]
		for _, m := range matches[n] {
			result.Lists[m.ListID] = m.ListName
		}
	}
	return result, nil
}

func (p *Pipeline) lookup(ctx context.Context, lists []domain.ListSummary, items []domain.Indicator) ([][]domain.Match, error) {
	strategy := p.selectStrategy(ctx)
	matches, err := strategy.Lookup(ctx, lists, items)
	if err == nil || strategy == Strategy(p.direct) || !errors.Is(err, kvcache.ErrUnavailable) {
		return matches, err
	}

	p.counters.degraded.Add(1)
	log.Warn("Lookup: memo cache unavailable, running degraded", "items", len(items), "error", err)
	return p.direct.Lookup(ctx, lists, items)
}

func (p *Pipeline) selectStrategy(ctx context.Context) Strategy {
	if p.cached == nil {
		return p.direct
	}
	if err := p.kv.Ping(ctx); err != nil {
		p.counters.degraded.Add(1)
		log.Warn("Lookup: memo cache unreachable, running degraded", "error", err)
		return p.direct
	}
	return p.cached
}

func coveredByAny(lists []domain.ListSummary, indicatorType string) bool {
	for _, list := range lists {
		if list.AppliesTo(indicatorType) {
			return true
		}
	}
	return false
}
