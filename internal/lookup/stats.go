package lookup

import "sync/atomic"

// Stats counts lookup activity since the pipeline was created.
type Stats struct {
	MemoHits     uint64 `json:"memo_hits"`
	NegativeHits uint64 `json:"negative_hits"`
	MemoMisses   uint64 `json:"memo_misses"`
	Checks       uint64 `json:"checks"`
	Degraded     uint64 `json:"degraded"`
}

type counters struct {
	memoHits     atomic.Uint64
	negativeHits atomic.Uint64
	memoMisses   atomic.Uint64
	checks       atomic.Uint64
	degraded     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		MemoHits:     c.memoHits.Load(),
		NegativeHits: c.negativeHits.Load(),
		MemoMisses:   c.memoMisses.Load(),
		Checks:       c.checks.Load(),
		Degraded:     c.degraded.Load(),
	}
}
