package counterstore

import (
	"sync"

	boom "github.com/tylertreat/BoomFilters"
)

// seenFilter is a bounded-memory probabilistic pre-check for "have we
// quite possibly already spent this nullifier", adapted from the
// teacher's btd.DoubleSpendList (itself a StableBloomFilter over redeemed
// token preimages). A positive here never proves a spend happened — only
// the authoritative MemStore counts do — but a negative lets MemStore
// skip a cache lookup, which matters because the best-effort backend is
// the free-tier, high-QPS path this repo expects to run hot.
//
// Sizing: 10M cells * 8-bit buckets = 80 Mbit (~10MB) at a 1e-6
// asymptotic false-positive rate.
type seenFilter struct {
	mu     sync.RWMutex
	filter *boom.StableBloomFilter
}

func newSeenFilter() *seenFilter {
	return &seenFilter{
		filter: boom.NewStableBloomFilter(10_000_000, 8, 0.000001),
	}
}

func (f *seenFilter) MaybeSeen(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.Test([]byte(key))
}

func (f *seenFilter) MarkSeen(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.Add([]byte(key))
}
