package counterstore

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// MemStore is the best-effort, eventually consistent backend from spec
// §4.4: it runs the same read-compare-write algorithm as RedisStore, but
// with no transactional guarantee, so concurrent writers on the same key
// can each read count C and each write C+1, under-counting. This is
// accepted for the free tier and is not a bug; strict enforcement
// requires RedisStore (see AtomicCapable).
//
// Built on github.com/patrickmn/go-cache, the teacher's own in-process TTL
// cache, used here for exactly the purpose it's designed for — a
// per-key-TTL map with no cross-writer coordination.
type MemStore struct {
	counts *cache.Cache
	iks    *cache.Cache
	grace  *cache.Cache
	seen   *seenFilter
}

// NewMemStore constructs a best-effort backend. Expiry is driven entirely
// by the TTLSeconds passed to each call, so the cleanup interval only
// needs to be short enough to reclaim memory promptly.
func NewMemStore() *MemStore {
	return &MemStore{
		counts: cache.New(cache.NoExpiration, time.Minute),
		iks:    cache.New(cache.NoExpiration, time.Minute),
		grace:  cache.New(cache.NoExpiration, time.Minute),
		seen:   newSeenFilter(),
	}
}

func (s *MemStore) Atomic() bool { return false }

// Spend implements the spec §4.4 algorithm without a transactional
// boundary around steps 1-3: the IK check, the count read, and the count
// write are three independent cache operations, so two goroutines racing
// on the same key can both observe C and both write C+1.
func (s *MemStore) Spend(_ context.Context, req SpendRequest) (SpendResult, error) {
	keyStr := req.Key.String()
	ikKey := ikCacheKey(req.Key.ProjectID, req.IK)

	// seen is a pre-check, not a substitute for the iks lookup: a miss
	// proves this IK has never been written, so the go-cache read below is
	// skipped outright; a hit only means "maybe", so the real lookup still
	// runs to confirm it and fetch the cached result.
	if s.seen.MaybeSeen(ikKey) {
		if cached, ok := s.iks.Get(ikKey); ok {
			result := cached.(SpendResult)
			result.Idempotent = true
			return result, nil
		}
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second

	var current int
	if v, ok := s.counts.Get(keyStr); ok {
		current = v.(int)
	}

	if current >= req.Limit {
		result := SpendResult{OK: false, Error: "limit_exceeded", Remaining: 0}
		s.seen.MarkSeen(ikKey)
		s.iks.Set(ikKey, result, ttl)
		return result, nil
	}

	next := current + 1
	remaining := req.Limit - next
	if remaining < 0 {
		remaining = 0
	}
	s.counts.Set(keyStr, next, ttl)

	result := SpendResult{OK: true, Remaining: remaining}
	s.seen.MarkSeen(ikKey)
	s.iks.Set(ikKey, result, ttl)
	return result, nil
}

// GuardGrace performs best-effort de-duplication: a read-before-write
// check collapses the common case of duplicate grace writes, but two
// concurrent callers can both observe a miss and both proceed, exactly as
// spec §4.4 describes for this backend.
func (s *MemStore) GuardGrace(_ context.Context, req GraceRequest) (GraceResult, error) {
	if cached, ok := s.grace.Get(graceCacheKey(req.ProjectID, req.GraceKey)); ok {
		return GraceResult{Hit: true, Response: cached.(SpendResult)}, nil
	}
	return GraceResult{Hit: false}, nil
}

func (s *MemStore) CacheGraceResponse(_ context.Context, req GraceRequest, resp SpendResult) error {
	if !resp.OK {
		return nil
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	s.grace.Set(graceCacheKey(req.ProjectID, req.GraceKey), resp, ttl)
	return nil
}

func ikCacheKey(projectID, ik string) string {
	return "ik:project:" + projectID + ":" + ik
}

func graceCacheKey(projectID, graceKey string) string {
	return "grace:project:" + projectID + ":" + graceKey
}
