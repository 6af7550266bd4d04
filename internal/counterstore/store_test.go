package counterstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() Key {
	return Key{
		ProjectID: "proj1",
		IssuerPK:  "issuer-pk",
		Origin:    "https://example.com",
		EpochDays: 100,
		PolicyID:  "comments",
		WindowID:  100,
		Nullifier: "nullifier-b64",
	}
}

func TestKeyString_IsBitStable(t *testing.T) {
	k := testKey()
	require.Equal(t,
		"project:proj1|issuer-pk|https://example.com|100|comments|100|nullifier-b64",
		k.String())
}

func TestMemStore_Idempotency(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	req := SpendRequest{Key: testKey(), IK: "ik-1", Limit: 3, TTLSeconds: 60}

	r1, err := s.Spend(ctx, req)
	require.NoError(t, err)
	require.True(t, r1.OK)
	require.False(t, r1.Idempotent)
	require.Equal(t, 2, r1.Remaining)

	for i := 0; i < 5; i++ {
		r2, err := s.Spend(ctx, req)
		require.NoError(t, err)
		require.True(t, r2.Idempotent)
		require.Equal(t, r1.OK, r2.OK)
		require.Equal(t, r1.Remaining, r2.Remaining)
	}

	// the counter itself must show exactly one increment
	v, ok := s.counts.Get(testKey().String())
	require.True(t, ok)
	require.Equal(t, 1, v.(int))
}

func TestMemStore_DenialReplayDoesNotTouchCounter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := testKey()

	for i := 0; i < 2; i++ {
		req := SpendRequest{Key: key, IK: "ik-unique-" + string(rune('a'+i)), Limit: 2, TTLSeconds: 60}
		r, err := s.Spend(ctx, req)
		require.NoError(t, err)
		require.True(t, r.OK)
	}

	denyReq := SpendRequest{Key: key, IK: "ik-deny", Limit: 2, TTLSeconds: 60}
	deny, err := s.Spend(ctx, denyReq)
	require.NoError(t, err)
	require.False(t, deny.OK)
	require.Equal(t, "limit_exceeded", deny.Error)

	replay, err := s.Spend(ctx, denyReq)
	require.NoError(t, err)
	require.True(t, replay.Idempotent)
	require.False(t, replay.OK)

	v, _ := s.counts.Get(key.String())
	require.Equal(t, 2, v.(int))
}

func TestMemStore_BudgetExhausted(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	key := testKey()
	limit := 3

	for i := 0; i < limit; i++ {
		req := SpendRequest{Key: key, IK: "ik-" + string(rune('a'+i)), Limit: limit, TTLSeconds: 60}
		r, err := s.Spend(ctx, req)
		require.NoError(t, err)
		require.True(t, r.OK)
	}

	fourth := SpendRequest{Key: key, IK: "ik-fourth", Limit: limit, TTLSeconds: 60}
	r, err := s.Spend(ctx, fourth)
	require.NoError(t, err)
	require.False(t, r.OK)
	require.Equal(t, 0, r.Remaining)
}

func TestMemStore_CrossOriginUsesDistinctCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	a := testKey()
	b := a
	b.Origin = "https://attacker.com"
	b.Nullifier = "different-nullifier"

	ra, err := s.Spend(ctx, SpendRequest{Key: a, IK: "ik-a", Limit: 3, TTLSeconds: 60})
	require.NoError(t, err)
	require.Equal(t, 2, ra.Remaining)

	rb, err := s.Spend(ctx, SpendRequest{Key: b, IK: "ik-b", Limit: 3, TTLSeconds: 60})
	require.NoError(t, err)
	require.Equal(t, 2, rb.Remaining, "distinct counter key must start fresh")
}

func TestMemStore_GraceOnlyCachesSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	req := GraceRequest{ProjectID: "proj1", GraceKey: "grace-key", TTLSeconds: 60}

	require.NoError(t, s.CacheGraceResponse(ctx, req, SpendResult{OK: false, Error: "limit_exceeded"}))
	miss, err := s.GuardGrace(ctx, req)
	require.NoError(t, err)
	require.False(t, miss.Hit, "denials must never be cached for grace replay")

	require.NoError(t, s.CacheGraceResponse(ctx, req, SpendResult{OK: true, Remaining: 2}))
	hit, err := s.GuardGrace(ctx, req)
	require.NoError(t, err)
	require.True(t, hit.Hit)
	require.Equal(t, 2, hit.Response.Remaining)
}

func TestMemStore_NotAtomic(t *testing.T) {
	s := NewMemStore()
	require.False(t, s.Atomic())
}
