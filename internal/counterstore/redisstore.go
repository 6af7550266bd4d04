package counterstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gomodule/redigo/redis"
)

// RedisStore is the atomic, single-writer backend from spec §4.4: every
// operation addressed to the same key is serialized end-to-end, so the
// "read count, compare, write count+IK" sequence admits no interleaving.
// This is the only backend safe for strict rate-limit enforcement (see
// AtomicCapable).
//
// Built on github.com/gomodule/redigo, the Lua-scripting path being the
// idiomatic redigo way to get transactional read-compare-write semantics
// in one round trip — the direct generalization of the teacher's DynamoDB
// `ConditionExpression: attribute_not_exists(id)` test-and-set
// (server/dynamo.go) to a different backend's equivalent primitive.
type RedisStore struct {
	pool *redis.Pool
}

// NewRedisStore wraps an existing connection pool. Pool construction
// (address, auth, dial timeouts) is left to the caller/config layer,
// matching spec §1's stance that transport concerns live outside the
// core.
func NewRedisStore(pool *redis.Pool) *RedisStore {
	return &RedisStore{pool: pool}
}

func (s *RedisStore) Atomic() bool { return true }

// spendScript implements spec §4.4 steps 1-3 atomically: check the IK
// record first and return it unchanged if present; otherwise compare the
// counter against limit and either persist a cached denial or increment
// the counter and persist a cached success, both with the same TTL.
var spendScript = redis.NewScript(2, `
local count_key = KEYS[1]
local ik_key = KEYS[2]
local ik = ARGV[1]
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local cached = redis.call("GET", ik_key)
if cached then
	return {1, cached}
end

local current = tonumber(redis.call("GET", count_key) or "0")
if current >= limit then
	local denial = cjson.encode({ok=false, error="limit_exceeded", remaining=0})
	redis.call("SET", ik_key, denial, "EX", ttl)
	return {0, denial}
end

local next = current + 1
local remaining = limit - next
if remaining < 0 then remaining = 0 end
local success = cjson.encode({ok=true, remaining=remaining})
redis.call("SET", count_key, next, "EX", ttl)
redis.call("SET", ik_key, success, "EX", ttl)
return {0, success}
`)

func (s *RedisStore) Spend(ctx context.Context, req SpendRequest) (SpendResult, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return SpendResult{}, err
	}
	defer conn.Close()

	countKey := "count:" + req.Key.String()
	ikKey := ikCacheKey(req.Key.ProjectID, req.IK)

	reply, err := redis.Values(spendScript.Do(conn, countKey, ikKey, req.IK, req.Limit, req.TTLSeconds))
	if err != nil {
		return SpendResult{}, err
	}
	if len(reply) != 2 {
		return SpendResult{}, errors.New("unexpected spend script reply shape")
	}
	idempotent, _ := redis.Int(reply[0], nil)
	payload, _ := redis.Bytes(reply[1], nil)

	var result SpendResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return SpendResult{}, err
	}
	result.Idempotent = idempotent == 1
	return result, nil
}

// GuardGrace uses SET ... NX for test-and-set: only the first writer for
// a given graceKey ever stores a response, and every later caller (within
// this window) observes the hit, per spec §4.4.
func (s *RedisStore) GuardGrace(ctx context.Context, req GraceRequest) (GraceResult, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return GraceResult{}, err
	}
	defer conn.Close()

	key := graceCacheKey(req.ProjectID, req.GraceKey)
	payload, err := redis.Bytes(conn.Do("GET", key))
	if errors.Is(err, redis.ErrNil) {
		return GraceResult{Hit: false}, nil
	}
	if err != nil {
		return GraceResult{}, err
	}
	var resp SpendResult
	if err := json.Unmarshal(payload, &resp); err != nil {
		return GraceResult{}, err
	}
	return GraceResult{Hit: true, Response: resp}, nil
}

func (s *RedisStore) CacheGraceResponse(ctx context.Context, req GraceRequest, resp SpendResult) error {
	if !resp.OK {
		return nil
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	key := graceCacheKey(req.ProjectID, req.GraceKey)
	_, err = conn.Do("SET", key, payload, "EX", req.TTLSeconds, "NX")
	if errors.Is(err, redis.ErrNil) {
		// another writer got there first: not an error, just a no-op.
		return nil
	}
	return err
}
