// Package counterstore implements spec §4.4's spend/guardGrace/cacheGraceResponse
// interface over two backends: an atomic, single-writer Redis backend
// (internal/counterstore.RedisStore) and a best-effort, eventually
// consistent in-process backend (internal/counterstore.MemStore). Both
// share the counter-key wire format and the request/response shapes
// defined here.
package counterstore

import (
	"context"
	"fmt"
)

// Key identifies a single counter per spec §4.4: (projectId, issuerPk,
// origin, epoch, policyId, windowId, y).
type Key struct {
	ProjectID  string
	IssuerPK   string
	Origin     string
	EpochDays  int64
	PolicyID   string
	WindowID   int64
	Nullifier  string // base64url(y)
}

// String serializes Key into the bit-stable
// "project:<projectId>|<issuerPk>|<origin>|<epoch>|<policyId>|<windowId>|<y>"
// form spec §6 requires, since third-party debug tooling and migration
// code depend on the exact order and the "project:" prefix.
func (k Key) String() string {
	return fmt.Sprintf("project:%s|%s|%s|%d|%s|%d|%s",
		k.ProjectID, k.IssuerPK, k.Origin, k.EpochDays, k.PolicyID, k.WindowID, k.Nullifier)
}

// SpendRequest is the input to Spend.
type SpendRequest struct {
	Key          Key
	IK           string // idempotency key, base64url-encoded
	Limit        int
	TTLSeconds   int
}

// SpendResult is the outcome of Spend — also the shape persisted verbatim
// at ik[projectId, IK] for idempotent replay.
type SpendResult struct {
	OK         bool   `json:"ok"`
	Remaining  int    `json:"remaining"`
	Error      string `json:"error,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
}

// GraceRequest is the input to GuardGrace and CacheGraceResponse.
type GraceRequest struct {
	ProjectID  string
	GraceKey   string // base64url(y_g)
	TTLSeconds int
}

// GraceResult is the outcome of a GuardGrace lookup.
type GraceResult struct {
	Hit      bool
	Response SpendResult
}

// Store is the narrow interface spec §4.4 specifies. Implementations must
// not mutate SpendResult after returning it from Spend, since the caller
// may cache it verbatim for grace replay.
type Store interface {
	// Spend executes the spec §4.4 algorithm: idempotent replay via IK,
	// otherwise read-compare-write against the counter and limit.
	Spend(ctx context.Context, req SpendRequest) (SpendResult, error)
	// GuardGrace looks up a cached grace decision by graceKey. Only
	// successful responses are ever stored here (spec §4.5).
	GuardGrace(ctx context.Context, req GraceRequest) (GraceResult, error)
	// CacheGraceResponse stores a successful decision under graceKey so a
	// presentation replayed across the midnight boundary resolves to the
	// same outcome. Implementations should treat this as safe to call
	// fire-and-forget (spec §5).
	CacheGraceResponse(ctx context.Context, req GraceRequest, resp SpendResult) error
}

// AtomicCapable is implemented by backends that report whether they
// guarantee the per-key total ordering required for strict rate-limit
// enforcement (spec §5). Both backends implement it: RedisStore.Atomic()
// returns true, MemStore.Atomic() returns false. Callers that need strong
// enforcement should type-assert for this and check Atomic() before
// relying on a Store.
type AtomicCapable interface {
	Store
	Atomic() bool
}
