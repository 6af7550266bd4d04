package spend

import (
	"context"
	"encoding/base64"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tomjwxf/brass-proof-public/internal/brasscrypto"
	"github.com/tomjwxf/brass-proof-public/internal/config"
	"github.com/tomjwxf/brass-proof-public/internal/counterstore"
	"github.com/tomjwxf/brass-proof-public/internal/derive"
	"github.com/tomjwxf/brass-proof-public/internal/dleqproof"
	"github.com/tomjwxf/brass-proof-public/internal/telemetry"
)

// fixedK, fixedR are the literal scalars the concrete end-to-end scenarios
// are built from.
var (
	fixedK = big.NewInt(0xA1)
	fixedR = big.NewInt(0x2B)
)

func fixedNonce() []byte {
	c := make([]byte, 16)
	for i := range c {
		c[i] = 0x99
	}
	return c
}

const (
	testKID    = "kid-2025-11"
	testAADr   = "policy=comments|window=W"
	testOrigin = "https://example.com"
)

// fixture holds the token material an issuer would have produced: P, its
// blinding, the issuer's signature over it, and the corresponding
// unblinded point, all independent of origin/window/nonce.
type fixture struct {
	p, m, z, zPrime *brasscrypto.Point
	y               *brasscrypto.Point // issuer pubkey
	issuerPK        []byte
	piI             dleqproof.Proof
}

func buildFixture(t *testing.T, epochDays int64, policy string) fixture {
	t.Helper()
	p, err := brasscrypto.HashToCurve([]byte(testOrigin), i64Bytes(epochDays), []byte(policy))
	require.NoError(t, err)

	m := p.ScalarMult(fixedR)
	z := m.ScalarMult(fixedK)
	zPrime := p.ScalarMult(fixedK)
	y := brasscrypto.ScalarBaseMult(fixedK)

	g := basePoint()
	piI, err := dleqproof.Prove(dleqLabel, dleqproof.Generators{G1: g, H1: y, G2: m, H2: z}, nil, fixedK)
	require.NoError(t, err)

	return fixture{p: p, m: m, z: z, zPrime: zPrime, y: y, issuerPK: y.EncodeCompressed(), piI: piI}
}

// presentationFor builds a valid, fully-signed Presentation for origin at
// time now with nonce c, mirroring exactly the server-side derivation
// handler.go performs so the resulting πC verifies.
func presentationFor(t *testing.T, fx fixture, origin string, now time.Time, c []byte, method, path string, body []byte) Presentation {
	t.Helper()

	originCanonical, err := derive.CanonicalizeOrigin(origin)
	require.NoError(t, err)

	epochDays := derive.EpochDays(now)
	windowID := derive.WindowID(epochDays)
	policyID := derive.ParsePolicyID(testAADr)
	eta := derive.DeriveSalt(fx.issuerPK, originCanonical, epochDays, windowID, policyID)
	y := derive.DeriveNullifier(fx.zPrime, testKID, testAADr, eta)

	d := derive.DeriveHTTPContext(method, path, body)
	tlsBinding := derive.DeriveTLSBinding(nil)

	bind := brasscrypto.H3(
		[]byte("BIND"),
		y[:], c, d[:], tlsBinding[:],
		i64Bytes(windowID),
		[]byte(suiteID), []byte(versionID),
		[]byte(policyID), []byte(testAADr), []byte(testKID),
		eta[:],
	)

	piC, err := dleqproof.Prove(dleqLabel, dleqproof.Generators{G1: fx.p, H1: fx.m, G2: fx.p, H2: fx.m}, bind[:], fixedR)
	require.NoError(t, err)

	return Presentation{
		KID:    testKID,
		AADr:   testAADr,
		Origin: origin,
		Epoch:  epochDays,
		P:      b64enc(fx.p.EncodeCompressed()),
		M:      b64enc(fx.m.EncodeCompressed()),
		Z:      b64enc(fx.z.EncodeCompressed()),
		ZPrime: b64enc(fx.zPrime.EncodeCompressed()),
		C:      b64enc(c),
		PiI: ProofWire{
			C: b64enc(fx.piI.C.Bytes()),
			R: b64enc(fx.piI.R.Bytes()),
		},
		PiC: ProofWire{
			C: b64enc(piC.C.Bytes()),
			R: b64enc(piC.R.Bytes()),
		},
	}
}

func testHandler(t *testing.T, fx fixture, store counterstore.Store) *Handler {
	t.Helper()
	cfg := &config.Config{
		StorageBackend:   config.BackendBestEffort,
		BoundaryGraceSec: 60,
		RateLimit:        3,
		IssuerPubkey:     fx.issuerPK,
		KVSecret:         make([]byte, 32),
	}
	keys := NewSingleKeyLookup("test-api-key", "proj1", 3)
	sink := telemetry.NewSink(16, "", "", discardLogger())
	h, err := NewHandler(cfg, keys, store, sink, *discardLogger())
	require.NoError(t, err)
	return h
}

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestHandleSpend_S1_FirstSpend(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	resp, kind := h.HandleSpend(context.Background(), Request{
		APIKey:       "test-api-key",
		Presentation: pres,
		LiveMethod:   "POST",
		LivePath:     "/verify",
		LiveBody:     []byte(`{}`),
	})

	require.Nil(t, kind)
	require.True(t, resp.OK)
	require.Equal(t, 2, resp.Remaining)
	require.False(t, resp.Idempotent)
}

func TestHandleSpend_S2_IdempotentReplay(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	req := Request{APIKey: "test-api-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`)}

	first, kind := h.HandleSpend(context.Background(), req)
	require.Nil(t, kind)
	require.True(t, first.OK)

	second, kind := h.HandleSpend(context.Background(), req)
	require.Nil(t, kind)
	require.True(t, second.OK)
	require.Equal(t, first.Remaining, second.Remaining)
	require.True(t, second.Idempotent)
}

func TestHandleSpend_S3_BudgetExhausted(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	for i := 0; i < 3; i++ {
		c := fixedNonce()
		c[0] = byte(i)
		pres := presentationFor(t, fx, testOrigin, now, c, "POST", "/verify", []byte(`{}`))
		resp, kind := h.HandleSpend(context.Background(), Request{
			APIKey: "test-api-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
		})
		require.Nil(t, kind)
		require.True(t, resp.OK, "spend %d should succeed", i)
	}

	fourthC := fixedNonce()
	fourthC[0] = 0xFF
	pres := presentationFor(t, fx, testOrigin, now, fourthC, "POST", "/verify", []byte(`{}`))
	resp, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.NotNil(t, kind)
	require.False(t, resp.OK)
	require.Equal(t, "limit_exceeded", resp.Error)
	require.Equal(t, 0, resp.Remaining)
}

func TestHandleSpend_S4_CrossOriginIsolatesCounter(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	origPres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	origResp, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: origPres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.Nil(t, kind)
	require.Equal(t, 2, origResp.Remaining)

	attackerOrigin := "https://attacker.com"
	attackerPres := presentationFor(t, fx, attackerOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	attackerResp, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: attackerPres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.Nil(t, kind)
	require.Equal(t, 2, attackerResp.Remaining, "cross-origin replay must land on a fresh counter")

	replayOrig, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: origPres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.Nil(t, kind)
	require.True(t, replayOrig.Idempotent)
	require.Equal(t, origResp.Remaining, replayOrig.Remaining, "original origin's counter must be unaffected")
}

func TestHandleSpend_S5_GraceWindowDoubleSpendBlocked(t *testing.T) {
	t1 := time.Date(2026, 1, 15, 23, 59, 50, 0, time.UTC)
	t2 := time.Date(2026, 1, 16, 0, 0, 10, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(t1), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)

	h.now = fixedClock(t1)
	pres1 := presentationFor(t, fx, testOrigin, t1, fixedNonce(), "POST", "/verify", []byte(`{}`))
	resp1, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: pres1, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.Nil(t, kind)
	require.True(t, resp1.OK)
	h.drainBackground()

	h.now = fixedClock(t2)
	pres2 := presentationFor(t, fx, testOrigin, t2, fixedNonce(), "POST", "/verify", []byte(`{}`))
	resp2, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: pres2, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.Nil(t, kind)
	require.True(t, resp2.OK)
	require.Equal(t, "grace_cached", resp2.WindowUsed)
	require.Equal(t, resp1.Remaining, resp2.Remaining)
}

func TestHandleSpend_S6_TamperedBodyBreaksClientProof(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))

	tamperedBody := []byte(`{"x":1}`)
	resp, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: tamperedBody,
	})
	require.NotNil(t, kind)
	require.Equal(t, "invalid_piC", string(kind.Kind))
	require.False(t, resp.OK)
}

func TestHandleSpend_MissingAPIKey(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	_, kind := h.HandleSpend(context.Background(), Request{
		Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.NotNil(t, kind)
	require.Equal(t, "missing_api_key", string(kind.Kind))
}

func TestHandleSpend_InvalidAPIKey(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	_, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "wrong-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.NotNil(t, kind)
	require.Equal(t, "invalid_api_key", string(kind.Kind))
}

func TestHandleSpend_InvalidPointEncoding(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	fx := buildFixture(t, derive.EpochDays(now), "comments")
	store := counterstore.NewMemStore()
	h := testHandler(t, fx, store)
	h.now = fixedClock(now)

	pres := presentationFor(t, fx, testOrigin, now, fixedNonce(), "POST", "/verify", []byte(`{}`))
	pres.P = base64.RawURLEncoding.EncodeToString([]byte{0x02, 0x01, 0x02, 0x03})
	_, kind := h.HandleSpend(context.Background(), Request{
		APIKey: "test-api-key", Presentation: pres, LiveMethod: "POST", LivePath: "/verify", LiveBody: []byte(`{}`),
	})
	require.NotNil(t, kind)
	require.Equal(t, "invalid_point_encoding", string(kind.Kind))
}
