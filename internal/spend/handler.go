// Package spend implements the S0-S7 spend-verification state machine
// from spec §4.5: authenticate, parse, verify both DLEQ proofs, derive the
// per-window salt and nullifier, branch on the midnight grace window, and
// call the counter store. It is the glue component the teacher's
// server/tokens.go RedeemToken plays an analogous role for (issuer-side
// token redemption), generalized here to a two-proof, origin-bound,
// rate-limited spend instead of a one-shot redeem.
package spend

import (
	"context"
	"encoding/base64"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomjwxf/brass-proof-public/internal/brasscrypto"
	"github.com/tomjwxf/brass-proof-public/internal/brasserr"
	"github.com/tomjwxf/brass-proof-public/internal/config"
	"github.com/tomjwxf/brass-proof-public/internal/counterstore"
	"github.com/tomjwxf/brass-proof-public/internal/derive"
	"github.com/tomjwxf/brass-proof-public/internal/dleqproof"
	"github.com/tomjwxf/brass-proof-public/internal/metrics"
	"github.com/tomjwxf/brass-proof-public/internal/telemetry"
)

const (
	suiteID   = "P256_SHA256"
	versionID = "BRASS_v2.0"
	dleqLabel = "OPRF_METERING_DLEQ_v1"
)

// Handler drives a single spend request end to end. It holds nothing
// request-scoped: the same Handler serves every request against a shared,
// thread-safe counter store.
type Handler struct {
	logger    zerolog.Logger
	cfg       *config.Config
	keys      APIKeyLookup
	store     counterstore.Store
	telemetry *telemetry.Sink
	issuerY   *brasscrypto.Point
	issuerPK  []byte // raw compressed bytes, also the string used in derivations
	now       func() time.Time
	bgWG      sync.WaitGroup // tracks in-flight cacheGraceResponse goroutines
}

// NewHandler constructs a Handler. The issuer public key in cfg is decoded
// once here rather than per request.
func NewHandler(cfg *config.Config, keys APIKeyLookup, store counterstore.Store, sink *telemetry.Sink, logger zerolog.Logger) (*Handler, error) {
	y, err := brasscrypto.DecodeCompressed(cfg.IssuerPubkey)
	if err != nil {
		return nil, err
	}
	return &Handler{
		logger:    logger,
		cfg:       cfg,
		keys:      keys,
		store:     store,
		telemetry: sink,
		issuerY:   y,
		issuerPK:  cfg.IssuerPubkey,
		now:       time.Now,
	}, nil
}

func b64dec(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func b64enc(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodePoint(s string) (*brasscrypto.Point, *brasserr.Error) {
	raw, err := b64dec(s)
	if err != nil {
		return nil, brasserr.New(brasserr.InvalidPointEncoding)
	}
	p, err := brasscrypto.DecodeCompressed(raw)
	if err != nil {
		return nil, brasserr.New(brasserr.InvalidPointEncoding)
	}
	return p, nil
}

func decodeScalar(s string) (*big.Int, *brasserr.Error) {
	raw, err := b64dec(s)
	if err != nil || len(raw) == 0 {
		return nil, brasserr.New(brasserr.ServerError)
	}
	return new(big.Int).SetBytes(raw), nil
}

func basePoint() *brasscrypto.Point {
	return brasscrypto.ScalarBaseMult(big.NewInt(1))
}

// outcome carries the telemetry-relevant detail alongside the response
// that handle's many return points need, so HandleSpend can build one
// Event from a single call site.
type outcome struct {
	resp           *APIResponse
	kind           *brasserr.Error
	projectID      string
	inGracePeriod  bool
	graceProtected bool
}

// HandleSpend runs the full state machine and returns the response to
// write to the caller alongside the error that determines its HTTP
// status; a nil error means a 200 OK response. A limit_exceeded denial
// returns a LimitExceeded error (HTTP 429) together with a resp carrying
// the same success-shaped fields (remaining, windowUsed).
func (h *Handler) HandleSpend(ctx context.Context, req Request) (*APIResponse, *brasserr.Error) {
	start := h.now()

	o := h.handle(ctx, req, start)
	elapsed := h.now().Sub(start).Milliseconds()

	denied := o.kind != nil && o.kind.Kind == brasserr.LimitExceeded

	metrics.SpendTotal.Inc()
	switch {
	case denied:
		metrics.SpendDenied.Inc()
	case o.kind != nil:
		metrics.SpendError.Inc()
		metrics.SpendErrorByKind.WithLabelValues(string(o.kind.Kind)).Inc()
	case o.resp.OK:
		metrics.SpendOK.Inc()
	}
	if o.resp != nil && o.resp.WindowUsed == "grace_cached" {
		metrics.GraceWindowHits.Inc()
	}

	event := telemetry.Event{
		ResponseTimeMs: elapsed,
		InGracePeriod:  o.inGracePeriod,
		GraceProtected: o.graceProtected,
		ProjectID:      o.projectID,
	}
	switch {
	case denied:
		event.Result = "denied"
	case o.kind != nil:
		event.Result = "error"
		event.ErrorKind = string(o.kind.Kind)
	case o.resp.OK:
		event.Result = "ok"
	}
	if o.resp != nil {
		event.Remaining = &o.resp.Remaining
		event.Idempotent = o.resp.Idempotent
	}
	h.telemetry.Emit(event)

	return o.resp, o.kind
}

// handle implements S0-S7. It does not itself emit telemetry; HandleSpend
// wraps it so every return path, including early authentication failures,
// is covered by a single emission point.
func (h *Handler) handle(ctx context.Context, req Request, start time.Time) *outcome {
	// S0: authenticate
	if req.APIKey == "" {
		k := brasserr.New(brasserr.MissingAPIKey)
		return &outcome{resp: &APIResponse{Error: string(k.Kind)}, kind: k}
	}
	rec, err := h.keys.Lookup(req.APIKey)
	if err != nil {
		k := brasserr.Wrap(brasserr.ServerError, err)
		return &outcome{resp: &APIResponse{Error: string(k.Kind)}, kind: k}
	}
	if !rec.Valid {
		k := brasserr.New(brasserr.InvalidAPIKey)
		return &outcome{resp: &APIResponse{Error: string(k.Kind)}, kind: k}
	}

	projectID := rec.ProjectID
	fail := func(k *brasserr.Error, graceFlag bool) *outcome {
		return &outcome{resp: &APIResponse{Error: string(k.Kind)}, kind: k, projectID: projectID, inGracePeriod: graceFlag}
	}

	// S1: decode points and proof scalars
	pres := req.Presentation
	p, kerr := decodePoint(pres.P)
	if kerr != nil {
		return fail(kerr, false)
	}
	m, kerr := decodePoint(pres.M)
	if kerr != nil {
		return fail(kerr, false)
	}
	z, kerr := decodePoint(pres.Z)
	if kerr != nil {
		return fail(kerr, false)
	}
	zPrime, kerr := decodePoint(pres.ZPrime)
	if kerr != nil {
		return fail(kerr, false)
	}
	c, cerr := b64dec(pres.C)
	if cerr != nil {
		return fail(brasserr.New(brasserr.ServerError), false)
	}
	cI, kerr := decodeScalar(pres.PiI.C)
	if kerr != nil {
		return fail(kerr, false)
	}
	rI, kerr := decodeScalar(pres.PiI.R)
	if kerr != nil {
		return fail(kerr, false)
	}
	cC, kerr := decodeScalar(pres.PiC.C)
	if kerr != nil {
		return fail(kerr, false)
	}
	rC, kerr := decodeScalar(pres.PiC.R)
	if kerr != nil {
		return fail(kerr, false)
	}

	// S2: verify the issuer proof over (G, Y, M, Z) with an empty binding.
	g := basePoint()
	issuerGens := dleqproof.Generators{G1: g, H1: h.issuerY, G2: m, H2: z}
	if err := dleqproof.Verify(dleqLabel, issuerGens, nil, dleqproof.Proof{C: cI, R: rI}); err != nil {
		return fail(brasserr.Wrap(brasserr.InvalidPiI, err), false)
	}

	// S3: recompute d, cross-check d_client if present.
	method := pres.HTTPMethod
	path := pres.HTTPPath
	var d [32]byte
	if pres.HTTPBodyHashB64 != "" {
		hashBytes, err := b64dec(pres.HTTPBodyHashB64)
		if err != nil || len(hashBytes) != 32 {
			return fail(brasserr.New(brasserr.ServerError), false)
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		if method == "" {
			method = req.LiveMethod
		}
		if path == "" {
			path = req.LivePath
		}
		d = derive.DeriveHTTPContextFromHash(upper(method), path, hash)
	} else {
		if method == "" {
			method = req.LiveMethod
		}
		if path == "" {
			path = req.LivePath
		}
		d = derive.DeriveHTTPContext(upper(method), path, req.LiveBody)
	}
	if pres.DClient != "" {
		dClient, err := b64dec(pres.DClient)
		if err != nil || !brasscrypto.ConstantTimeEqual(d[:], dClient) {
			return fail(brasserr.New(brasserr.DMismatch), false)
		}
	}

	// S4: canonicalize origin, compute epoch/window/policy/eta/y.
	originCanonical, appErr := derive.CanonicalizeOrigin(pres.Origin)
	if appErr != nil {
		asErr, ok := appErr.(*brasserr.Error)
		if !ok {
			asErr = brasserr.Wrap(brasserr.InvalidOrigin, appErr)
		}
		return fail(asErr, false)
	}
	epochDays := derive.EpochDays(start)
	windowID := derive.WindowID(epochDays)
	policyID := derive.ParsePolicyID(pres.AADr)
	eta := derive.DeriveSalt(h.issuerPK, originCanonical, epochDays, windowID, policyID)
	y := derive.DeriveNullifier(zPrime, pres.KID, pres.AADr, eta)

	// S5: build bindC, verify the client proof that log_P(M) == r.
	var tlsExporter []byte
	if pres.TLSExporterB64 != "" {
		tlsExporter, _ = b64dec(pres.TLSExporterB64)
	} else {
		tlsExporter = req.LiveTLSExporter
	}
	tlsBinding := derive.DeriveTLSBinding(tlsExporter)
	bind := brasscrypto.H3(
		[]byte("BIND"),
		y[:], c, d[:], tlsBinding[:],
		i64Bytes(windowID),
		[]byte(suiteID), []byte(versionID),
		[]byte(policyID), []byte(pres.AADr), []byte(pres.KID),
		eta[:],
	)
	// g2/h2 duplicate g1/h1 rather than literally (G, G): a DLEQ conjunction
	// with a shared single-scalar response forces the same witness to
	// satisfy both pairs, so (P, M, G, G) would only ever verify for r=1.
	// Repeating (P, M) keeps the proof meaningful for any r while reusing
	// the same generic Verify/Challenge machinery as the issuer proof.
	clientGens := dleqproof.Generators{G1: p, H1: m, G2: p, H2: m}
	if err := dleqproof.Verify(dleqLabel, clientGens, bind[:], dleqproof.Proof{C: cC, R: rC}); err != nil {
		return fail(brasserr.Wrap(brasserr.InvalidPiC, err), false)
	}

	// S6: derive IK, pick grace flag, optionally consult the grace cache.
	ik := b64enc(derive.DeriveIdempotencyKey(h.cfg.KVSecret, y[:], c))
	ttl := derive.SecondsUntilWindowEnd(start)
	graceFlag := derive.InGraceWindow(start, h.cfg.BoundaryGraceSec)

	key := counterstore.Key{
		ProjectID: rec.ProjectID,
		IssuerPK:  b64enc(h.issuerPK),
		Origin:    originCanonical,
		EpochDays: epochDays,
		PolicyID:  policyID,
		WindowID:  windowID,
		Nullifier: b64enc(y[:]),
	}

	var graceKey string
	if graceFlag {
		graceNullifier := derive.DeriveGraceNullifier(zPrime, pres.KID, h.issuerPK, originCanonical, policyID, suiteID, versionID, pres.AADr)
		graceKey = b64enc(graceNullifier[:])
		gres, err := h.store.GuardGrace(ctx, counterstore.GraceRequest{
			ProjectID:  rec.ProjectID,
			GraceKey:   graceKey,
			TTLSeconds: h.cfg.BoundaryGraceSec,
		})
		if err != nil {
			return fail(brasserr.Wrap(brasserr.ServerError, err), graceFlag)
		}
		if gres.Hit && gres.Response.OK {
			return &outcome{
				resp: &APIResponse{
					OK:         true,
					Remaining:  gres.Response.Remaining,
					Idempotent: gres.Response.Idempotent,
					WindowUsed: "grace_cached",
				},
				projectID:      projectID,
				inGracePeriod:  true,
				graceProtected: true,
			}
		}
		// a cached denial (gres.Hit && !gres.Response.OK) is never replayed:
		// fall through and re-evaluate against the live counter.
	}

	// S7: call spend.
	sres, serr := h.store.Spend(ctx, counterstore.SpendRequest{
		Key:        key,
		IK:         ik,
		Limit:      rec.Limit,
		TTLSeconds: ttl,
	})
	if serr != nil {
		return fail(brasserr.Wrap(brasserr.ServerError, serr), graceFlag)
	}

	if !sres.OK {
		return &outcome{
			resp: &APIResponse{
				OK:         false,
				Remaining:  0,
				Error:      sres.Error,
				Idempotent: sres.Idempotent,
				WindowUsed: strconv.FormatInt(windowID, 10),
			},
			kind:          brasserr.New(brasserr.LimitExceeded),
			projectID:     projectID,
			inGracePeriod: graceFlag,
		}
	}

	if graceFlag {
		h.bgWG.Add(1)
		go h.cacheGraceResponse(rec.ProjectID, graceKey, h.cfg.BoundaryGraceSec, sres)
	}

	return &outcome{
		resp: &APIResponse{
			OK:         true,
			Remaining:  sres.Remaining,
			Idempotent: sres.Idempotent,
			WindowUsed: strconv.FormatInt(windowID, 10),
		},
		projectID:      projectID,
		inGracePeriod:  graceFlag,
		graceProtected: graceFlag,
	}
}

// cacheGraceResponse runs fire-and-forget on its own background context so
// a cancelled request context cannot abort it (spec §5: a cancellation
// after a successful spend must still allow this to complete).
func (h *Handler) cacheGraceResponse(projectID, graceKey string, ttl int, result counterstore.SpendResult) {
	defer h.bgWG.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.CacheGraceResponse(ctx, counterstore.GraceRequest{
		ProjectID:  projectID,
		GraceKey:   graceKey,
		TTLSeconds: ttl,
	}, result); err != nil {
		h.logger.Warn().Err(err).Msg("failed to cache grace response")
	}
}

// drainBackground blocks until every in-flight cacheGraceResponse goroutine
// has finished. Production call sites never use this; it exists so tests
// can observe a grace write deterministically instead of racing it.
func (h *Handler) drainBackground() {
	h.bgWG.Wait()
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

func i64Bytes(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}
