package derive

import (
	"strconv"

	"github.com/tomjwxf/brass-proof-public/internal/brasscrypto"
)

// i64 renders an int64 as its decimal ASCII bytes, the textual encoding
// used for epochDays/windowId wherever they are hashed as H3 parts — a
// fixed-width binary encoding would also satisfy H3's collision-resistance
// requirement, but decimal text keeps the derived values debuggable from
// raw H3 transcripts.
func i64(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}

// DeriveSalt computes eta, the per-window salt from spec §4.2:
// H3("BRASS_SALT_v1", issuerPk, originCanonical, epochDays, policyId, windowId).
func DeriveSalt(issuerPk []byte, originCanonical string, epochDays, windowID int64, policyID string) [32]byte {
	return brasscrypto.H3(
		[]byte("BRASS_SALT_v1"),
		issuerPk,
		[]byte(originCanonical),
		i64(epochDays),
		[]byte(policyID),
		i64(windowID),
	)
}

// DeriveNullifier computes y: H3("BRASS_NULLIFIER_v1", enc(Z'), KID, AADr, eta).
func DeriveNullifier(zPrime *brasscrypto.Point, kid, aadr string, eta [32]byte) [32]byte {
	return brasscrypto.H3(
		[]byte("BRASS_NULLIFIER_v1"),
		zPrime.EncodeCompressed(),
		[]byte(kid),
		[]byte(aadr),
		eta[:],
	)
}

// DeriveIdempotencyKey computes IK = HMAC-SHA-256(kvSecret,
// H3("BRASS_IK_v1", y, c)), base64url-encoded by the caller. This resolves
// spec §9 Open Question 4 (two competing length-prefix schemes in the
// source) in favor of the one H3 framing used for every other derived
// value in this package, keyed by the process secret so the HMAC output
// — not just its input — is unguessable without kvSecret.
func DeriveIdempotencyKey(kvSecret, y, c []byte) []byte {
	framed := brasscrypto.H3([]byte("BRASS_IK_v1"), y, c)
	return brasscrypto.HMACSHA256(kvSecret, framed[:])
}

// DeriveGraceNullifier computes y_g, deliberately omitting windowId so a
// token presented on either side of a midnight boundary collides:
// H3("BRASS_GRACE_v1", enc(Z'), KID, issuerPk, originCanonical, policyId,
// suite, version, AADr).
func DeriveGraceNullifier(zPrime *brasscrypto.Point, kid string, issuerPk []byte, originCanonical, policyID, suite, version, aadr string) [32]byte {
	return brasscrypto.H3(
		[]byte("BRASS_GRACE_v1"),
		zPrime.EncodeCompressed(),
		[]byte(kid),
		issuerPk,
		[]byte(originCanonical),
		[]byte(policyID),
		[]byte(suite),
		[]byte(version),
		[]byte(aadr),
	)
}

// DeriveTLSBinding computes the domain-separated TLS channel-binding
// digest: H3("tls_exporter", exporter) when an RFC 5705 exporter is
// present, or H3("no_exporter") otherwise, so the two modes never collide.
func DeriveTLSBinding(exporter []byte) [32]byte {
	if exporter == nil {
		return brasscrypto.H3([]byte("no_exporter"))
	}
	return brasscrypto.H3([]byte("tls_exporter"), exporter)
}

// DeriveHTTPContext computes d = H3("BRASS:HTTP_CTX_v1:", METHOD_UPPER,
// path, sha256(body)). method must already be uppercased by the caller
// (the raw method uppercased, per spec); path is the URL path component
// exactly as presented; body is the raw request body bytes.
func DeriveHTTPContext(method, path string, body []byte) [32]byte {
	bodyHash := brasscrypto.SHA256(body)
	return DeriveHTTPContextFromHash(method, path, bodyHash)
}

// DeriveHTTPContextFromHash is DeriveHTTPContext for a caller that already
// holds the body hash — the client-supplied http_body_hash_b64 override
// from spec §3, which carries a hash rather than raw body bytes.
func DeriveHTTPContextFromHash(method, path string, bodyHash [32]byte) [32]byte {
	return brasscrypto.H3(
		[]byte("BRASS:HTTP_CTX_v1:"),
		[]byte(method),
		[]byte(path),
		bodyHash[:],
	)
}
