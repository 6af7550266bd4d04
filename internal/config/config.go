// Package config builds a validated configuration record once at process
// start, in the shape of the teacher's Server/DefaultServer pattern
// (server/server.go) generalized from "global env lookup at handler
// entry" to "explicit struct built once, passed into the handler" (spec
// §9's pattern translation for this exact concern).
package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
)

const (
	BackendAtomic     = "atomic"
	BackendBestEffort = "best-effort"

	defaultGraceSeconds = 60
)

var (
	ErrMissingIssuerPubkey = errors.New("BRASS_ISSUER_PUBKEY is required")
	ErrMissingKVSecret     = errors.New("BRASS_KV_SECRET is required")
	ErrInvalidKVSecret     = errors.New("BRASS_KV_SECRET must decode to 32 bytes")
	ErrInvalidBackend      = errors.New("STORAGE_BACKEND must be \"atomic\" or \"best-effort\"")
)

// Config is the validated, immutable configuration passed explicitly into
// the spend handler and the stores at startup; nothing downstream reaches
// into the environment directly.
type Config struct {
	StorageBackend   string
	BoundaryGraceSec int
	RateLimit        int
	IssuerPubkey     []byte
	StaticAPIKey     string
	KVSecret         []byte
	TelemetrySinkURL string
	TelemetrySinkKey string
}

// Load reads and validates the environment bindings from spec §6 using
// getenv (os.LookupEnv in production, a map in tests), returning a ready-
// to-use Config or the first validation failure.
func Load(getenv func(string) (string, bool)) (*Config, error) {
	c := &Config{
		StorageBackend:   BackendBestEffort,
		BoundaryGraceSec: defaultGraceSeconds,
	}

	if v, ok := getenv("STORAGE_BACKEND"); ok && v != "" {
		if v != BackendAtomic && v != BackendBestEffort {
			return nil, ErrInvalidBackend
		}
		c.StorageBackend = v
	}

	if v, ok := getenv("BOUNDARY_GRACE_SECONDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("BOUNDARY_GRACE_SECONDS must be an integer")
		}
		c.BoundaryGraceSec = n
	}

	if v, ok := getenv("BRASS_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New("BRASS_RATE_LIMIT must be an integer")
		}
		c.RateLimit = n
	}

	pubkeyStr, ok := getenv("BRASS_ISSUER_PUBKEY")
	if !ok || pubkeyStr == "" {
		return nil, ErrMissingIssuerPubkey
	}
	pubkey, err := base64.RawURLEncoding.DecodeString(pubkeyStr)
	if err != nil {
		return nil, errors.New("BRASS_ISSUER_PUBKEY must be base64url")
	}
	c.IssuerPubkey = pubkey

	kvSecretStr, ok := getenv("BRASS_KV_SECRET")
	if !ok || kvSecretStr == "" {
		return nil, ErrMissingKVSecret
	}
	kvSecret, err := base64.RawURLEncoding.DecodeString(kvSecretStr)
	if err != nil || len(kvSecret) != 32 {
		return nil, ErrInvalidKVSecret
	}
	c.KVSecret = kvSecret

	if v, ok := getenv("BRASS_SECRET_KEY"); ok {
		c.StaticAPIKey = v
	}
	if v, ok := getenv("BRASS_TELEMETRY_SINK_URL"); ok {
		c.TelemetrySinkURL = v
	}
	if v, ok := getenv("BRASS_TELEMETRY_SINK_KEY"); ok {
		c.TelemetrySinkKey = v
	}

	return c, nil
}

// LoadFromEnv is the production entry point, reading real process
// environment variables.
func LoadFromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}
