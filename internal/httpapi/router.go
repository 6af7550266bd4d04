// Package httpapi is the thin JSON transport wrapping internal/spend.
// Its shape is a direct generalization of the teacher's
// server.BlindedTokenRedeemHandler/setupRouter
// (server/tokens.go, server/server.go): decode a request body, call into
// the domain handler, map the result onto an HTTP status and JSON body.
// Everything transport-specific (bearer-token extraction, body size
// limits, panic recovery, request IDs) lives here and nowhere in
// internal/spend, per spec §1's stance that the core is transport-agnostic.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomjwxf/brass-proof-public/internal/brasserr"
	"github.com/tomjwxf/brass-proof-public/internal/spend"
)

const maxRequestBodySize = int64(64 * 1024)

// spendRequestBody is the wire shape of POST /verify: the Presentation
// under "presentation". The live method, path, body and TLS exporter are
// not part of it; spendHandler takes them from the connection and passes
// them in spend.Request. When the Presentation sets its optional
// httpMethod/httpPath/httpBodyHashB64/tlsExporterB64 fields, spend.Handler
// uses those in place of the live values.
type spendRequestBody struct {
	Presentation spend.Presentation `json:"presentation"`
}

// NewRouter builds the chi router serving /verify, /health, and
// /metrics, mirroring the teacher's setupRouter layering (RequestID,
// Recoverer, Timeout, request logging, then the routes; the bearer token
// is read inside the /verify handler, not by a middleware) but with spec
// §7's error taxonomy standing in for
// handlers.AppError. build/mode are echoed on /health exactly as
// spec.md §6 specifies the probe's body.
func NewRouter(h *spend.Handler, logger zerolog.Logger, build, mode string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chiware.RequestID)
	r.Use(chiware.Recoverer)
	r.Use(chiware.Timeout(10 * time.Second))
	r.Use(httplog.RequestLogger(httplog.NewLogger("brassd", httplog.Options{
		JSON:     true,
		LogLevel: "info",
	})))

	r.Get("/health", healthHandler(build, mode))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/verify", spendHandler(h))

	return r
}

// healthResponse is the probe body spec.md §6 specifies:
// { ok:true, ts, build, mode }.
type healthResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Build string `json:"build"`
	Mode  string `json:"mode"`
}

func healthHandler(build, mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			OK:    true,
			TS:    time.Now().UTC().Format(time.RFC3339),
			Build: build,
			Mode:  mode,
		})
	}
}

func spendHandler(h *spend.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
		if err != nil {
			writeError(w, brasserr.New(brasserr.ServerError))
			return
		}

		var body spendRequestBody
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, brasserr.New(brasserr.ServerError))
			return
		}

		apiKey := bearerToken(r.Header.Get("Authorization"))
		req := spend.Request{
			APIKey:          apiKey,
			Presentation:    body.Presentation,
			LiveMethod:      r.Method,
			LivePath:        r.URL.Path,
			LiveBody:        raw, // the exact bytes POSTed, so d matches a live (non-overridden) httpBodyHashB64
			LiveTLSExporter: tlsExporter(r),
		}

		resp, kerr := h.HandleSpend(r.Context(), req)

		status := http.StatusOK
		if kerr != nil {
			status = kerr.HTTPStatus()
		}
		writeJSON(w, status, resp)
	}
}

// bearerToken extracts the raw token from an "Authorization: Bearer <tok>"
// header, or returns the empty string, which spend.Handler treats as
// missing_api_key (spec §6).
func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

// tlsExporter always returns nil: it reads no RFC 5705 keying material
// from the connection and no header. The handler then uses the
// Presentation's tlsExporterB64 if set, and otherwise derives the
// "no_exporter" binding (spec §4.2), which is never an error.
func tlsExporter(r *http.Request) []byte {
	return nil
}

func writeError(w http.ResponseWriter, kerr *brasserr.Error) {
	writeJSON(w, kerr.HTTPStatus(), map[string]string{"error": string(kerr.Kind)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
