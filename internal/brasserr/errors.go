// Package brasserr defines the closed set of surface-visible error kinds
// from spec §7 and maps each to an HTTP status, in the shape of the
// teacher's handlers.AppError (github.com/brave-intl/bat-go/utils/handlers)
// reimplemented locally since bat-go sits outside the retrieved pack.
package brasserr

import "net/http"

// Kind is one of the closed error kinds a spend request can fail with.
type Kind string

const (
	MissingAPIKey          Kind = "missing_api_key"
	InvalidAPIKey          Kind = "invalid_api_key"
	InvalidPointEncoding   Kind = "invalid_point_encoding"
	InvalidPointInfinity   Kind = "invalid_point_infinity"
	InvalidPiI             Kind = "invalid_piI"
	InvalidPiC             Kind = "invalid_piC"
	DMismatch              Kind = "d_mismatch"
	InvalidOrigin          Kind = "invalid_origin"
	OriginMustBeHTTPS      Kind = "origin_must_be_https"
	OriginMustNotHavePath  Kind = "origin_must_not_contain_path_query_fragment"
	InvalidHostname        Kind = "invalid_hostname"
	LimitExceeded          Kind = "limit_exceeded"
	ServerError            Kind = "server_error"
)

// httpStatus maps each Kind to the HTTP status spec §6 assigns it.
var httpStatus = map[Kind]int{
	MissingAPIKey:         http.StatusUnauthorized,
	InvalidAPIKey:         http.StatusUnauthorized,
	InvalidPointEncoding:  http.StatusUnauthorized,
	InvalidPointInfinity:  http.StatusUnauthorized,
	InvalidPiI:            http.StatusUnauthorized,
	InvalidPiC:            http.StatusUnauthorized,
	DMismatch:             http.StatusUnauthorized,
	InvalidOrigin:         http.StatusUnauthorized,
	OriginMustBeHTTPS:     http.StatusUnauthorized,
	OriginMustNotHavePath: http.StatusUnauthorized,
	InvalidHostname:       http.StatusUnauthorized,
	LimitExceeded:         http.StatusTooManyRequests,
	ServerError:           http.StatusInternalServerError,
}

// Error is a spend-pipeline failure carrying its surface-visible kind, the
// HTTP status it maps to, and an optional wrapped cause that is never
// itself serialized to the caller.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind) *Error             { return &Error{Kind: kind} }
func Wrap(kind Kind, cause error) *Error { return &Error{Kind: kind, Cause: cause} }

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the HTTP status this error kind maps to, defaulting
// to 500 for an unrecognized kind (should not happen for a Kind produced
// by this package).
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}
