// Package applog constructs the zerolog logger threaded explicitly through
// config, the handler, and the telemetry sink, in the style of the
// teacher's zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
// setup in main.go, generalized away from a package-global so business
// logic never reaches for a global logger.
package applog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w (os.Stderr in production, a buffer in
// tests) with the build and mode fields every log line should carry.
func New(w io.Writer, build, mode string) zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("ENV") != "production" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("build", build).
		Str("mode", mode).
		Logger()
}
