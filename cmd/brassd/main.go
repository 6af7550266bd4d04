// Command brassd is the BRASS spend-verification server. Its shape is
// the teacher's main.go flattened onto a single HTTP surface: load
// config, build the storage backend, wire the domain handler, start the
// background telemetry flusher, then serve — the same ordering the
// teacher uses for its db/cron/kafka/server startup sequence, with
// database/Dynamo/Kafka setup replaced by the counter-store backend
// this spec needs instead.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"

	"github.com/tomjwxf/brass-proof-public/internal/applog"
	"github.com/tomjwxf/brass-proof-public/internal/config"
	"github.com/tomjwxf/brass-proof-public/internal/counterstore"
	"github.com/tomjwxf/brass-proof-public/internal/httpapi"
	"github.com/tomjwxf/brass-proof-public/internal/metrics"
	"github.com/tomjwxf/brass-proof-public/internal/spend"
	"github.com/tomjwxf/brass-proof-public/internal/telemetry"
)

var buildVersion = "dev"

func main() {
	var listenPort int
	flag.IntVar(&listenPort, "p", 8080, "port to listen on")
	flag.Parse()

	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			listenPort = n
		}
	}

	logger := applog.New(os.Stderr, buildVersion, os.Getenv("ENV"))
	logger.Info().Msg("loading config")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build counter store")
	}

	keys := apiKeyLookup(cfg)

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := telemetry.NewSink(256, cfg.TelemetrySinkURL, cfg.TelemetrySinkKey, &logger)
	sink.Start(ctx)

	handler, err := spend.NewHandler(cfg, keys, store, sink, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build spend handler")
	}

	mode := os.Getenv("ENV")
	router := httpapi.NewRouter(handler, logger, buildVersion, mode)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(listenPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", listenPort).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server exited")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	cancel()
}

// buildStore picks the counter-store backend per spec §6's
// STORAGE_BACKEND switch: "atomic" dials Redis via a pooled connection,
// "best-effort" runs the in-process MemStore.
func buildStore(cfg *config.Config, logger zerolog.Logger) (counterstore.Store, error) {
	if cfg.StorageBackend != config.BackendAtomic {
		return counterstore.NewMemStore(), nil
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	pool := &redis.Pool{
		MaxIdle:     8,
		MaxActive:   64,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	return counterstore.NewRedisStore(pool), nil
}

// apiKeyLookup builds the tenancy resolver spec §6 describes: a single
// BRASS_SECRET_KEY bound to a fallback project when no multi-tenant
// lookup is configured.
func apiKeyLookup(cfg *config.Config) spend.APIKeyLookup {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 100
	}
	return spend.NewSingleKeyLookup(cfg.StaticAPIKey, "default", limit)
}
