// Package telemetry implements the fire-and-forget event emission spec §1
// and §5 describe: the core only emits event records, never blocks a
// response on delivery, and telemetry transport itself is out of core
// scope. Events are buffered in a bounded channel and periodically
// flushed to an optional HTTP sink by a background cron job — the
// teacher's own fire-and-forget error channel in server/main.go's
// ListenAndServe is the direct model for "emit now, consume later
// without blocking the caller".
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Event is the record spec §4.5/§6 requires at every terminal handler
// state.
type Event struct {
	Result          string `json:"result"`
	ResponseTimeMs  int64  `json:"responseTimeMs"`
	InGracePeriod   bool   `json:"inGracePeriod"`
	GraceProtected  bool   `json:"graceProtected,omitempty"`
	Idempotent      bool   `json:"idempotent,omitempty"`
	Remaining       *int   `json:"remaining,omitempty"`
	ProjectID       string `json:"projectId,omitempty"`
	ErrorKind       string `json:"errorKind,omitempty"`
}

// Sink is a bounded buffer plus a background flusher. Emit never blocks
// the caller: a full buffer drops the event (spec §5: "a small telemetry
// buffer, bounded, drops on overflow").
type Sink struct {
	events   chan Event
	logger   *zerolog.Logger
	sinkURL  string
	sinkKey  string
	client   *http.Client
	cronJob  *cron.Cron
	batch    []Event
}

// NewSink constructs a telemetry buffer of the given capacity. sinkURL may
// be empty, in which case events are only logged, never shipped (the
// dashboard/managed telemetry product is out of core scope per spec §1).
func NewSink(capacity int, sinkURL, sinkKey string, logger *zerolog.Logger) *Sink {
	return &Sink{
		events:  make(chan Event, capacity),
		logger:  logger,
		sinkURL: sinkURL,
		sinkKey: sinkKey,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Emit enqueues an event without blocking; if the buffer is full the
// event is dropped and a debug-level log line records the drop, so a
// saturated buffer is visible without being noisy.
func (s *Sink) Emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Debug().Msg("telemetry buffer full, dropping event")
	}
}

// Start launches the background cron flusher (every 10s) that drains
// buffered events into batches and posts them to the sink, then returns
// at once; when ctx is cancelled a background goroutine stops the cron
// job and runs one final flush. The cron-based periodic drain, rather than a
// per-event goroutine, is what keeps delivery fire-and-forget from the
// request path's point of view.
func (s *Sink) Start(ctx context.Context) {
	s.cronJob = cron.New(cron.WithSeconds())
	_, err := s.cronJob.AddFunc("*/10 * * * * *", s.flush)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to schedule telemetry flush")
		return
	}
	s.cronJob.Start()
	go func() {
		<-ctx.Done()
		s.cronJob.Stop()
		s.flush()
	}()
}

func (s *Sink) flush() {
	s.batch = s.batch[:0]
drain:
	for {
		select {
		case e := <-s.events:
			s.batch = append(s.batch, e)
		default:
			break drain
		}
	}
	if len(s.batch) == 0 {
		return
	}
	if s.sinkURL == "" {
		for _, e := range s.batch {
			s.logger.Info().Interface("event", e).Msg("spend telemetry")
		}
		return
	}
	s.post(s.batch)
}

func (s *Sink) post(batch []Event) {
	payload, err := json.Marshal(batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal telemetry batch")
		return
	}
	req, err := http.NewRequest(http.MethodPost, s.sinkURL, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build telemetry request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.sinkKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.sinkKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("telemetry delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn().Int("status", resp.StatusCode).Msg("telemetry sink rejected batch")
	}
}
