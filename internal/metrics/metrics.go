// Package metrics registers the prometheus counters the spend handler
// increments at each terminal state, adapted from the teacher's
// metrics/metrics.go (CounterRedeemTotal/Success/Error family) onto the
// BRASS result/errorKind taxonomy instead of the teacher's
// issue/redeem taxonomy.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SpendTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brass_spend_total",
		Help: "Total number of spend verification requests.",
	})
	SpendOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brass_spend_ok_total",
		Help: "Total number of spend requests that succeeded.",
	})
	SpendDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brass_spend_denied_total",
		Help: "Total number of spend requests denied by the rate limit.",
	})
	SpendError = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brass_spend_error_total",
		Help: "Total number of spend requests that failed validation or server-side.",
	})
	SpendErrorByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brass_spend_error_kind_total",
		Help: "Total number of spend errors broken down by error kind.",
	}, []string{"kind"})
	GraceWindowHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brass_grace_window_hits_total",
		Help: "Total number of requests served from the midnight grace cache.",
	})
)

// Register adds every spend counter to the default prometheus registry.
// Called once at process start, mirroring the teacher's init()-time
// prometheus.MustRegister calls in server/server.go.
func Register() {
	prometheus.MustRegister(
		SpendTotal, SpendOK, SpendDenied, SpendError, SpendErrorByKind, GraceWindowHits,
	)
}
