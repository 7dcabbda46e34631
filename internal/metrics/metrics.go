// Package metrics exposes the server's Prometheus counters and gauges over
// an optional HTTP endpoint.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_accepted_total",
		Help: "Total agency TCP connections accepted.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Current number of in-flight agency sessions.",
	})
	BatchesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batches_received_total",
		Help: "Total BET_BATCH messages received, by outcome.",
	}, []string{"result"})
	BetsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bets_stored_total",
		Help: "Total bets successfully persisted to the store.",
	})
	DrawsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "draws_completed_total",
		Help: "Total per-agency draws completed after the barrier released.",
	})
	BarrierTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barrier_timeouts_total",
		Help: "Total sessions that observed a barrier timeout instead of a draw.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrAccept    = "accept"
	ErrProtocol  = "protocol"
	ErrStore     = "store"
	ErrBarrier   = "barrier"
	ErrTransport = "transport"
)

// IncBatchResult records one BET_BATCH outcome ("success" or "failure").
func IncBatchResult(result string) { BatchesReceived.WithLabelValues(result).Inc() }

// IncError increments the error counter for the given subsystem label.
func IncError(where string) { Errors.WithLabelValues(where).Inc() }

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present, and reports
// not ready until one is registered.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return false
	}
	return fn()
}
