// Package metrics holds the Prometheus collectors of the client and the
// optional /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_remote_requests_total",
		Help: "Total number of HTTP requests sent to remote services.",
	}, []string{"code", "method"})

	remoteRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradebook_remote_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests sent to remote services.",
		Buckets: prometheus.DefBuckets,
	}, []string{"code", "method"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_cache_lookups_total",
		Help: "Entity cache lookups by collection and result (hit, miss, stale).",
	}, []string{"collection", "result"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_mutations_total",
		Help: "Optimistic mutations by collection, operation and outcome.",
	}, []string{"collection", "op", "outcome"})

	sessionRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradebook_session_refreshes_total",
		Help: "Silent credential refreshes by outcome.",
	}, []string{"outcome"})
)

// InstrumentTransport wraps base so every remote request is counted and
// timed. A nil base means http.DefaultTransport.
func InstrumentTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(remoteRequestsTotal,
		promhttp.InstrumentRoundTripperDuration(remoteRequestDuration, base))
}

func ObserveCacheLookup(collection, result string) {
	cacheLookupsTotal.WithLabelValues(collection, result).Inc()
}

func ObserveMutation(collection, op, outcome string) {
	mutationsTotal.WithLabelValues(collection, op, outcome).Inc()
}

func ObserveSessionRefresh(outcome string) {
	sessionRefreshesTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Serve runs the metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
