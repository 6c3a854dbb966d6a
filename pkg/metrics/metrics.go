// Package metrics exposes the Prometheus metrics of the harvester.
// All metrics are defined in their respective packages (client, ratelimit,
// archive, pagination) to maintain modularity and avoid circular dependencies.
//
// This package provides the registry, the HTTP exposition and the catalogue
// of every metric.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Path is where the exposition handler is mounted.
const Path = "/metrics"

// Handler returns the Prometheus exposition handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	mux := http.NewServeMux()
	mux.Handle(Path, Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Transport Metrics (pkg/client):
//   - harvest_requests_total{kind, status} (Counter): Attempts by transport kind (http, command) and status
//   - harvest_request_duration_seconds{kind} (Histogram): Duration of one logical request including retries
//   - harvest_errors_total{class} (Counter): Failed attempts by error class
//   - harvest_replays_total{kind, outcome} (Counter): Requests answered from the archive
//
// Retry Metrics (pkg/client):
//   - harvest_retries_total{error_class} (Counter): Retry attempts by error class
//   - harvest_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - harvest_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - harvest_rate_limit_remaining (Gauge): Remaining quota reported by the last response
//   - harvest_rate_limit_sleeps_total (Counter): Pauses until a quota reset
//   - harvest_rate_limit_sleep_seconds (Histogram): Duration of those pauses
//   - harvest_rate_limit_exhausted_total (Counter): Requests refused with sleeping disabled
//
// Archive Metrics (pkg/archive):
//   - harvest_archive_hits_total{backend} (Counter): Lookups that found an entry
//   - harvest_archive_misses_total (Counter): Lookups for unknown keys
//   - harvest_archive_writes_total{backend, outcome} (Counter): Entries written (payload, failure)
//   - harvest_archive_errors_total{operation} (Counter): Store errors (get, put)
//
// Pagination Metrics (pkg/pagination):
//   - harvest_pages_total{engine} (Counter): Pages requested (merge, walk, collect)
//   - harvest_items_yielded_total{engine} (Counter): Items handed to the caller
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   sum(rate(harvest_retries_total[5m])) / sum(rate(harvest_requests_total[5m]))
//
//   # Quota Status
//   harvest_rate_limit_remaining < 5
//
//   # Replay Share
//   sum(rate(harvest_replays_total[5m])) / sum(rate(harvest_requests_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(harvest_request_duration_seconds_bucket[5m]))
