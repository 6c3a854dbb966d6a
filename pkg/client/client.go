// Package client provides the retrying transports used by the connectors: an
// HTTP client and an out-of-process command client. Both consult the rate
// limit governor before sending, and record to or replay from an archive.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/harvester/pkg/archive"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_requests_total",
		Help: "Total requests by transport kind and status",
	}, []string{"kind", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_request_duration_seconds",
		Help:    "Duration of one logical request including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 60},
	}, []string{"kind"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	replaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_replays_total",
		Help: "Total requests answered from the archive by outcome",
	}, []string{"kind", "outcome"})
)

// Default status sets.
var (
	// DefaultStatusForcelist are statuses retried with exponential backoff.
	DefaultStatusForcelist = []int{
		http.StatusRequestTimeout, // 408
		http.StatusLocked,         // 423
		http.StatusGatewayTimeout, // 504
	}

	// DefaultRetryAfterStatus are statuses retried after the Retry-After delay.
	DefaultRetryAfterStatus = []int{
		http.StatusRequestEntityTooLarge, // 413
		http.StatusTooManyRequests,       // 429
		http.StatusServiceUnavailable,    // 503
	}
)

// Transport executes one descriptor and returns the raw response payload.
type Transport interface {
	Fetch(ctx context.Context, d archive.Descriptor) ([]byte, error)
}

// Config holds the HTTP client configuration.
type Config struct {
	// UserAgent is sent with every request
	UserAgent string

	// Headers are added to every request
	Headers http.Header

	// Timeout bounds a single attempt
	Timeout time.Duration

	// Retry
	Retry                 RetryConfig
	ExtraStatusForcelist  []int
	ExtraRetryAfterStatus []int

	// Governor is consulted before each attempt and fed each response (optional)
	Governor *ratelimit.Governor

	// Archive records outcomes, or answers requests when FromArchive is set (optional)
	Archive     *archive.Archive
	FromArchive bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the retrying HTTP transport.
type Client struct {
	httpClient *http.Client
	config     Config
	forcelist  map[int]bool
	retryAfter map[int]bool
	logger     zerolog.Logger
	now        func() time.Time
	sleep      ratelimit.SleepFunc
}

// New creates a new HTTP client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.FromArchive && cfg.Archive == nil {
		return nil, ErrArchiveRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:     cfg,
		forcelist:  make(map[int]bool),
		retryAfter: make(map[int]bool),
		logger:     logging.NewLogger(logging.ComponentTransport),
		now:        time.Now,
		sleep:      ratelimit.Sleep,
	}

	for _, s := range append(append([]int(nil), DefaultStatusForcelist...), cfg.ExtraStatusForcelist...) {
		c.forcelist[s] = true
	}
	for _, s := range append(append([]int(nil), DefaultRetryAfterStatus...), cfg.ExtraRetryAfterStatus...) {
		c.retryAfter[s] = true
	}

	return c, nil
}

// Fetch executes d, retrying transient failures. In replay mode the archive
// answers instead; a recorded failure is returned as a *TransportError.
func (c *Client) Fetch(ctx context.Context, d archive.Descriptor) ([]byte, error) {
	if c.config.FromArchive {
		return replay(ctx, c.config.Archive, d)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(archive.KindHTTP).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("method", d.Method).
		Str("url", d.URL).
		Msg("Executing request")

	payload, err := retryWithBackoff(ctx, c.config.Retry, c.logger, c.sleep, httpWait(c.config.Retry),
		func(ctx context.Context, _ int) ([]byte, error) {
			return c.attempt(ctx, d)
		})

	return record(ctx, c.config.Archive, c.logger, d, payload, err)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	return c.Fetch(ctx, archive.HTTPDescriptor(http.MethodGet, url, headers, nil))
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, url string, headers http.Header, body []byte) ([]byte, error) {
	return c.Fetch(ctx, archive.HTTPDescriptor(http.MethodPost, url, headers, body))
}

// attempt sends d once.
func (c *Client) attempt(ctx context.Context, d archive.Descriptor) ([]byte, error) {
	if gov := c.config.Governor; gov != nil {
		if err := gov.MaybeWait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	for name, values := range c.config.Headers {
		req.Header[name] = append([]string(nil), values...)
	}
	for name, values := range d.Headers {
		req.Header[name] = append([]string(nil), values...)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		requestsTotal.WithLabelValues(archive.KindHTTP, "network_error").Inc()
		return nil, &TransportError{
			Class:   ErrorClassNetwork,
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(archive.KindHTTP, "read_error").Inc()
		return nil, &TransportError{
			Class:      ErrorClassNetwork,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read body: %v", err),
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(archive.KindHTTP, strconv.Itoa(resp.StatusCode)).Inc()

	if gov := c.config.Governor; gov != nil {
		if err := gov.Observe(resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if class, retryAfter := c.classify(resp); class != "" {
		return nil, &TransportError{
			Class:      class,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s %s: %s", d.Method, d.URL, resp.Status),
			RetryAfter: retryAfter,
		}
	}

	return body, nil
}

// classify returns the error class of resp, or "" for success.
func (c *Client) classify(resp *http.Response) (ErrorClass, time.Duration) {
	status := resp.StatusCode

	if c.retryAfter[status] {
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
			return ErrorClassRateLimit, wait
		}
	}

	switch {
	case c.forcelist[status]:
		return ErrorClassTransient, 0
	case status >= 500:
		return ErrorClassServer, 0
	case status >= 400:
		return ErrorClassClient, 0
	default:
		return "", 0
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}

// StatusForcelist returns the effective forcelist, sorted.
func (c *Client) StatusForcelist() []int {
	return sortedKeys(c.forcelist)
}

// RetryAfterStatus returns the effective retry-after statuses, sorted.
func (c *Client) RetryAfterStatus() []int {
	return sortedKeys(c.retryAfter)
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock replaces the time source and sleeper (for testing).
func (c *Client) SetClock(now func() time.Time, sleep ratelimit.SleepFunc) {
	c.now = now
	c.sleep = sleep
}

// replay answers d from arc.
func replay(ctx context.Context, arc *archive.Archive, d archive.Descriptor) ([]byte, error) {
	payload, err := arc.Replay(ctx, d)
	if err != nil {
		var failure *archive.Failure
		if errors.As(err, &failure) {
			replaysTotal.WithLabelValues(d.Kind, archive.OutcomeFailure).Inc()
			return nil, fromFailure(failure)
		}
		return nil, err
	}
	replaysTotal.WithLabelValues(d.Kind, archive.OutcomePayload).Inc()
	return payload, nil
}

// record stores a definitive outcome in arc (when set) and passes it through.
// Cancellation and governor refusals are not outcomes of the request and are
// not recorded.
func record(ctx context.Context, arc *archive.Archive, logger zerolog.Logger,
	d archive.Descriptor, payload []byte, err error) ([]byte, error) {

	if arc == nil {
		return payload, err
	}

	var te *TransportError
	if err != nil && !errors.As(err, &te) {
		return nil, err
	}

	if archiveErr := arc.Record(ctx, d, payload, err); archiveErr != nil {
		logger.Warn().Err(archiveErr).Msg("Failed to archive request")
	}

	return payload, err
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
