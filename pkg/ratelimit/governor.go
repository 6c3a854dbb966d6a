package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for quota governance.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_rate_limit_remaining",
		Help: "Remaining request quota reported by the last response",
	})

	rateLimitSleepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_rate_limit_sleeps_total",
		Help: "Total number of pauses until a quota reset",
	})

	rateLimitSleepSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_rate_limit_sleep_seconds",
		Help:    "Duration of pauses until a quota reset",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
	})

	rateLimitExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_rate_limit_exhausted_total",
		Help: "Total number of requests refused because quota was exhausted and sleeping was disabled",
	})
)

var (
	// ErrResetUnavailable is returned when the quota is low but no reset
	// instant can be computed. The governor was configured without a reset
	// parser or the remote never sent one; waiting is impossible.
	ErrResetUnavailable = errors.New("rate limit reset time unavailable")
)

// RateLimitError is returned by MaybeWait when the quota is exhausted and
// sleeping is disabled.
type RateLimitError struct {
	Remaining int
	Wait      time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exhausted (%d remaining): %s until reset", e.Remaining, e.Wait)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResetFunc converts a reset header value into the reset instant.
type ResetFunc func(value string, now time.Time) (time.Time, error)

// DeltaSeconds interprets the header as seconds until the reset.
// Negative values are treated as an immediate reset.
func DeltaSeconds(value string, now time.Time) (time.Time, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse reset seconds %q: %w", value, err)
	}
	if secs < 0 {
		secs = 0
	}
	return now.Add(time.Duration(secs * float64(time.Second))), nil
}

// EpochSeconds interprets the header as a Unix timestamp.
func EpochSeconds(value string, _ time.Time) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse reset timestamp %q: %w", value, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// Config holds the governor configuration.
type Config struct {
	// SleepForRate enables pausing until the reset when quota is low.
	// When false, a low quota makes MaybeWait return a *RateLimitError.
	SleepForRate bool

	// MinRate is the quota floor. Clamped to MaxRateLimit.
	MinRate int

	// RemainingHeader and ResetHeader name the quota headers.
	RemainingHeader string
	ResetHeader     string

	// Reset converts the reset header into an instant. Nil means the
	// source offers no way to compute the wait.
	Reset ResetFunc

	// RequestsPerSecond enables proactive pacing when > 0.
	RequestsPerSecond float64
}

// DefaultConfig returns a governor configuration with sleeping disabled and
// delta-seconds reset semantics.
func DefaultConfig() Config {
	return Config{
		SleepForRate:    false,
		MinRate:         MinRateLimit,
		RemainingHeader: HeaderRemaining,
		ResetHeader:     HeaderReset,
		Reset:           DeltaSeconds,
	}
}

// Governor decides, before each request, whether the caller must wait.
type Governor struct {
	mu     sync.Mutex
	state  *RateState
	config Config
	pacer  *rate.Limiter
	logger zerolog.Logger
	now    func() time.Time
	sleep  SleepFunc
}

// NewGovernor creates a governor.
func NewGovernor(cfg Config, logger zerolog.Logger) *Governor {
	if cfg.MinRate > MaxRateLimit {
		cfg.MinRate = MaxRateLimit
	}
	if cfg.RemainingHeader == "" {
		cfg.RemainingHeader = HeaderRemaining
	}
	if cfg.ResetHeader == "" {
		cfg.ResetHeader = HeaderReset
	}

	g := &Governor{
		config: cfg,
		logger: logger,
		now:    time.Now,
		sleep:  Sleep,
	}
	if cfg.RequestsPerSecond > 0 {
		g.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g
}

// Config returns the effective configuration.
func (g *Governor) Config() Config {
	return g.config
}

// SetClock replaces the time source and sleeper (for testing).
func (g *Governor) SetClock(now func() time.Time, sleep SleepFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.sleep = sleep
}

// State returns a copy of the current snapshot and whether one is known.
func (g *Governor) State() (RateState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return RateState{}, false
	}
	return *g.state, true
}

// Observe replaces the snapshot with the quota signals in headers. A
// response without a remaining-quota header clears the snapshot.
func (g *Governor) Observe(headers http.Header) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	remainStr := headers.Get(g.config.RemainingHeader)
	if remainStr == "" {
		g.state = nil
		return nil
	}

	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		g.state = nil
		return fmt.Errorf("parse %s header: %w", g.config.RemainingHeader, err)
	}

	now := g.now()
	state := &RateState{
		Remaining:  remain,
		LastUpdate: now,
	}

	if resetStr := headers.Get(g.config.ResetHeader); resetStr != "" && g.config.Reset != nil {
		resetAt, err := g.config.Reset(resetStr, now)
		if err != nil {
			g.logger.Warn().Err(err).Str("header", g.config.ResetHeader).Msg("Ignoring unparsable reset header")
		} else {
			state.ResetAt = resetAt
		}
	}

	g.state = state
	rateLimitRemaining.Set(float64(remain))

	g.logger.Debug().
		Int("remaining", remain).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit state updated")

	return nil
}

// MaybeWait blocks until it is safe to send the next request. It only acts
// on a confirmed low quota; an unknown quota never blocks.
func (g *Governor) MaybeWait(ctx context.Context) error {
	if g.pacer != nil {
		if err := g.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pacing: %w", err)
		}
	}

	g.mu.Lock()
	state := g.state
	now := g.now
	sleep := g.sleep
	g.mu.Unlock()

	if state == nil || !state.IsLow(g.config.MinRate) {
		return nil
	}

	if !state.HasReset() {
		return ErrResetUnavailable
	}

	wait := state.TimeUntilReset(now())

	if !g.config.SleepForRate {
		rateLimitExhaustedTotal.Inc()
		g.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Rate limit exhausted and sleeping disabled")
		return &RateLimitError{Remaining: state.Remaining, Wait: wait}
	}

	g.logger.Info().
		Int("remaining", state.Remaining).
		Dur("wait_duration", wait).
		Msg("Rate limit exhausted, waiting for reset")

	rateLimitSleepsTotal.Inc()
	rateLimitSleepSeconds.Observe(wait.Seconds())

	if err := sleep(ctx, wait); err != nil {
		return fmt.Errorf("wait for rate limit reset: %w", err)
	}

	g.mu.Lock()
	g.state = nil
	g.mu.Unlock()

	return nil
}
