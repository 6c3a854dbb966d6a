package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/harvester/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// attemptFunc performs one attempt. Failures worth classifying are returned
// as *TransportError; any other error ends the retry loop immediately.
type attemptFunc func(ctx context.Context, attempt int) ([]byte, error)

// waitFunc returns how long to wait after the given failed attempt.
type waitFunc func(err *TransportError, attempt int) time.Duration

// httpWait is the wait policy of the HTTP transport. Rate-limited responses
// wait the advertised delay multiplied by the attempt number; other retryable
// failures back off exponentially with jitter.
func httpWait(cfg RetryConfig) waitFunc {
	return func(err *TransportError, attempt int) time.Duration {
		if err.Class == ErrorClassRateLimit {
			return err.RetryAfter * time.Duration(attempt)
		}
		return exponentialBackoff(cfg, attempt)
	}
}

// linearWait waits step*(attempt-1): nothing after the first failure.
func linearWait(step time.Duration) waitFunc {
	return func(_ *TransportError, attempt int) time.Duration {
		return step * time.Duration(attempt-1)
	}
}

// exponentialBackoff returns the jittered backoff after the given attempt.
func exponentialBackoff(cfg RetryConfig, attempt int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}

	// Add jitter (±20% randomness)
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff runs fn until it succeeds, fails definitively or the
// attempt budget is spent. No wait follows the last attempt.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger,
	sleep ratelimit.SleepFunc, wait waitFunc, fn attemptFunc) ([]byte, error) {

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *TransportError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		payload, err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return payload, nil
		}

		var te *TransportError
		if !errors.As(err, &te) {
			return nil, err
		}

		te.Attempts = attempt
		lastErr = te
		errorsTotal.WithLabelValues(string(te.Class)).Inc()

		if !shouldRetry(te.Class) {
			return nil, te
		}

		if attempt >= maxAttempts {
			break
		}

		backoff := wait(te, attempt)
		retriesTotal.WithLabelValues(string(te.Class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(te.Class)).Observe(backoff.Seconds())

		logger.Warn().
			Str("error_class", string(te.Class)).
			Int("status_code", te.StatusCode).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, backoff); err != nil {
			logger.Warn().
				Str("error_class", string(te.Class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastErr.Class)).Inc()
	logger.Error().
		Str("error_class", string(lastErr.Class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	lastErr.Exhausted = true
	return nil, lastErr
}
