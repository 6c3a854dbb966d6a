package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Sternrassler/harvester/pkg/archive"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Runner executes a command line and returns its standard output.
type Runner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
}

// ShellRunner runs command lines through sh -c.
type ShellRunner struct{}

// Run implements Runner.
func (ShellRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stderr = &stderr

	out, err := c.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// CommandConfig holds the command client configuration.
type CommandConfig struct {
	// MaxAttempts is the number of times a failing command is run
	MaxAttempts int

	// RetryWait is multiplied by the number of failures so far to get the
	// pause before the next attempt
	RetryWait time.Duration

	// Archive records outcomes, or answers commands when FromArchive is set (optional)
	Archive     *archive.Archive
	FromArchive bool
}

// DefaultCommandConfig returns the default command client configuration.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		MaxAttempts: 3,
		RetryWait:   60 * time.Second,
	}
}

// CommandClient is the retrying out-of-process transport.
type CommandClient struct {
	runner Runner
	config CommandConfig
	logger zerolog.Logger
	sleep  ratelimit.SleepFunc
}

// NewCommandClient creates a command client. A nil runner uses ShellRunner.
func NewCommandClient(cfg CommandConfig, runner Runner) (*CommandClient, error) {
	if cfg.FromArchive && cfg.Archive == nil {
		return nil, ErrArchiveRequired
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if runner == nil {
		runner = ShellRunner{}
	}

	return &CommandClient{
		runner: runner,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentTransport),
		sleep:  ratelimit.Sleep,
	}, nil
}

// Run executes cmd.
func (c *CommandClient) Run(ctx context.Context, cmd string) ([]byte, error) {
	return c.Fetch(ctx, archive.CommandDescriptor(cmd))
}

// Fetch implements Transport. Failing commands are retried; the exhaustion
// error is archived and re-raised on replay.
func (c *CommandClient) Fetch(ctx context.Context, d archive.Descriptor) ([]byte, error) {
	if d.Kind != archive.KindCommand {
		return nil, fmt.Errorf("command client cannot execute %q descriptor", d.Kind)
	}
	if c.config.FromArchive {
		return replay(ctx, c.config.Archive, d)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(archive.KindCommand).Observe(time.Since(startTime).Seconds())
	}()

	sanitized := archive.SanitizeCommand(d.Command)
	c.logger.Debug().Str("cmd", sanitized).Msg("Executing command")

	retry := RetryConfig{MaxAttempts: c.config.MaxAttempts}
	payload, err := retryWithBackoff(ctx, retry, c.logger, c.sleep, linearWait(c.config.RetryWait),
		func(ctx context.Context, attempt int) ([]byte, error) {
			out, err := c.runner.Run(ctx, d.Command)
			if err == nil {
				requestsTotal.WithLabelValues(archive.KindCommand, "ok").Inc()
				return out, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}

			requestsTotal.WithLabelValues(archive.KindCommand, "failed").Inc()
			c.logger.Error().
				Str("cmd", sanitized).
				Int("attempt", attempt).
				Str("error", archive.SanitizeCommand(err.Error())).
				Msg("Command failed")

			te := &TransportError{
				Class:   ErrorClassCommand,
				Message: fmt.Sprintf("%s failed: %s", sanitized, archive.SanitizeCommand(err.Error())),
				Err:     err,
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				te.StatusCode = exitErr.ExitCode()
			}
			return nil, te
		})

	return record(ctx, c.config.Archive, c.logger, d, payload, err)
}

// SetSleep replaces the sleeper (for testing).
func (c *CommandClient) SetSleep(sleep ratelimit.SleepFunc) {
	c.sleep = sleep
}
