// Package gerrit fetches code reviews from a Gerrit server over its SSH
// command interface.
//
// The server version decides how results are paged. Version 2.8 needs open
// and closed reviews queried separately and merged newest first; every other
// version answers a single combined query. Versions above 2.9 resume with an
// offset, 2.9 cannot resume at all, and older servers resume after the sort
// key of the last review consumed.
//
// Example:
//
//	transport, _ := client.NewCommandClient(client.DefaultCommandConfig(), nil)
//	cfg := gerrit.DefaultConfig("review.example.org")
//	cfg.User = "harvester"
//	g, _ := gerrit.New(cfg, transport)
//	for review, err := range g.Fetch(ctx, since) {
//		...
//	}
package gerrit

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/pagination"
	"github.com/rs/zerolog"
)

// Transport runs a command line and returns its output.
// *client.CommandClient satisfies it.
type Transport interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
}

// Client is the Gerrit connector.
type Client struct {
	config    Config
	transport Transport
	logger    zerolog.Logger

	mu      sync.Mutex
	version *Version
}

// New creates a connector.
func New(cfg Config, transport Transport) (*Client, error) {
	if cfg.Hostname == "" {
		return nil, errors.New("gerrit hostname is required")
	}
	if transport == nil {
		return nil, errors.New("gerrit transport is required")
	}
	if cfg.MaxReviews < 1 {
		cfg.MaxReviews = 1
	}

	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logging.NewLogger(logging.ComponentGerrit).With().Str("origin", cfg.Hostname).Logger(),
	}, nil
}

// Config returns the connector configuration.
func (c *Client) Config() Config {
	return c.config
}

// Version returns the server version. The first successful answer is cached.
func (c *Client) Version(ctx context.Context) (Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version != nil {
		return *c.version, nil
	}

	out, err := c.transport.Run(ctx, c.config.VersionCommand())
	if err != nil {
		return Version{}, err
	}
	v, err := ParseVersion(string(out))
	if err != nil {
		return Version{}, err
	}

	c.logger.Debug().Str("version", v.String()).Msg("Detected server version")
	c.version = &v
	return v, nil
}

// Reviews runs one query for filter at cursor and returns the reviews.
func (c *Client) Reviews(ctx context.Context, filter string, cursor pagination.Cursor) ([]item.RawItem, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	cmd, err := c.config.QueryCommand(v, filter, cursor)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.transport.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	reviews, err := ParseReviews(out)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("filter", filter).
		Int("count", len(reviews)).
		Dur("duration", time.Since(start)).
		Msg("Received reviews")
	return reviews, nil
}

// Fetch returns the reviews updated after watermark, newest first. Fatal
// errors end the sequence as its last element.
func (c *Client) Fetch(ctx context.Context, watermark time.Time) iter.Seq2[item.RawItem, error] {
	return func(yield func(item.RawItem, error) bool) {
		v, err := c.Version(ctx)
		if err != nil {
			yield(item.RawItem{}, err)
			return
		}
		mode, err := v.pagination()
		if err != nil {
			yield(item.RawItem{}, err)
			return
		}

		filters := []string{""}
		if v.DualQueue() {
			filters = []string{FilterOpen, FilterClosed}
		}

		pagers := make([]pagination.Pager, len(filters))
		for i, filter := range filters {
			pagers[i] = pagination.NewLimitPager(c.config.MaxReviews, newCursor(mode),
				func(ctx context.Context, cursor pagination.Cursor) ([]item.RawItem, error) {
					return c.Reviews(ctx, filter, cursor)
				})
		}

		c.logger.Info().
			Str("version", v.String()).
			Time("from_date", watermark).
			Int("partitions", len(pagers)).
			Msg("Fetching reviews")

		count := 0
		for review, err := range pagination.Merge(ctx, watermark, pagers...) {
			if err != nil {
				c.logger.Error().Err(err).Msg("Fetch failed")
				yield(item.RawItem{}, err)
				return
			}
			if slices.Contains(c.config.BlacklistIDs, review.ID) {
				c.logger.Warn().Str("id", review.ID).Msg("Skipping blacklisted review")
				continue
			}
			count++
			if !yield(review, nil) {
				return
			}
		}

		c.logger.Info().Int("count", count).Msg("Fetch finished")
	}
}
