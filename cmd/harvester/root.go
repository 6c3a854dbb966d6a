package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/Sternrassler/harvester/internal/config"
	"github.com/Sternrassler/harvester/pkg/client"
	"github.com/Sternrassler/harvester/pkg/item"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/Sternrassler/harvester/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by the commands of one invocation.
type app struct {
	out     io.Writer
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string

	fromDate string

	// runner executes ssh commands; nil runs them through the shell
	runner client.Runner
}

func newApp(out io.Writer) *app {
	return &app{out: out, v: config.New()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "harvester",
		Short: "Fetch reviews and events as JSON lines",
		Long: `harvester incrementally fetches items from remote services.

Items updated after --from-date are written to stdout, one JSON object per
line. Raw responses can be recorded to an archive and replayed later with
--from-archive, without contacting the service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.StringVar(&a.fromDate, "from-date", "", "fetch items updated after this date (RFC 3339 or YYYY-MM-DD)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "human-readable logs")
	flags.String("archive-backend", config.BackendNone, "archive backend (none, memory, redis, sqlite)")
	flags.String("archive-path", "harvest-archive.db", "sqlite archive file")
	flags.String("redis-addr", "localhost:6379", "redis archive address")
	flags.Bool("from-archive", false, "replay from the archive instead of contacting the service")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while fetching")
	flags.String("user-agent", "harvester/1.0", "HTTP user agent")

	for key, name := range map[string]string{
		"log.level":            "log-level",
		"log.pretty":           "pretty",
		"archive.backend":      "archive-backend",
		"archive.path":         "archive-path",
		"archive.redis_addr":   "redis-addr",
		"archive.from_archive": "from-archive",
		"metrics.addr":         "metrics-addr",
		"http.user_agent":      "user-agent",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(newGerritCmd(a))
	root.AddCommand(newMeetupCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})
	return nil
}

// parseFromDate accepts RFC 3339 timestamps and plain dates. An empty value
// means every item.
func parseFromDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --from-date %q: want RFC 3339 or YYYY-MM-DD", value)
}

// run serves metrics when configured and writes every item of seq to out.
func (a *app) run(ctx context.Context, origin string, seq iter.Seq2[item.RawItem, error]) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, addr); err != nil {
				logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
	}

	start := time.Now()
	n, err := writeItems(a.out, origin, seq)
	logger.Info().
		Str("origin", origin).
		Int("items", n).
		Dur("duration", time.Since(start)).
		Msg("Harvest finished")
	return err
}

// record is one output line.
type record struct {
	Origin string `json:"origin"`
	item.RawItem
}

// writeItems encodes each item as a JSON line and returns the number written.
func writeItems(w io.Writer, origin string, seq iter.Seq2[item.RawItem, error]) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for it, err := range seq {
		if err != nil {
			return n, err
		}
		if err := enc.Encode(record{Origin: origin, RawItem: it}); err != nil {
			return n, fmt.Errorf("write item %s: %w", it.ID, err)
		}
		n++
	}
	return n, nil
}
