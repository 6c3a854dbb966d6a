package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/harvester/internal/config"
	"github.com/Sternrassler/harvester/pkg/archive"
	"github.com/Sternrassler/harvester/pkg/logging"
	"github.com/redis/go-redis/v9"
)

// openArchive returns the configured archive, or nil when archiving is off.
// The caller closes the archive store.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archive, error) {
	var store archive.Store

	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		store = archive.NewMemoryStore()
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis archive %s: %w", cfg.RedisAddr, err)
		}
		store = archive.NewRedisStore(redisClient)
	case config.BackendSQLite:
		s, err := archive.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("%w: archive backend %q", config.ErrInvalidConfig, cfg.Backend)
	}

	arc := archive.New(store, logging.NewLogger(logging.ComponentArchive))
	logging.NewLogger(logging.ComponentCLI).Info().
		Str("backend", cfg.Backend).
		Bool("replay", cfg.FromArchive).
		Str("run_id", arc.RunID().String()).
		Msg("Archive opened")
	return arc, nil
}

// closeArchive releases the archive store, if any.
func closeArchive(arc *archive.Archive) {
	if arc == nil {
		return
	}
	if err := arc.Store().Close(); err != nil {
		logging.NewLogger(logging.ComponentCLI).Warn().Err(err).Msg("Failed to close archive")
	}
}
