// Package archive records request/outcome pairs so a later run can replay
// them instead of performing network or process I/O.
//
// Every request is described by a Descriptor. Before a descriptor is used as
// a key or written to a store it is sanitized: credential headers are removed
// and user segments in command lines are masked, so the same logical query
// maps to the same key whatever credentials were used to issue it.
//
// # Basic Usage
//
//	store := archive.NewMemoryStore()
//	arc := archive.New(store, logging.NewLogger("archive"))
//
//	d := archive.CommandDescriptor("ssh -p 29418 alice@gerrit.example.com gerrit version")
//	_ = arc.Record(ctx, d, payload, nil)
//
//	payload, err := arc.Replay(ctx, d)
//	var failure *archive.Failure
//	if errors.As(err, &failure) {
//		// The recorded run failed; the failure is re-raised.
//	}
//
// # Backends
//
//   - MemoryStore: process-local map, used by tests and dry runs
//   - RedisStore: shared archive in Redis, entries never expire
//   - SQLiteStore: single-file archive using the cgo-free modernc driver
//
// # Metrics
//
//   - harvest_archive_hits_total{backend}
//   - harvest_archive_misses_total
//   - harvest_archive_writes_total{backend, outcome}
//   - harvest_archive_errors_total{operation}
package archive
