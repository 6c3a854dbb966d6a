package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArchiveHits tracks successful lookups by backend
	ArchiveHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_archive_hits_total",
			Help: "Total number of archive lookups that found an entry",
		},
		[]string{"backend"}, // "memory", "redis", "sqlite"
	)

	// ArchiveMisses tracks lookups of keys never recorded
	ArchiveMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_archive_misses_total",
			Help: "Total number of archive lookups for unknown keys",
		},
	)

	// ArchiveWrites tracks stored entries by backend and outcome
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_archive_writes_total",
			Help: "Total number of archive entries written",
		},
		[]string{"backend", "outcome"}, // outcome: "payload", "failure"
	)

	// ArchiveErrors tracks store operation errors
	ArchiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_archive_errors_total",
			Help: "Total number of archive store errors",
		},
		[]string{"operation"}, // "get", "put"
	)
)
