package histstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreHits tracks partition reads served from disk
	StoreHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_histstore_hits_total",
			Help: "Total number of historical partition reads served from disk",
		},
	)

	// StoreMisses tracks reads that found no partition on disk
	StoreMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_histstore_misses_total",
			Help: "Total number of historical partition reads that found no partition",
		},
	)

	// StoreSets tracks partitions persisted to disk
	StoreSets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_histstore_sets_total",
			Help: "Total number of historical partitions persisted",
		},
	)

	// StoreErrors tracks corrupt partitions and failed writes
	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketdata_histstore_errors_total",
			Help: "Total number of historical store read and write errors",
		},
	)
)
