package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz_review"

var (
	// QuestionFetches counts calls to the remote question source by outcome.
	QuestionFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "question",
			Name:      "fetches_total",
			Help:      "Remote question fetches by outcome",
		},
		[]string{"outcome"},
	)

	// QuestionsFetched counts individual questions returned by the source.
	QuestionsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "question",
			Name:      "fetched_total",
			Help:      "Questions returned by the remote source",
		},
	)

	// Decisions counts status transitions written by reviewers.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Persisted review decisions by resulting status and action",
		},
		[]string{"status", "action"},
	)

	// LockRetries counts store writes retried because the database was locked.
	LockRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lock_retries_total",
			Help:      "Store writes retried after a busy/locked error",
		},
		[]string{"op"},
	)

	// LockFailures counts writes that exhausted the retry budget.
	LockFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "lock_failures_total",
			Help:      "Store writes that gave up after exhausting lock retries",
		},
		[]string{"op"},
	)

	// PoolConnections reports connection pool state: idle, leased, open.
	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pool_connections",
			Help:      "Store connection pool statistics",
		},
		[]string{"state"},
	)

	// ActiveSockets reports connected review WebSocket clients.
	ActiveSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "sockets_active",
			Help:      "Connected review WebSocket clients",
		},
	)
)
