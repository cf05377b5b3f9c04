package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/metrics"
)

// StatsWorker periodically publishes pool counters as Prometheus gauges.
type StatsWorker struct {
	pool     *Pool
	interval time.Duration
	logger   zerolog.Logger
}

func NewStatsWorker(pool *Pool, interval time.Duration, logger zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatsWorker{
		pool:     pool,
		interval: interval,
		logger:   logger.With().Str("component", "pool_stats_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *StatsWorker) tick() {
	stats := w.pool.Stats()
	metrics.PoolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	metrics.PoolConnections.WithLabelValues("leased").Set(float64(stats.Leased))
	metrics.PoolConnections.WithLabelValues("open").Set(float64(stats.Open))
	w.logger.Debug().Int("idle", stats.Idle).Int("leased", stats.Leased).Int("open", stats.Open).Msg("pool stats")
}
