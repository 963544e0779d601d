package sched

import (
	"context"

	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/metrics"
)

// StatsSource reports connection pool usage.
type StatsSource interface {
	Stats() db.PoolStats
}

// PoolStatsJob copies pool usage into the db gauges.
type PoolStatsJob struct {
	src StatsSource
}

func NewPoolStatsJob(src StatsSource) *PoolStatsJob {
	return &PoolStatsJob{src: src}
}

func (j *PoolStatsJob) Name() string { return "db_pool_stats" }

func (j *PoolStatsJob) Run(context.Context) error {
	s := j.src.Stats()
	metrics.SetDBPoolStats(s.Total, s.Idle, s.InUse)
	return nil
}
