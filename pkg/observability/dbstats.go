package observability

import (
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultDBStatsSchedule samples the connection pool every 15 seconds
const DefaultDBStatsSchedule = "@every 15s"

// RecordDBStats copies a connection pool snapshot into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// ScheduleDBStats registers a cron job that samples db pool stats into metrics.
// The caller owns the scheduler and is responsible for Start and Stop.
func ScheduleDBStats(scheduler *cron.Cron, schedule string, db *sql.DB, metrics *Metrics) (cron.EntryID, error) {
	if schedule == "" {
		schedule = DefaultDBStatsSchedule
	}
	id, err := scheduler.AddFunc(schedule, func() {
		metrics.RecordDBStats(db.Stats())
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule db stats job: %w", err)
	}
	return id, nil
}
