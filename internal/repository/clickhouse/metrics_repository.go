package clickhouse

import (
	"context"
	"time"

	"go.uber.org/zap"

	"comunidad-service/internal/client"
	"comunidad-service/internal/indicator"
	"comunidad-service/internal/util"
)

const insertSnapshotQuery = `
    INSERT INTO community_metrics
        (computed_at, project_id, project_name, residents, nap, iic, icsm, ivc, rcp)`

// MetricsRepository writes per-project indicator snapshots into ClickHouse so
// dashboards can be trended over time. Writes are best effort; the caller
// logs and moves on when the sink is down.
type MetricsRepository struct {
	client *client.ClickHouseClient
}

func NewMetricsRepository(client *client.ClickHouseClient) *MetricsRepository {
	return &MetricsRepository{client: client}
}

// Snapshot is one project's computed metrics row.
type Snapshot struct {
	ProjectID   string
	ProjectName string
	Residents   int
	Metrics     indicator.Metrics
}

// InsertSnapshots batch-inserts one row per project for a single computation.
func (r *MetricsRepository) InsertSnapshots(ctx context.Context, computedAt time.Time, snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []interface{}{
			computedAt,
			s.ProjectID,
			s.ProjectName,
			uint32(s.Residents),
			s.Metrics.NAP,
			s.Metrics.IIC,
			s.Metrics.ICSM,
			s.Metrics.IVC,
			s.Metrics.RCP,
		})
	}

	if err := r.client.BatchInsert(ctx, insertSnapshotQuery, rows); err != nil {
		return err
	}

	util.Debug("Indicator snapshots written",
		zap.Int("projects", len(snapshots)),
		zap.Time("computed_at", computedAt))
	return nil
}
