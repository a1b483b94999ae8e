package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"comunidad-service/internal/indicator"
	"comunidad-service/internal/models"
	"comunidad-service/internal/repository/clickhouse"
	"comunidad-service/internal/repository/scylla"
	"comunidad-service/internal/util"
)

// computeConcurrency bounds the per-project metric computations run in
// parallel for one dashboard request.
const computeConcurrency = 4

// MetricsSink receives per-project indicator snapshots for trending. Nil
// disables snapshotting.
type MetricsSink interface {
	InsertSnapshots(ctx context.Context, computedAt time.Time, snapshots []clickhouse.Snapshot) error
}

// DashboardKPIs are the headline numbers across all monitored projects.
type DashboardKPIs struct {
	ComunidadesMonitoreadas int     `json:"comunidades_monitoreadas"`
	PromedioConfianzaICSM   float64 `json:"promedio_confianza_icsm"`
	RiesgoSocialRCP         string  `json:"riesgo_social_rcp"`
	AlertasActivas          int     `json:"alertas_activas"`
}

// ProjectMetricsRow is one project's row in the dashboard table.
type ProjectMetricsRow struct {
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	ICSM        float64 `json:"icsm"`
	IVC         float64 `json:"ivc"`
	NAP         float64 `json:"nap"`
	IIC         float64 `json:"iic"`
	RCP         string  `json:"rcp"`
}

// DashboardResponse is the full dashboard payload.
type DashboardResponse struct {
	KPIs           DashboardKPIs       `json:"kpis"`
	TableData      []ProjectMetricsRow `json:"tableData"`
	TotalResidents int                 `json:"total_residents"`
}

// IndicatorService computes the social dashboard: per-project and global
// indicators over all survey records, plus a best-effort snapshot into the
// analytics store.
type IndicatorService struct {
	projects  scylla.ProjectStore
	residents scylla.ResidentStore
	metrics   MetricsSink
	logger    *zap.Logger
}

func NewIndicatorService(
	projects scylla.ProjectStore,
	residents scylla.ResidentStore,
	metrics MetricsSink,
	logger *zap.Logger,
) *IndicatorService {
	return &IndicatorService{
		projects:  projects,
		residents: residents,
		metrics:   metrics,
		logger:    logger,
	}
}

// Dashboard loads every monitored project's survey records and computes the
// indicator set. Global KPIs are computed over the union of all records, not
// averaged across projects.
func (s *IndicatorService) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projectIDs := make([]string, 0, len(projects))
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ProjectID)
	}

	records, err := s.residents.FetchByProjectIDs(ctx, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load survey records: %w", err)
	}

	byProject := make(map[string][]models.ResidentRecord, len(projects))
	for _, record := range records {
		byProject[record.ProjectID] = append(byProject[record.ProjectID], record)
	}

	rows := make([]ProjectMetricsRow, len(projects))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(computeConcurrency)

	var mu sync.Mutex
	snapshots := make([]clickhouse.Snapshot, 0, len(projects))

	for i, project := range projects {
		i, project := i, project
		g.Go(func() error {
			projectRecords := byProject[project.ProjectID]
			metrics := indicator.ComputeProject(projectRecords)

			rows[i] = ProjectMetricsRow{
				ProjectID:   project.ProjectID,
				ProjectName: project.Name,
				ICSM:        metrics.ICSM,
				IVC:         metrics.IVC,
				NAP:         metrics.NAP,
				IIC:         metrics.IIC,
				RCP:         metrics.RCP,
			}

			mu.Lock()
			snapshots = append(snapshots, clickhouse.Snapshot{
				ProjectID:   project.ProjectID,
				ProjectName: project.Name,
				Residents:   len(projectRecords),
				Metrics:     metrics,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	global := indicator.ComputeGlobal(records)

	alerts := 0
	for _, row := range rows {
		if row.RCP == indicator.RiskAlto {
			alerts++
		}
	}

	response := &DashboardResponse{
		KPIs: DashboardKPIs{
			ComunidadesMonitoreadas: len(projects),
			PromedioConfianzaICSM:   global.ICSM,
			RiesgoSocialRCP:         global.RCP,
			AlertasActivas:          alerts,
		},
		TableData:      rows,
		TotalResidents: len(records),
	}

	s.snapshot(ctx, snapshots)

	util.Debug("Dashboard computed",
		zap.Int("projects", len(projects)),
		zap.Int("residents", len(records)),
		zap.Float64("global_icsm", global.ICSM),
		zap.String("global_rcp", global.RCP))

	return response, nil
}

// snapshot writes the per-project rows to the analytics store. Failures are
// logged, never surfaced; the dashboard response is already complete.
func (s *IndicatorService) snapshot(ctx context.Context, snapshots []clickhouse.Snapshot) {
	if s.metrics == nil || len(snapshots) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.metrics.InsertSnapshots(ctx, time.Now().UTC(), snapshots); err != nil {
		util.Warn("Failed to write indicator snapshots", zap.Error(err))
	}
}
