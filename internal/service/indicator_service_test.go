package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comunidad-service/internal/indicator"
	"comunidad-service/internal/models"
)

func seedResident(t *testing.T, store *fakeResidentStore, projectID, knowledge, trust string, participation []string) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), &models.ResidentRecord{
		ProjectID:        projectID,
		UserID:           uuid.New(),
		EducationLevel:   "secundaria",
		AgeRange:         "26-35",
		EmploymentStatus: "formal",
		KnowledgeLevel:   knowledge,
		TrustLevel:       trust,
		Participation:    participation,
	}))
}

func TestDashboardEmpty(t *testing.T) {
	svc := NewIndicatorService(&fakeProjectStore{}, newFakeResidentStore(), nil, zap.NewNop())

	dashboard, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Zero(t, dashboard.KPIs.ComunidadesMonitoreadas)
	assert.Zero(t, dashboard.KPIs.PromedioConfianzaICSM)
	assert.Equal(t, indicator.RiskBajo, dashboard.KPIs.RiesgoSocialRCP)
	assert.Zero(t, dashboard.KPIs.AlertasActivas)
	assert.Empty(t, dashboard.TableData)
	assert.Zero(t, dashboard.TotalResidents)
}

func TestDashboardComputesPerProjectAndGlobal(t *testing.T) {
	ctx := context.Background()
	projects := &fakeProjectStore{}
	require.NoError(t, projects.Upsert(ctx, &models.Project{ProjectID: "las-bambas", Name: "Las Bambas"}))
	require.NoError(t, projects.Upsert(ctx, &models.Project{ProjectID: "antamina", Name: "Antamina"}))

	residents := newFakeResidentStore()
	// las-bambas: one willing resident with medium trust/knowledge, one
	// refusing with high trust/knowledge
	seedResident(t, residents, "las-bambas", "medio", "medio", []string{"talleres"})
	seedResident(t, residents, "las-bambas", "alto", "alto", []string{"no_participar"})
	// antamina: uniformly distrustful and unaware, triggers the alert
	seedResident(t, residents, "antamina", "bajo", "nulo", []string{"no_participar"})

	sink := &fakeMetricsSink{}
	svc := NewIndicatorService(projects, residents, sink, zap.NewNop())

	dashboard, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, dashboard.KPIs.ComunidadesMonitoreadas)
	assert.Equal(t, 3, dashboard.TotalResidents)
	require.Len(t, dashboard.TableData, 2)

	rows := make(map[string]ProjectMetricsRow, 2)
	for _, row := range dashboard.TableData {
		rows[row.ProjectID] = row
	}

	bambas := rows["las-bambas"]
	assert.Equal(t, "Las Bambas", bambas.ProjectName)
	assert.InDelta(t, 50.0, bambas.NAP, 1e-9)
	assert.InDelta(t, 75.0, bambas.IIC, 1e-9)
	// 0.5*75 + 0.3*75 + 0.2*50
	assert.InDelta(t, 70.0, bambas.ICSM, 1e-9)
	assert.Equal(t, indicator.RiskMedio, bambas.RCP)

	antamina := rows["antamina"]
	assert.InDelta(t, 0.0, antamina.NAP, 1e-9)
	assert.InDelta(t, 25.0, antamina.IIC, 1e-9)
	// 0.5*0 + 0.3*25 + 0.2*0
	assert.InDelta(t, 7.5, antamina.ICSM, 1e-9)
	assert.Equal(t, indicator.RiskAlto, antamina.RCP)

	assert.Equal(t, 1, dashboard.KPIs.AlertasActivas)

	// Global KPIs come from the union of records, not a mean of projects
	// NAP=100/3, IIC=(50+100+25)/3, trust=(50+100+0)/3
	wantGlobalICSM := 0.5*(150.0/3) + 0.3*(175.0/3) + 0.2*(100.0/3)
	assert.InDelta(t, wantGlobalICSM, dashboard.KPIs.PromedioConfianzaICSM, 1e-9)
	assert.Equal(t, indicator.RiskMedio, dashboard.KPIs.RiesgoSocialRCP)

	// One snapshot row per project reached the sink
	require.Len(t, sink.snapshots, 2)
	residentsByProject := map[string]int{}
	for _, snap := range sink.snapshots {
		residentsByProject[snap.ProjectID] = snap.Residents
	}
	assert.Equal(t, 2, residentsByProject["las-bambas"])
	assert.Equal(t, 1, residentsByProject["antamina"])
}

func TestDashboardProjectWithoutResidents(t *testing.T) {
	ctx := context.Background()
	projects := &fakeProjectStore{}
	require.NoError(t, projects.Upsert(ctx, &models.Project{ProjectID: "quellaveco", Name: "Quellaveco"}))

	svc := NewIndicatorService(projects, newFakeResidentStore(), nil, zap.NewNop())

	dashboard, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	require.Len(t, dashboard.TableData, 1)
	row := dashboard.TableData[0]
	assert.Zero(t, row.ICSM)
	assert.Zero(t, row.IVC)
	assert.Equal(t, indicator.RiskBajo, row.RCP)
	assert.Equal(t, 1, dashboard.KPIs.ComunidadesMonitoreadas)
	assert.Zero(t, dashboard.TotalResidents)
}
