package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"comunidad-service/internal/models"
)

func TestComputeProjectEmptyBatch(t *testing.T) {
	m := ComputeProject(nil)

	assert.Zero(t, m.NAP)
	assert.Zero(t, m.IIC)
	assert.Zero(t, m.ICSM)
	assert.Zero(t, m.IVC)
	assert.Equal(t, RiskBajo, m.RCP)
}

func TestComputeGlobalEmptyBatch(t *testing.T) {
	m := ComputeGlobal([]models.ResidentRecord{})

	assert.Zero(t, m.NAP)
	assert.Zero(t, m.IIC)
	assert.Zero(t, m.ICSM)
	assert.Equal(t, RiskBajo, m.RCP)
}

func TestComputeProjectTwoRecords(t *testing.T) {
	records := []models.ResidentRecord{
		{
			ProjectID:        "p1",
			KnowledgeLevel:   "alto",
			TrustLevel:       "alto",
			Participation:    []string{"asambleas"},
			EducationLevel:   "superior",
			AgeRange:         "26-35",
			EmploymentStatus: "formal",
		},
		{
			ProjectID:        "p1",
			KnowledgeLevel:   "bajo",
			TrustLevel:       "nulo",
			Participation:    []string{"no_participar"},
			EducationLevel:   "primaria",
			AgeRange:         "60+",
			EmploymentStatus: "informal",
		},
	}

	m := ComputeProject(records)

	assert.InDelta(t, 50.0, m.NAP, 1e-9)
	assert.InDelta(t, 62.5, m.IIC, 1e-9)
	assert.InDelta(t, 50.0, m.AvgTrust, 1e-9)
	assert.InDelta(t, 53.75, m.ICSM, 1e-9)
	assert.Equal(t, RiskMedio, m.RCP)

	// avgEducation = (1.0 + 0.25)/2 = 0.625
	// avgAge = (30.5 + 65)/2 = 47.75 -> normalized 47.75/70
	// formalRate = 0.5
	wantIVC := 100 * (0.4*(1-0.625) + 0.3*(47.75/70) + 0.3*(1-0.5))
	assert.InDelta(t, wantIVC, m.IVC, 1e-9)
}

func TestComputeGlobalMatchesUnion(t *testing.T) {
	batch := []models.ResidentRecord{
		{ProjectID: "p1", KnowledgeLevel: "alto", TrustLevel: "medio", Participation: []string{"talleres"}},
		{ProjectID: "p2", KnowledgeLevel: "medio", TrustLevel: "bajo", Participation: []string{"no_participar"}},
		{ProjectID: "p2", KnowledgeLevel: "bajo", TrustLevel: "alto", Participation: []string{"asambleas", "talleres"}},
	}

	m := ComputeGlobal(batch)

	// 2 of 3 willing
	assert.InDelta(t, 100.0*2/3, m.NAP, 1e-9)
	// (100+50+25)/3
	assert.InDelta(t, 175.0/3, m.IIC, 1e-9)
	// (50+25+100)/3
	assert.InDelta(t, 175.0/3, m.AvgTrust, 1e-9)

	wantICSM := 0.5*(175.0/3) + 0.3*(175.0/3) + 0.2*(100.0*2/3)
	assert.InDelta(t, wantICSM, m.ICSM, 1e-9)
	assert.Zero(t, m.IVC)
}

func TestClassifyRiskBoundaries(t *testing.T) {
	tests := []struct {
		icsm float64
		want string
	}{
		{39.999, RiskAlto},
		{40, RiskMedio},
		{53.75, RiskMedio},
		{70, RiskMedio},
		{70.001, RiskBajo},
		{0, RiskAlto},
		{100, RiskBajo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRisk(tt.icsm), "icsm=%v", tt.icsm)
	}
}

func TestUnknownCategoricalValuesScoreDefaults(t *testing.T) {
	records := []models.ResidentRecord{
		{
			ProjectID:        "p1",
			KnowledgeLevel:   "desconocido",
			TrustLevel:       "",
			Participation:    nil,
			EducationLevel:   "otro",
			AgeRange:         "???",
			EmploymentStatus: "informal",
		},
	}

	m := ComputeProject(records)

	// Unknown knowledge and trust score 0, nil participation counts as willing.
	assert.InDelta(t, 100.0, m.NAP, 1e-9)
	assert.Zero(t, m.IIC)
	assert.Zero(t, m.AvgTrust)
	assert.InDelta(t, 0.2*100, m.ICSM, 1e-9)
	assert.Equal(t, RiskAlto, m.RCP)

	// Unknown age range falls back to the default midpoint of 30.
	wantIVC := 100 * (0.4*1 + 0.3*(30.0/70) + 0.3*1)
	assert.InDelta(t, wantIVC, m.IVC, 1e-9)
}
