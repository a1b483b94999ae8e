// Package indicator computes the social indicators (NAP, IIC, ICSM, IVC) and
// the RCP risk classification over batches of resident survey records. All
// functions are pure; the caller supplies a snapshot of records and may invoke
// them concurrently.
package indicator

import (
	"math"

	"comunidad-service/internal/models"
)

// RCP labels.
const (
	RiskAlto  = "Alto"
	RiskMedio = "Medio"
	RiskBajo  = "Bajo"
)

// Metrics is the computed indicator tuple for one batch of records. IVC is
// only meaningful for per-project batches; the global aggregate leaves it 0.
type Metrics struct {
	NAP      float64 `json:"nap"`
	IIC      float64 `json:"iic"`
	AvgTrust float64 `json:"avg_trust"`
	ICSM     float64 `json:"icsm"`
	IVC      float64 `json:"ivc"`
	RCP      string  `json:"rcp"`
}

var knowledgeScores = map[string]float64{
	"alto":  100,
	"medio": 50,
	"bajo":  25,
}

var trustScores = map[string]float64{
	"alto":  100,
	"medio": 50,
	"bajo":  25,
	"nulo":  0,
}

var educationScores = map[string]float64{
	"primaria":   0.25,
	"secundaria": 0.5,
	"tecnico":    0.75,
	"superior":   1.0,
}

var ageMidpoints = map[string]float64{
	"18-25": 21.5,
	"26-35": 30.5,
	"36-45": 40.5,
	"46-60": 53,
	"60+":   65,
}

const defaultAgeMidpoint = 30

// ComputeGlobal computes the aggregate tuple (NAP, IIC, ICSM, RCP) over the
// union of all records. IVC is not part of the global KPI block.
func ComputeGlobal(records []models.ResidentRecord) Metrics {
	if len(records) == 0 {
		return emptyMetrics()
	}

	m := computeCore(records)
	m.RCP = ClassifyRisk(m.ICSM)
	return m
}

// ComputeProject computes the per-project tuple (NAP, IIC, ICSM, IVC, RCP)
// over one project's subset of records. A project with zero records reports
// all-zero indicators and RCP "Bajo"; the zero-ICSM case is handled as an
// explicit branch here, not through ClassifyRisk.
func ComputeProject(records []models.ResidentRecord) Metrics {
	if len(records) == 0 {
		return emptyMetrics()
	}

	m := computeCore(records)
	m.IVC = computeIVC(records)
	m.RCP = ClassifyRisk(m.ICSM)
	return m
}

// ClassifyRisk maps an ICSM value to its perceived-risk label. The interval
// [40, 70] is closed on both ends for "Medio".
func ClassifyRisk(icsm float64) string {
	switch {
	case icsm < 40:
		return RiskAlto
	case icsm <= 70:
		return RiskMedio
	default:
		return RiskBajo
	}
}

func emptyMetrics() Metrics {
	return Metrics{RCP: RiskBajo}
}

// computeCore computes NAP, IIC, avgTrust and the ICSM blend over a non-empty
// batch. The composite always uses the sub-indicators of the same batch.
func computeCore(records []models.ResidentRecord) Metrics {
	n := float64(len(records))

	willing := 0
	knowledgeSum := 0.0
	trustSum := 0.0

	for _, r := range records {
		if !containsTag(r.Participation, "no_participar") {
			willing++
		}
		knowledgeSum += knowledgeScores[r.KnowledgeLevel]
		trustSum += trustScores[r.TrustLevel]
	}

	nap := 100 * float64(willing) / n
	iic := knowledgeSum / n
	avgTrust := trustSum / n
	icsm := 0.5*avgTrust + 0.3*iic + 0.2*nap

	return Metrics{
		NAP:      nap,
		IIC:      iic,
		AvgTrust: avgTrust,
		ICSM:     icsm,
	}
}

// computeIVC blends education, age, and formal-employment deficits, each
// normalized to [0,1], into the vulnerability index.
func computeIVC(records []models.ResidentRecord) float64 {
	n := float64(len(records))

	educationSum := 0.0
	ageSum := 0.0
	formal := 0

	for _, r := range records {
		educationSum += educationScores[r.EducationLevel]
		if midpoint, ok := ageMidpoints[r.AgeRange]; ok {
			ageSum += midpoint
		} else {
			ageSum += defaultAgeMidpoint
		}
		if r.EmploymentStatus == "formal" {
			formal++
		}
	}

	avgEducation := educationSum / n
	normalizedAge := math.Min(ageSum/n/70, 1)
	formalRate := float64(formal) / n

	return 100 * (0.4*(1-avgEducation) + 0.3*normalizedAge + 0.3*(1-formalRate))
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
