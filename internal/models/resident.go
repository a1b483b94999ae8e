package models

import (
	"time"

	"github.com/google/uuid"
)

// ResidentRecord is one resident's survey submission, the raw input of the
// social indicator engine. Categorical values outside the documented sets are
// tolerated and score their defaults during computation.
type ResidentRecord struct {
	ProjectID        string    `json:"project_id"`
	UserID           uuid.UUID `json:"user_id"`
	EducationLevel   string    `json:"education_level"`
	AgeRange         string    `json:"age_range"`
	EmploymentStatus string    `json:"employment_status"`
	KnowledgeLevel   string    `json:"knowledge_level"`
	TrustLevel       string    `json:"trust_level"`
	Participation    []string  `json:"participation_willingness"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Project is a monitored mining project; the dashboard reports one metrics
// row per project.
type Project struct {
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
