package scylla

import (
	"context"
	"time"

	"github.com/google/uuid"

	"comunidad-service/internal/models"
)

// OTPStore is the persistence contract for verification challenges. Absent
// rows are reported as (nil, nil); errors mean the store itself failed.
// IncrementAttempts and MarkVerified are conditional updates: they return
// false without error when the stored row no longer matches the expected
// state, which the caller must treat as a lost race.
type OTPStore interface {
	CreateChallenge(ctx context.Context, challenge *models.OTPChallenge) error
	FindMostRecentUnverified(ctx context.Context, identifierHash string) (*models.OTPChallenge, error)
	FindRecentVerified(ctx context.Context, identifierHash string, since time.Time) (*models.OTPChallenge, error)
	IncrementAttempts(ctx context.Context, challenge *models.OTPChallenge, expected int) (bool, error)
	MarkVerified(ctx context.Context, challenge *models.OTPChallenge) (bool, error)
	CountSince(ctx context.Context, identifierHash string, since time.Time) (int, error)
}

// AccountStore persists platform accounts and the identifier lookup table.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	GetByIdentifierHash(ctx context.Context, identifierHash string) (*models.Account, error)
	UpdateStatus(ctx context.Context, userID uuid.UUID, status models.AccountStatus, reason string) error
	UpdateCompany(ctx context.Context, userID uuid.UUID, name, ruc, projectID string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, hash, salt string, pepperVersion int) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	ListByStatus(ctx context.Context, userType models.UserType, status models.AccountStatus, limit int) ([]*models.Account, error)
}

// ResidentStore persists resident survey records, partitioned by project.
type ResidentStore interface {
	Save(ctx context.Context, record *models.ResidentRecord) error
	GetByUser(ctx context.Context, projectID string, userID uuid.UUID) (*models.ResidentRecord, error)
	FetchByProjectIDs(ctx context.Context, projectIDs []string) ([]models.ResidentRecord, error)
}

// ProjectStore persists the monitored mining projects.
type ProjectStore interface {
	List(ctx context.Context) ([]models.Project, error)
	Upsert(ctx context.Context, project *models.Project) error
}
