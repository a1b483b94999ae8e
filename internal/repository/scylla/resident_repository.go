package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"comunidad-service/internal/models"
	"comunidad-service/internal/util"
)

// fetchConcurrency bounds the per-partition fan-out when loading survey
// records for many projects at once.
const fetchConcurrency = 8

// ResidentRepository persists survey records partitioned by project so the
// indicator engine can load one project per partition read.
type ResidentRepository struct {
	client *ScyllaClient
}

func NewResidentRepository(client *ScyllaClient) *ResidentRepository {
	return &ResidentRepository{client: client}
}

// Save upserts a resident record; re-submitting a survey rewrites the row.
func (r *ResidentRepository) Save(ctx context.Context, record *models.ResidentRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := r.client.Prepared.CreateResident.WithContext(ctx).Bind(
		record.ProjectID, record.UserID, record.EducationLevel, record.AgeRange,
		record.EmploymentStatus, record.KnowledgeLevel, record.TrustLevel,
		record.Participation, record.CreatedAt, record.UpdatedAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to save resident record",
			zap.String("project_id", record.ProjectID),
			zap.String("user_id", record.UserID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to save resident record: %w", err)
	}

	return nil
}

func (r *ResidentRepository) GetByUser(ctx context.Context, projectID string, userID uuid.UUID) (*models.ResidentRecord, error) {
	record := &models.ResidentRecord{}
	query := r.client.Prepared.ResidentByUser.WithContext(ctx).Bind(projectID, userID)

	err := r.client.ScanWithRetry(query,
		&record.ProjectID, &record.UserID, &record.EducationLevel, &record.AgeRange,
		&record.EmploymentStatus, &record.KnowledgeLevel, &record.TrustLevel,
		&record.Participation, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get resident record: %w", err)
	}

	return record, nil
}

// FetchByProjectIDs loads the survey records for a set of projects, reading
// each partition concurrently with a bounded errgroup.
func (r *ResidentRepository) FetchByProjectIDs(ctx context.Context, projectIDs []string) ([]models.ResidentRecord, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var records []models.ResidentRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, projectID := range projectIDs {
		projectID := projectID
		g.Go(func() error {
			partition, err := r.fetchProject(gctx, projectID)
			if err != nil {
				return err
			}
			mu.Lock()
			records = append(records, partition...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		util.Error("Failed to fetch resident records",
			zap.Int("project_count", len(projectIDs)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch resident records: %w", err)
	}

	return records, nil
}

func (r *ResidentRepository) fetchProject(ctx context.Context, projectID string) ([]models.ResidentRecord, error) {
	iter := r.client.Prepared.ResidentsByProject.WithContext(ctx).Bind(projectID).Iter()

	var records []models.ResidentRecord
	for {
		var record models.ResidentRecord
		if !iter.Scan(&record.ProjectID, &record.UserID, &record.EducationLevel,
			&record.AgeRange, &record.EmploymentStatus, &record.KnowledgeLevel,
			&record.TrustLevel, &record.Participation, &record.CreatedAt,
			&record.UpdatedAt) {
			break
		}
		records = append(records, record)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	return records, nil
}
