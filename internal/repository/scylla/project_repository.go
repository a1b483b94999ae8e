package scylla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"comunidad-service/internal/models"
	"comunidad-service/internal/util"
)

// ProjectRepository persists the monitored mining projects. The table is
// small; a full scan is the expected access pattern.
type ProjectRepository struct {
	client *ScyllaClient
}

func NewProjectRepository(client *ScyllaClient) *ProjectRepository {
	return &ProjectRepository{client: client}
}

func (r *ProjectRepository) List(ctx context.Context) ([]models.Project, error) {
	iter := r.client.Prepared.ListProjects.WithContext(ctx).Iter()

	var projects []models.Project
	for {
		var project models.Project
		if !iter.Scan(&project.ProjectID, &project.Name, &project.CreatedAt) {
			break
		}
		projects = append(projects, project)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) Upsert(ctx context.Context, project *models.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateProject.WithContext(ctx).Bind(
		project.ProjectID, project.Name, project.CreatedAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to upsert project",
			zap.String("project_id", project.ProjectID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}
