package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
)

// CreateProgressUpdateInput is a new progress update from either party.
type CreateProgressUpdateInput struct {
	MilestoneID   *uuid.UUID `json:"milestone_id,omitempty"`
	UpdateType    string     `json:"update_type"`
	WorkCompleted string     `json:"work_completed"`
	WorkPlanned   string     `json:"work_planned,omitempty"`
	Issues        string     `json:"issues,omitempty"`
	Photos        []string   `json:"photos,omitempty"`
}

// ProgressService manages the append-only progress feed on a project.
type ProgressService interface {
	Create(ctx context.Context, actor authz.Actor, projectID uuid.UUID, input *CreateProgressUpdateInput) (*models.ProgressUpdate, error)
	List(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.ProgressUpdate, error)
}

type progressService struct {
	projects   repositories.ProjectRepository
	milestones repositories.MilestoneRepository
	progress   repositories.ProgressRepository
	gate       *authz.Gate
	logger     *zap.Logger
}

// NewProgressService creates a new progress service with dependencies.
func NewProgressService(
	projects repositories.ProjectRepository,
	milestones repositories.MilestoneRepository,
	progress repositories.ProgressRepository,
	gate *authz.Gate,
	logger *zap.Logger,
) ProgressService {
	return &progressService{
		projects:   projects,
		milestones: milestones,
		progress:   progress,
		gate:       gate,
		logger:     logger.Named("progress_service"),
	}
}

var _ ProgressService = (*progressService)(nil)

func (s *progressService) Create(ctx context.Context, actor authz.Actor, projectID uuid.UUID, input *CreateProgressUpdateInput) (*models.ProgressUpdate, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpCreateProgressUpdate, project); err != nil {
		return nil, err
	}

	if input.MilestoneID != nil {
		// The referenced milestone must belong to this project.
		if _, err := s.milestones.GetByID(ctx, projectID, *input.MilestoneID); err != nil {
			return nil, fmt.Errorf("%w: milestone %s does not belong to project %s",
				apperrors.ErrValidation, input.MilestoneID, projectID)
		}
	}

	update := &models.ProgressUpdate{
		ID:            uuid.New(),
		ProjectID:     projectID,
		MilestoneID:   input.MilestoneID,
		AuthorID:      actor.ID,
		UpdateType:    input.UpdateType,
		WorkCompleted: input.WorkCompleted,
		WorkPlanned:   input.WorkPlanned,
		Issues:        input.Issues,
		Photos:        input.Photos,
	}
	if err := update.ValidateNew(); err != nil {
		return nil, err
	}

	if err := s.progress.Create(ctx, update); err != nil {
		return nil, err
	}

	s.logger.Debug("progress update recorded",
		zap.String("project_id", projectID.String()),
		zap.String("author_id", actor.ID.String()))

	return update, nil
}

func (s *progressService) List(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.ProgressUpdate, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpViewProject, project); err != nil {
		return nil, err
	}
	return s.progress.ListByProject(ctx, projectID)
}
