package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
)

// ScopeService manages scope-of-work approval. Both parties must approve
// the scope before the project can activate, and a fully approved scope is
// immutable.
type ScopeService interface {
	Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.ScopeOfWork, error)

	// Approve records the acting party's approval, derived from the
	// actor's position on the project.
	Approve(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.ScopeOfWork, error)
}

type scopeService struct {
	db       database.TxRunner
	projects repositories.ProjectRepository
	scopes   repositories.ScopeRepository
	gate     *authz.Gate
	logger   *zap.Logger
}

// NewScopeService creates a new scope service with dependencies.
func NewScopeService(
	db database.TxRunner,
	projects repositories.ProjectRepository,
	scopes repositories.ScopeRepository,
	gate *authz.Gate,
	logger *zap.Logger,
) ScopeService {
	return &scopeService{
		db:       db,
		projects: projects,
		scopes:   scopes,
		gate:     gate,
		logger:   logger.Named("scope_service"),
	}
}

var _ ScopeService = (*scopeService)(nil)

func (s *scopeService) Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.ScopeOfWork, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpViewProject, project); err != nil {
		return nil, err
	}
	return s.scopes.GetByProjectID(ctx, projectID)
}

func (s *scopeService) Approve(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.ScopeOfWork, error) {
	var scope *models.ScopeOfWork

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		project, err := s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpApproveScope, project); err != nil {
			return err
		}

		party, err := partyOf(project, actor.ID)
		if err != nil {
			return err
		}

		scope, err = s.scopes.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}

		if err := scope.Approve(party); err != nil {
			return err
		}
		return s.scopes.Update(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("scope approved",
		zap.String("project_id", projectID.String()),
		zap.Bool("fully_approved", scope.IsFullyApproved()))

	return scope, nil
}
