package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/events"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
)

// ContractService manages contract signing. A contract signed by both
// parties is fully executed and immutable from then on.
type ContractService interface {
	Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Contract, error)

	// Sign records the acting party's signature. The party is derived from
	// the actor's position on the project; nobody signs on another's behalf.
	Sign(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Contract, error)
}

type contractService struct {
	db        database.TxRunner
	projects  repositories.ProjectRepository
	contracts repositories.ContractRepository
	gate      *authz.Gate
	publisher events.Publisher
	logger    *zap.Logger
}

// NewContractService creates a new contract service with dependencies.
func NewContractService(
	db database.TxRunner,
	projects repositories.ProjectRepository,
	contracts repositories.ContractRepository,
	gate *authz.Gate,
	publisher events.Publisher,
	logger *zap.Logger,
) ContractService {
	return &contractService{
		db:        db,
		projects:  projects,
		contracts: contracts,
		gate:      gate,
		publisher: publisher,
		logger:    logger.Named("contract_service"),
	}
}

var _ ContractService = (*contractService)(nil)

func (s *contractService) Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Contract, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpViewProject, project); err != nil {
		return nil, err
	}
	return s.contracts.GetByProjectID(ctx, projectID)
}

func (s *contractService) Sign(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Contract, error) {
	var contract *models.Contract
	var executed bool

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		project, err := s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpSignContract, project); err != nil {
			return err
		}

		party, err := partyOf(project, actor.ID)
		if err != nil {
			return err
		}

		contract, err = s.contracts.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}

		if err := contract.Sign(party, time.Now()); err != nil {
			return err
		}
		executed = contract.IsFullyExecuted()
		return s.contracts.Update(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	if executed {
		s.publisher.Publish(ctx, events.Event{
			Type:       events.ContractExecuted,
			ProjectID:  projectID,
			ActorID:    actor.ID,
			OccurredAt: time.Now(),
		})
	}

	s.logger.Info("contract signed",
		zap.String("project_id", projectID.String()),
		zap.String("contract_id", contract.ID.String()),
		zap.Bool("fully_executed", executed))

	return contract, nil
}

// partyOf maps an actor to their contractual role on the project. Signing
// and scope approval are personal acts, so even admins must be a party.
func partyOf(project *models.Project, actorID uuid.UUID) (models.Party, error) {
	switch actorID {
	case project.OwnerID:
		return models.PartyOwner, nil
	case project.ContractorID:
		return models.PartyContractor, nil
	default:
		return "", fmt.Errorf("%w: actor %s is not a party to project %s",
			apperrors.ErrForbidden, actorID, project.ID)
	}
}
