package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/audit"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/config"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/database"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/events"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
)

// MilestoneService runs the milestone approval state machine. Approval and
// the matching escrow release commit in one transaction; there is no state
// in which a milestone is approved but unpaid, or paid but unapproved.
type MilestoneService interface {
	// List returns the project's milestones in order.
	List(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.Milestone, error)

	// Submit moves a pending or rejected milestone to submitted. Only the
	// contractor may submit, and a proof reference is required.
	Submit(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, proofURL, idemKey string) (*models.Milestone, error)

	// Approve moves a submitted milestone to approved and releases its
	// payment amount from escrow atomically. Like Submit, it requires an
	// active project; a hold or cancellation freezes reviews along with
	// submissions. When the last milestone is approved the project
	// completes.
	Approve(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, idemKey string) (*models.Milestone, error)

	// Reject moves a submitted milestone back to rejected with a reason,
	// on an active project only. No money moves; the contractor may
	// rework and resubmit.
	Reject(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, reason string) (*models.Milestone, error)
}

type milestoneService struct {
	db         database.TxRunner
	projects   repositories.ProjectRepository
	milestones repositories.MilestoneRepository
	gate       *authz.Gate
	auditor    *audit.WorkflowAuditor
	publisher  events.Publisher
	idem       IdempotencyGuard
	workflow   *config.WorkflowConfig
	logger     *zap.Logger
}

// NewMilestoneService creates a new milestone service with dependencies.
func NewMilestoneService(
	db database.TxRunner,
	projects repositories.ProjectRepository,
	milestones repositories.MilestoneRepository,
	gate *authz.Gate,
	auditor *audit.WorkflowAuditor,
	publisher events.Publisher,
	idem IdempotencyGuard,
	workflow *config.WorkflowConfig,
	logger *zap.Logger,
) MilestoneService {
	return &milestoneService{
		db:         db,
		projects:   projects,
		milestones: milestones,
		gate:       gate,
		auditor:    auditor,
		publisher:  publisher,
		idem:       idem,
		workflow:   workflow,
		logger:     logger.Named("milestone_service"),
	}
}

var _ MilestoneService = (*milestoneService)(nil)

func (s *milestoneService) List(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.Milestone, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpViewProject, project); err != nil {
		return nil, err
	}
	return s.milestones.ListByProject(ctx, projectID)
}

func (s *milestoneService) Submit(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, proofURL, idemKey string) (*models.Milestone, error) {
	if idemKey != "" {
		if err := s.idem.Reserve(ctx, idemKey); err != nil {
			return nil, err
		}
	}

	var milestone *models.Milestone
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		project, err := s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpSubmitMilestone, project); err != nil {
			return err
		}
		if project.Status != models.ProjectActive {
			return fmt.Errorf("%w: milestones can only be submitted on an active project (status %s)",
				apperrors.ErrInvalidTransition, project.Status)
		}

		milestone, err = s.milestones.GetByID(ctx, projectID, milestoneID)
		if err != nil {
			return err
		}

		if s.workflow.StrictSequential {
			if err := s.checkSequence(ctx, milestone); err != nil {
				return err
			}
		}

		if err := milestone.Submit(proofURL, time.Now()); err != nil {
			return err
		}
		return s.milestones.Update(ctx, milestone)
	})
	if err != nil {
		if idemKey != "" {
			s.idem.Release(ctx, idemKey)
		}
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Type:        events.MilestoneSubmitted,
		ProjectID:   projectID,
		MilestoneID: &milestone.ID,
		ActorID:     actor.ID,
		OccurredAt:  time.Now(),
	})

	s.logger.Info("milestone submitted",
		zap.String("project_id", projectID.String()),
		zap.String("milestone_id", milestone.ID.String()),
		zap.Int("order_number", milestone.OrderNumber))

	return milestone, nil
}

// checkSequence enforces the strict-sequential policy: every milestone
// with a lower order number must already be approved.
func (s *milestoneService) checkSequence(ctx context.Context, milestone *models.Milestone) error {
	all, err := s.milestones.ListByProject(ctx, milestone.ProjectID)
	if err != nil {
		return err
	}
	for _, m := range all {
		if m.OrderNumber < milestone.OrderNumber && m.Status != models.MilestoneApproved {
			return fmt.Errorf("%w: milestone %d must be approved before milestone %d can be submitted",
				apperrors.ErrInvalidTransition, m.OrderNumber, milestone.OrderNumber)
		}
	}
	return nil
}

func (s *milestoneService) Approve(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, idemKey string) (*models.Milestone, error) {
	if idemKey != "" {
		if err := s.idem.Reserve(ctx, idemKey); err != nil {
			return nil, err
		}
	}

	var milestone *models.Milestone
	var project *models.Project
	var completed bool

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		project, err = s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpApproveMilestone, project); err != nil {
			return err
		}
		if project.Status != models.ProjectActive {
			return fmt.Errorf("%w: milestones can only be reviewed on an active project (status %s)",
				apperrors.ErrInvalidTransition, project.Status)
		}
		if project.PaymentHold {
			return fmt.Errorf("%w: payments on project %s are frozen pending reconciliation",
				apperrors.ErrConflict, project.ID)
		}

		milestone, err = s.milestones.GetByID(ctx, projectID, milestoneID)
		if err != nil {
			return err
		}

		if err := milestone.Approve(time.Now()); err != nil {
			return err
		}
		if err := s.milestones.Update(ctx, milestone); err != nil {
			return err
		}

		if err := project.ReleaseFromEscrow(milestone.PaymentAmount); err != nil {
			return err
		}

		// Reconcile inside the transaction: the recomputed paid total must
		// match the ledger we are about to commit.
		all, err := s.milestones.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if recomputed := models.SumApprovedAmounts(all); recomputed != project.PaidAmount {
			s.auditor.LogLedgerIntegrityFailure(project.ID, int64(project.PaidAmount), int64(recomputed))
			return fmt.Errorf("%w: project %s paid %s does not match approved total %s",
				apperrors.ErrLedgerIntegrity, project.ID, project.PaidAmount, recomputed)
		}

		if allApproved(all) && project.EscrowBalance == 0 {
			if err := project.Transition(models.ProjectCompleted); err != nil {
				return err
			}
			completed = true
		}

		return s.projects.Update(ctx, project)
	})
	if err != nil {
		if idemKey != "" {
			s.idem.Release(ctx, idemKey)
		}
		if errors.Is(err, apperrors.ErrLedgerIntegrity) {
			// The approval rolled back, but the drift it detected did not.
			// Freeze payments outside the transaction so further approvals
			// stop until an operator reconciles.
			if holdErr := s.projects.SetPaymentHold(ctx, projectID, true); holdErr != nil {
				s.logger.Error("failed to freeze payments after integrity failure",
					zap.String("project_id", projectID.String()),
					zap.Error(holdErr))
			}
		}
		return nil, err
	}

	now := time.Now()
	s.publisher.Publish(ctx, events.Event{
		Type:        events.MilestoneApproved,
		ProjectID:   projectID,
		MilestoneID: &milestone.ID,
		ActorID:     actor.ID,
		OccurredAt:  now,
		Data:        map[string]string{"amount": milestone.PaymentAmount.String()},
	})
	if completed {
		s.publisher.Publish(ctx, events.Event{
			Type:       events.ProjectCompleted,
			ProjectID:  projectID,
			ActorID:    actor.ID,
			OccurredAt: now,
		})
	}

	s.logger.Info("milestone approved",
		zap.String("project_id", projectID.String()),
		zap.String("milestone_id", milestone.ID.String()),
		zap.Int64("released_amount", int64(milestone.PaymentAmount)),
		zap.Int64("escrow_balance", int64(project.EscrowBalance)),
		zap.Bool("project_completed", completed))

	return milestone, nil
}

func (s *milestoneService) Reject(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	var milestone *models.Milestone

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		project, err := s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpRejectMilestone, project); err != nil {
			return err
		}
		if project.Status != models.ProjectActive {
			return fmt.Errorf("%w: milestones can only be reviewed on an active project (status %s)",
				apperrors.ErrInvalidTransition, project.Status)
		}

		milestone, err = s.milestones.GetByID(ctx, projectID, milestoneID)
		if err != nil {
			return err
		}

		if err := milestone.Reject(reason); err != nil {
			return err
		}
		return s.milestones.Update(ctx, milestone)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Type:        events.MilestoneRejected,
		ProjectID:   projectID,
		MilestoneID: &milestone.ID,
		ActorID:     actor.ID,
		OccurredAt:  time.Now(),
		Data:        map[string]string{"reason": reason},
	})

	s.logger.Info("milestone rejected",
		zap.String("project_id", projectID.String()),
		zap.String("milestone_id", milestone.ID.String()))

	return milestone, nil
}

func allApproved(milestones []*models.Milestone) bool {
	for _, m := range milestones {
		if m.Status != models.MilestoneApproved {
			return false
		}
	}
	return len(milestones) > 0
}
