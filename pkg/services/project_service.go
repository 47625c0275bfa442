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
	"github.com/sitecrew-inc/sitecrew-engine/pkg/generator"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/repositories"
)

// CreateProjectInput is everything needed to materialize a project from an
// awarded bid or accepted job application.
type CreateProjectInput struct {
	BidID        *uuid.UUID `json:"bid_id,omitempty"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	ContractorID uuid.UUID  `json:"contractor_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`

	TotalAmount models.Money `json:"total_amount"`

	Contract   ContractInput    `json:"contract"`
	Scope      ScopeInput       `json:"scope"`
	Milestones []MilestoneInput `json:"milestones"`
}

// ContractInput is the contract portion of a project creation request.
type ContractInput struct {
	ContractType          string               `json:"contract_type"`
	Terms                 models.ContractTerms `json:"terms"`
	WarrantyTerms         string               `json:"warranty_terms,omitempty"`
	InsuranceRequirements string               `json:"insurance_requirements,omitempty"`
}

// ScopeInput is the scope-of-work portion of a project creation request.
type ScopeInput struct {
	WorkBreakdown models.WorkBreakdown `json:"work_breakdown"`
	Materials     models.Materials     `json:"materials"`
	Requirements  models.Requirements  `json:"requirements"`
	Exclusions    []string             `json:"exclusions,omitempty"`
}

// MilestoneInput is one milestone in a project creation request.
type MilestoneInput struct {
	OrderNumber        int          `json:"order_number"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	DueDate            time.Time    `json:"due_date"`
	PaymentAmount      models.Money `json:"payment_amount"`
	Deliverables       []string     `json:"deliverables,omitempty"`
	AcceptanceCriteria []string     `json:"acceptance_criteria,omitempty"`
}

// ProjectDetail aggregates a project with its associated records.
type ProjectDetail struct {
	Project    *models.Project     `json:"project"`
	Contract   *models.Contract    `json:"contract,omitempty"`
	Scope      *models.ScopeOfWork `json:"scope,omitempty"`
	Milestones []*models.Milestone `json:"milestones"`
}

// ProjectService owns the project lifecycle and the escrow ledger.
type ProjectService interface {
	// Create materializes a project in setup with its contract, scope,
	// and milestones in one transaction. Escrow starts fully funded.
	Create(ctx context.Context, actor authz.Actor, input *CreateProjectInput) (*ProjectDetail, error)

	// Get returns the project aggregate, party- or admin-gated.
	Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*ProjectDetail, error)

	// List returns the actor's projects; admins see all, optionally
	// filtered by status.
	List(ctx context.Context, actor authz.Actor, status models.ProjectStatus) ([]*models.Project, error)

	// Activate moves setup -> active once the contract is fully executed
	// and the scope fully approved, and flips all milestones to pending.
	Activate(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Project, error)

	// ChangeStatus is the admin override for lifecycle transitions that
	// have no dedicated operation (hold, resume, cancel). Transition
	// legality is still enforced; every use is audited.
	ChangeStatus(ctx context.Context, actor authz.Actor, projectID uuid.UUID, target models.ProjectStatus) (*models.Project, error)

	// Reconcile recomputes the paid total from approved milestones and
	// compares it to the stored ledger. A mismatch freezes payments.
	// Admin only.
	Reconcile(ctx context.Context, actor authz.Actor, projectID uuid.UUID) error

	// Draft generates a proposed contract, scope, and milestone schedule
	// from a job description. Nothing is persisted.
	Draft(ctx context.Context, req *generator.DraftRequest) (*generator.Draft, error)
}

type projectService struct {
	db         database.TxRunner
	projects   repositories.ProjectRepository
	contracts  repositories.ContractRepository
	scopes     repositories.ScopeRepository
	milestones repositories.MilestoneRepository
	gate       *authz.Gate
	auditor    *audit.WorkflowAuditor
	publisher  events.Publisher
	drafter    generator.Drafter
	workflow   *config.WorkflowConfig
	logger     *zap.Logger
}

// NewProjectService creates a new project service with dependencies.
// drafter may be nil when no generator endpoint is configured.
func NewProjectService(
	db database.TxRunner,
	projects repositories.ProjectRepository,
	contracts repositories.ContractRepository,
	scopes repositories.ScopeRepository,
	milestones repositories.MilestoneRepository,
	gate *authz.Gate,
	auditor *audit.WorkflowAuditor,
	publisher events.Publisher,
	drafter generator.Drafter,
	workflow *config.WorkflowConfig,
	logger *zap.Logger,
) ProjectService {
	return &projectService{
		db:         db,
		projects:   projects,
		contracts:  contracts,
		scopes:     scopes,
		milestones: milestones,
		gate:       gate,
		auditor:    auditor,
		publisher:  publisher,
		drafter:    drafter,
		workflow:   workflow,
		logger:     logger.Named("project_service"),
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) Create(ctx context.Context, actor authz.Actor, input *CreateProjectInput) (*ProjectDetail, error) {
	project := &models.Project{
		ID:           uuid.New(),
		BidID:        input.BidID,
		JobID:        input.JobID,
		OwnerID:      input.OwnerID,
		ContractorID: input.ContractorID,
		Title:        input.Title,
		Description:  input.Description,
		Status:       models.ProjectSetup,
		TotalAmount:  input.TotalAmount,
		// Escrow starts fully funded; nothing is paid yet.
		PaidAmount:    0,
		EscrowBalance: input.TotalAmount,
	}

	if err := s.gate.Authorize(actor, authz.OpCreateProject, project); err != nil {
		return nil, err
	}
	if err := project.ValidateNew(); err != nil {
		return nil, err
	}

	contract := &models.Contract{
		ID:                    uuid.New(),
		ProjectID:             project.ID,
		ContractType:          input.Contract.ContractType,
		Terms:                 input.Contract.Terms,
		WarrantyTerms:         input.Contract.WarrantyTerms,
		InsuranceRequirements: input.Contract.InsuranceRequirements,
	}
	if err := contract.ValidateAgainstTotal(project.TotalAmount, s.workflow.RoundingToleranceBasisPoints); err != nil {
		return nil, err
	}

	scope := &models.ScopeOfWork{
		ID:            uuid.New(),
		ProjectID:     project.ID,
		WorkBreakdown: input.Scope.WorkBreakdown,
		Materials:     input.Scope.Materials,
		Requirements:  input.Scope.Requirements,
		Exclusions:    input.Scope.Exclusions,
	}
	if err := scope.ValidateNew(); err != nil {
		return nil, err
	}

	milestones, err := buildMilestones(project, input.Milestones)
	if err != nil {
		return nil, err
	}
	if err := matchPaymentSchedule(contract.Terms.PaymentSchedule, milestones); err != nil {
		return nil, err
	}

	err = s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.projects.Create(ctx, project); err != nil {
			return err
		}
		if err := s.contracts.Create(ctx, contract); err != nil {
			return err
		}
		if err := s.scopes.Create(ctx, scope); err != nil {
			return err
		}
		for _, m := range milestones {
			if err := s.milestones.Create(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID.String()),
		zap.String("owner_id", project.OwnerID.String()),
		zap.String("contractor_id", project.ContractorID.String()),
		zap.Int64("total_amount", int64(project.TotalAmount)),
		zap.Int("milestones", len(milestones)))

	return &ProjectDetail{
		Project:    project,
		Contract:   contract,
		Scope:      scope,
		Milestones: milestones,
	}, nil
}

// buildMilestones validates and materializes the milestone records. Order
// numbers must be contiguous from 1 and amounts must sum exactly to the
// project total in cents.
func buildMilestones(project *models.Project, inputs []MilestoneInput) ([]*models.Milestone, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one milestone is required", apperrors.ErrValidation)
	}

	seen := make(map[int]bool, len(inputs))
	milestones := make([]*models.Milestone, 0, len(inputs))
	var sum models.Money

	for _, in := range inputs {
		if in.OrderNumber < 1 || in.OrderNumber > len(inputs) || seen[in.OrderNumber] {
			return nil, fmt.Errorf("%w: milestone order numbers must be contiguous from 1", apperrors.ErrValidation)
		}
		seen[in.OrderNumber] = true
		if in.Title == "" {
			return nil, fmt.Errorf("%w: milestone %d missing title", apperrors.ErrValidation, in.OrderNumber)
		}
		if in.PaymentAmount <= 0 {
			return nil, fmt.Errorf("%w: milestone %d payment amount must be positive", apperrors.ErrValidation, in.OrderNumber)
		}
		sum += in.PaymentAmount

		milestones = append(milestones, &models.Milestone{
			ID:                 uuid.New(),
			ProjectID:          project.ID,
			OrderNumber:        in.OrderNumber,
			Title:              in.Title,
			Description:        in.Description,
			DueDate:            in.DueDate,
			PaymentAmount:      in.PaymentAmount,
			Deliverables:       in.Deliverables,
			AcceptanceCriteria: in.AcceptanceCriteria,
			Status:             models.MilestoneNotStarted,
		})
	}

	if sum != project.TotalAmount {
		return nil, fmt.Errorf("%w: milestone amounts sum to %s, project total is %s",
			apperrors.ErrValidation, sum, project.TotalAmount)
	}

	return milestones, nil
}

// matchPaymentSchedule enforces the one-to-one correspondence between the
// contract's payment schedule and the milestones: entry i funds milestone
// order i+1 for exactly its amount. Both sides already sum to the project
// total, so a mismatch here means the entries pair up wrong.
func matchPaymentSchedule(schedule []models.PaymentScheduleEntry, milestones []*models.Milestone) error {
	if len(schedule) != len(milestones) {
		return fmt.Errorf("%w: payment schedule has %d entries for %d milestones",
			apperrors.ErrValidation, len(schedule), len(milestones))
	}
	byOrder := make(map[int]*models.Milestone, len(milestones))
	for _, m := range milestones {
		byOrder[m.OrderNumber] = m
	}
	for i, entry := range schedule {
		m := byOrder[i+1]
		if entry.Amount != m.PaymentAmount {
			return fmt.Errorf("%w: payment schedule entry %d pays %s but milestone %d is %s",
				apperrors.ErrValidation, i, entry.Amount, m.OrderNumber, m.PaymentAmount)
		}
	}
	return nil
}

func (s *projectService) Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*ProjectDetail, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(actor, authz.OpViewProject, project); err != nil {
		return nil, err
	}

	contract, err := s.contracts.GetByProjectID(ctx, projectID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	scope, err := s.scopes.GetByProjectID(ctx, projectID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &ProjectDetail{
		Project:    project,
		Contract:   contract,
		Scope:      scope,
		Milestones: milestones,
	}, nil
}

func (s *projectService) List(ctx context.Context, actor authz.Actor, status models.ProjectStatus) ([]*models.Project, error) {
	if !actor.Known() {
		return nil, fmt.Errorf("%w: caller unknown", apperrors.ErrUnauthenticated)
	}
	if actor.IsAdmin() {
		return s.projects.List(ctx, status)
	}
	return s.projects.ListByParty(ctx, actor.ID)
}

func (s *projectService) Activate(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Project, error) {
	var project *models.Project

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		project, err = s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpActivateProject, project); err != nil {
			return err
		}

		contract, err := s.contracts.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}
		if !contract.IsFullyExecuted() {
			return fmt.Errorf("%w: contract must be signed by both parties before activation", apperrors.ErrInvalidTransition)
		}

		scope, err := s.scopes.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}
		if !scope.IsFullyApproved() {
			return fmt.Errorf("%w: scope must be approved by both parties before activation", apperrors.ErrInvalidTransition)
		}

		if err := project.Transition(models.ProjectActive); err != nil {
			return err
		}
		if err := s.projects.Update(ctx, project); err != nil {
			return err
		}

		milestones, err := s.milestones.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		for _, m := range milestones {
			if err := m.Activate(); err != nil {
				return err
			}
			if err := s.milestones.Update(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.Event{
		Type:       events.ProjectActivated,
		ProjectID:  project.ID,
		ActorID:    actor.ID,
		OccurredAt: time.Now(),
	})

	s.logger.Info("project activated", zap.String("project_id", project.ID.String()))
	return project, nil
}

func (s *projectService) ChangeStatus(ctx context.Context, actor authz.Actor, projectID uuid.UUID, target models.ProjectStatus) (*models.Project, error) {
	var project *models.Project
	var from models.ProjectStatus

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		project, err = s.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := s.gate.Authorize(actor, authz.OpChangeProjectStatus, project); err != nil {
			return err
		}

		from = project.Status
		if err := project.Transition(target); err != nil {
			return err
		}
		return s.projects.Update(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.LogStatusOverride(actor.ID, project.ID, string(from), string(target))
	s.publisher.Publish(ctx, events.Event{
		Type:       events.ProjectStatusChanged,
		ProjectID:  project.ID,
		ActorID:    actor.ID,
		OccurredAt: time.Now(),
		Data:       map[string]string{"from": string(from), "to": string(target)},
	})

	return project, nil
}

func (s *projectService) Reconcile(ctx context.Context, actor authz.Actor, projectID uuid.UUID) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(actor, authz.OpReconcileProject, project); err != nil {
		return err
	}
	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}

	recomputed := models.SumApprovedAmounts(milestones)
	if recomputed == project.PaidAmount && project.CheckLedger() == nil {
		return nil
	}

	s.auditor.LogLedgerIntegrityFailure(project.ID, int64(project.PaidAmount), int64(recomputed))
	if err := s.projects.SetPaymentHold(ctx, project.ID, true); err != nil {
		s.logger.Error("failed to freeze payments after integrity failure",
			zap.String("project_id", project.ID.String()),
			zap.Error(err))
	}

	return fmt.Errorf("%w: project %s stored paid %s, approved milestones total %s",
		apperrors.ErrLedgerIntegrity, project.ID, project.PaidAmount, recomputed)
}

func (s *projectService) Draft(ctx context.Context, req *generator.DraftRequest) (*generator.Draft, error) {
	if s.drafter == nil {
		return nil, fmt.Errorf("%w: draft generation is not configured", apperrors.ErrUnavailable)
	}
	return s.drafter.GenerateDraft(ctx, req)
}
