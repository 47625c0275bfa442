package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/generator"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// Function-field mocks for the service interfaces. Unset fields panic,
// which surfaces unexpected calls immediately in tests.

type mockProjectService struct {
	CreateFunc       func(ctx context.Context, actor authz.Actor, input *services.CreateProjectInput) (*services.ProjectDetail, error)
	GetFunc          func(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*services.ProjectDetail, error)
	ListFunc         func(ctx context.Context, actor authz.Actor, status models.ProjectStatus) ([]*models.Project, error)
	ActivateFunc     func(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Project, error)
	ChangeStatusFunc func(ctx context.Context, actor authz.Actor, projectID uuid.UUID, target models.ProjectStatus) (*models.Project, error)
	ReconcileFunc    func(ctx context.Context, actor authz.Actor, projectID uuid.UUID) error
	DraftFunc        func(ctx context.Context, req *generator.DraftRequest) (*generator.Draft, error)
}

var _ services.ProjectService = (*mockProjectService)(nil)

func (m *mockProjectService) Create(ctx context.Context, actor authz.Actor, input *services.CreateProjectInput) (*services.ProjectDetail, error) {
	return m.CreateFunc(ctx, actor, input)
}

func (m *mockProjectService) Get(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*services.ProjectDetail, error) {
	return m.GetFunc(ctx, actor, projectID)
}

func (m *mockProjectService) List(ctx context.Context, actor authz.Actor, status models.ProjectStatus) ([]*models.Project, error) {
	return m.ListFunc(ctx, actor, status)
}

func (m *mockProjectService) Activate(ctx context.Context, actor authz.Actor, projectID uuid.UUID) (*models.Project, error) {
	return m.ActivateFunc(ctx, actor, projectID)
}

func (m *mockProjectService) ChangeStatus(ctx context.Context, actor authz.Actor, projectID uuid.UUID, target models.ProjectStatus) (*models.Project, error) {
	return m.ChangeStatusFunc(ctx, actor, projectID, target)
}

func (m *mockProjectService) Reconcile(ctx context.Context, actor authz.Actor, projectID uuid.UUID) error {
	return m.ReconcileFunc(ctx, actor, projectID)
}

func (m *mockProjectService) Draft(ctx context.Context, req *generator.DraftRequest) (*generator.Draft, error) {
	return m.DraftFunc(ctx, req)
}

type mockMilestoneService struct {
	ListFunc    func(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.Milestone, error)
	SubmitFunc  func(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, proofURL, idemKey string) (*models.Milestone, error)
	ApproveFunc func(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, idemKey string) (*models.Milestone, error)
	RejectFunc  func(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, reason string) (*models.Milestone, error)
}

var _ services.MilestoneService = (*mockMilestoneService)(nil)

func (m *mockMilestoneService) List(ctx context.Context, actor authz.Actor, projectID uuid.UUID) ([]*models.Milestone, error) {
	return m.ListFunc(ctx, actor, projectID)
}

func (m *mockMilestoneService) Submit(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, proofURL, idemKey string) (*models.Milestone, error) {
	return m.SubmitFunc(ctx, actor, projectID, milestoneID, proofURL, idemKey)
}

func (m *mockMilestoneService) Approve(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, idemKey string) (*models.Milestone, error) {
	return m.ApproveFunc(ctx, actor, projectID, milestoneID, idemKey)
}

func (m *mockMilestoneService) Reject(ctx context.Context, actor authz.Actor, projectID, milestoneID uuid.UUID, reason string) (*models.Milestone, error) {
	return m.RejectFunc(ctx, actor, projectID, milestoneID, reason)
}
