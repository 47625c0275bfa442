package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/config"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/events"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

type milestoneFixture struct {
	svc        MilestoneService
	projects   *mockProjectRepo
	milestones *mockMilestoneRepo
	publisher  *capturingPublisher
	idem       *mockIdemGuard
	workflow   *config.WorkflowConfig

	project    *models.Project
	first      *models.Milestone
	second     *models.Milestone
	owner      authz.Actor
	contractor authz.Actor
	admin      authz.Actor
}

func newMilestoneFixture(t *testing.T) *milestoneFixture {
	t.Helper()

	ownerID := uuid.New()
	contractorID := uuid.New()
	projectID := uuid.New()

	project := &models.Project{
		ID:            projectID,
		OwnerID:       ownerID,
		ContractorID:  contractorID,
		Title:         "Kitchen remodel",
		Status:        models.ProjectActive,
		TotalAmount:   100000,
		PaidAmount:    0,
		EscrowBalance: 100000,
		Version:       1,
	}

	first := &models.Milestone{
		ID:            uuid.New(),
		ProjectID:     projectID,
		OrderNumber:   1,
		Title:         "Demolition",
		PaymentAmount: 60000,
		Status:        models.MilestonePending,
		Version:       1,
	}
	second := &models.Milestone{
		ID:            uuid.New(),
		ProjectID:     projectID,
		OrderNumber:   2,
		Title:         "Finish work",
		PaymentAmount: 40000,
		Status:        models.MilestonePending,
		Version:       1,
	}

	projects := newMockProjectRepo()
	milestones := newMockMilestoneRepo()
	require.NoError(t, projects.Create(context.Background(), project))
	require.NoError(t, milestones.Create(context.Background(), first))
	require.NoError(t, milestones.Create(context.Background(), second))

	publisher := &capturingPublisher{}
	idem := newMockIdemGuard()
	workflow := &config.WorkflowConfig{RoundingToleranceBasisPoints: 1}

	svc := NewMilestoneService(
		passthroughTx{}, projects, milestones,
		testGate(), testAuditor(), publisher, idem, workflow, zap.NewNop(),
	)

	return &milestoneFixture{
		svc:        svc,
		projects:   projects,
		milestones: milestones,
		publisher:  publisher,
		idem:       idem,
		workflow:   workflow,
		project:    project,
		first:      first,
		second:     second,
		owner:      authz.Actor{ID: ownerID},
		contractor: authz.Actor{ID: contractorID},
		admin:      authz.Actor{ID: uuid.New(), Roles: []string{auth.RoleAdmin}},
	}
}

func TestMilestoneService_Submit(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	m, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneSubmitted, m.Status)
	assert.Equal(t, "https://proofs.example/demo.jpg", m.ProofURL)
	assert.NotNil(t, m.SubmittedAt)
	assert.Contains(t, f.publisher.types(), events.MilestoneSubmitted)
}

func TestMilestoneService_Submit_RequiresProof(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Submit(context.Background(), f.contractor, f.project.ID, f.first.ID, "", "")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestMilestoneService_Submit_OwnerForbidden(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Submit(context.Background(), f.owner, f.project.ID, f.first.ID, "https://proofs.example/x.jpg", "")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestMilestoneService_Submit_ProjectNotActive(t *testing.T) {
	f := newMilestoneFixture(t)
	f.projects.projects[f.project.ID].Status = models.ProjectOnHold

	_, err := f.svc.Submit(context.Background(), f.contractor, f.project.ID, f.first.ID, "https://proofs.example/x.jpg", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMilestoneService_Submit_StrictSequential(t *testing.T) {
	f := newMilestoneFixture(t)
	f.workflow.StrictSequential = true
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.second.ID, "https://proofs.example/x.jpg", "")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	// Approve the first milestone, then the second becomes submittable.
	_, err = f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/1.jpg", "")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.contractor, f.project.ID, f.second.ID, "https://proofs.example/2.jpg", "")
	require.NoError(t, err)
}

func TestMilestoneService_Approve_ReleasesEscrow(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	m, err := f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneApproved, m.Status)
	assert.NotNil(t, m.ApprovedAt)

	stored := f.projects.projects[f.project.ID]
	assert.Equal(t, models.Money(60000), stored.PaidAmount)
	assert.Equal(t, models.Money(40000), stored.EscrowBalance)
	assert.Equal(t, models.ProjectActive, stored.Status)
	assert.Contains(t, f.publisher.types(), events.MilestoneApproved)
}

func TestMilestoneService_Approve_ContractorForbidden(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.contractor, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestMilestoneService_Approve_AdminBypass(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.admin, f.project.ID, f.first.ID, "")
	require.NoError(t, err)
}

func TestMilestoneService_Approve_NotSubmitted(t *testing.T) {
	f := newMilestoneFixture(t)

	_, err := f.svc.Approve(context.Background(), f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMilestoneService_Approve_Twice(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.NoError(t, err)

	// A second approval must fail loudly, and no money may move again.
	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored := f.projects.projects[f.project.ID]
	assert.Equal(t, models.Money(60000), stored.PaidAmount)
}

func TestMilestoneService_Approve_LastMilestoneCompletesProject(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	for _, id := range []uuid.UUID{f.first.ID, f.second.ID} {
		_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, id, "https://proofs.example/p.jpg", "")
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, f.owner, f.project.ID, id, "")
		require.NoError(t, err)
	}

	stored := f.projects.projects[f.project.ID]
	assert.Equal(t, models.ProjectCompleted, stored.Status)
	assert.Equal(t, models.Money(100000), stored.PaidAmount)
	assert.Equal(t, models.Money(0), stored.EscrowBalance)
	assert.Contains(t, f.publisher.types(), events.ProjectCompleted)
}

func TestMilestoneService_Approve_PaymentHold(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	f.projects.projects[f.project.ID].PaymentHold = true

	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMilestoneService_Approve_ProjectNotActive(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	// Cancellation after submission freezes reviews; no escrow may move on
	// a terminated contract.
	f.projects.projects[f.project.ID].Status = models.ProjectCancelled

	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	stored := f.projects.projects[f.project.ID]
	assert.Equal(t, models.Money(0), stored.PaidAmount)
	assert.Equal(t, models.Money(100000), stored.EscrowBalance)

	m, err := f.milestones.GetByID(ctx, f.project.ID, f.first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneSubmitted, m.Status)
}

func TestMilestoneService_Reject_ProjectNotActive(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)
	f.projects.projects[f.project.ID].Status = models.ProjectOnHold

	_, err = f.svc.Reject(ctx, f.owner, f.project.ID, f.first.ID, "tile spacing off")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMilestoneService_Approve_LedgerDrift(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	// Corrupt the stored ledger so the recomputed paid total disagrees.
	stored := f.projects.projects[f.project.ID]
	stored.PaidAmount = 1000
	stored.EscrowBalance = 99000

	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrLedgerIntegrity)

	// Drift freezes payments immediately, not only once an admin runs
	// reconciliation.
	assert.True(t, f.projects.projects[f.project.ID].PaymentHold)
}

func TestMilestoneService_Reject(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	m, err := f.svc.Reject(ctx, f.owner, f.project.ID, f.first.ID, "tile work incomplete")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneRejected, m.Status)
	assert.Equal(t, "tile work incomplete", m.RejectionReason)

	// No money moved.
	stored := f.projects.projects[f.project.ID]
	assert.Equal(t, models.Money(0), stored.PaidAmount)
	assert.Contains(t, f.publisher.types(), events.MilestoneRejected)
}

func TestMilestoneService_Reject_RequiresReason(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestMilestoneService_ResubmitAfterRejection(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/v1.jpg", "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, f.owner, f.project.ID, f.first.ID, "redo grout")
	require.NoError(t, err)

	m, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/v2.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, models.MilestoneSubmitted, m.Status)
	assert.Equal(t, "https://proofs.example/v2.jpg", m.ProofURL)
	assert.Empty(t, m.RejectionReason)

	_, err = f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.NoError(t, err)
}

func TestMilestoneService_IdempotencyKey(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "submit-1")
	require.NoError(t, err)

	// A retry with the same key must not re-execute.
	_, err = f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "submit-1")
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestMilestoneService_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	// Fails validation (no proof), so the key must be reusable.
	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "", "submit-2")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "submit-2")
	require.NoError(t, err)
}

func TestMilestoneService_List(t *testing.T) {
	f := newMilestoneFixture(t)

	ms, err := f.svc.List(context.Background(), f.owner, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 2)

	_, err = f.svc.List(context.Background(), authz.Actor{ID: uuid.New()}, f.project.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestMilestoneService_ApprovedAtMonotonic(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()

	before := time.Now()
	_, err := f.svc.Submit(ctx, f.contractor, f.project.ID, f.first.ID, "https://proofs.example/demo.jpg", "")
	require.NoError(t, err)
	m, err := f.svc.Approve(ctx, f.owner, f.project.ID, f.first.ID, "")
	require.NoError(t, err)

	assert.False(t, m.ApprovedAt.Before(before))
	assert.False(t, m.ApprovedAt.Before(*m.SubmittedAt))
}
