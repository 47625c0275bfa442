package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/audit"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/events"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

// passthroughTx satisfies database.TxRunner without a database. Rollback
// semantics are not simulated; tests assert on returned errors instead.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testGate() *authz.Gate {
	return authz.NewGate(audit.NewWorkflowAuditor(zap.NewNop()), zap.NewNop())
}

func testAuditor() *audit.WorkflowAuditor {
	return audit.NewWorkflowAuditor(zap.NewNop())
}

// capturingPublisher records published events for verification.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// mockProjectRepo implements repositories.ProjectRepository in memory.
type mockProjectRepo struct {
	projects  map[uuid.UUID]*models.Project
	createErr error
	updateErr error
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{projects: make(map[uuid.UUID]*models.Project)}
}

func (m *mockProjectRepo) Create(_ context.Context, project *models.Project) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *mockProjectRepo) GetByID(_ context.Context, projectID uuid.UUID) (*models.Project, error) {
	p, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepo) ListByParty(_ context.Context, actorID uuid.UUID) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range m.projects {
		if p.OwnerID == actorID || p.ContractorID == actorID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProjectRepo) List(_ context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range m.projects {
		if status == "" || p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockProjectRepo) Update(_ context.Context, project *models.Project) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.projects[project.ID]
	if !ok {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, project.ID)
	}
	if stored.Version != project.Version {
		return fmt.Errorf("%w: project %s was modified concurrently", apperrors.ErrConflict, project.ID)
	}
	project.Version++
	cp := *project
	m.projects[project.ID] = &cp
	return nil
}

func (m *mockProjectRepo) SetPaymentHold(_ context.Context, projectID uuid.UUID, hold bool) error {
	p, ok := m.projects[projectID]
	if !ok {
		return fmt.Errorf("%w: project %s", apperrors.ErrNotFound, projectID)
	}
	p.PaymentHold = hold
	return nil
}

// mockMilestoneRepo implements repositories.MilestoneRepository in memory.
type mockMilestoneRepo struct {
	milestones map[uuid.UUID]*models.Milestone
	createErr  error
	updateErr  error
}

func newMockMilestoneRepo() *mockMilestoneRepo {
	return &mockMilestoneRepo{milestones: make(map[uuid.UUID]*models.Milestone)}
}

func (m *mockMilestoneRepo) Create(_ context.Context, milestone *models.Milestone) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *milestone
	m.milestones[milestone.ID] = &cp
	return nil
}

func (m *mockMilestoneRepo) GetByID(_ context.Context, projectID, milestoneID uuid.UUID) (*models.Milestone, error) {
	ms, ok := m.milestones[milestoneID]
	if !ok || ms.ProjectID != projectID {
		return nil, fmt.Errorf("%w: milestone %s", apperrors.ErrNotFound, milestoneID)
	}
	cp := *ms
	return &cp, nil
}

func (m *mockMilestoneRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	var out []*models.Milestone
	for _, ms := range m.milestones {
		if ms.ProjectID == projectID {
			cp := *ms
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockMilestoneRepo) Update(_ context.Context, milestone *models.Milestone) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.milestones[milestone.ID]
	if !ok {
		return fmt.Errorf("%w: milestone %s", apperrors.ErrNotFound, milestone.ID)
	}
	if stored.Version != milestone.Version {
		return fmt.Errorf("%w: milestone %s was modified concurrently", apperrors.ErrConflict, milestone.ID)
	}
	milestone.Version++
	cp := *milestone
	m.milestones[milestone.ID] = &cp
	return nil
}

// mockContractRepo implements repositories.ContractRepository in memory.
type mockContractRepo struct {
	contracts map[uuid.UUID]*models.Contract // keyed by project ID
	createErr error
	updateErr error
}

func newMockContractRepo() *mockContractRepo {
	return &mockContractRepo{contracts: make(map[uuid.UUID]*models.Contract)}
}

func (m *mockContractRepo) Create(_ context.Context, contract *models.Contract) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *contract
	m.contracts[contract.ProjectID] = &cp
	return nil
}

func (m *mockContractRepo) GetByProjectID(_ context.Context, projectID uuid.UUID) (*models.Contract, error) {
	c, ok := m.contracts[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: contract for project %s", apperrors.ErrNotFound, projectID)
	}
	cp := *c
	return &cp, nil
}

func (m *mockContractRepo) Update(_ context.Context, contract *models.Contract) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.contracts[contract.ProjectID]
	if !ok {
		return fmt.Errorf("%w: contract %s", apperrors.ErrNotFound, contract.ID)
	}
	if stored.Version != contract.Version {
		return fmt.Errorf("%w: contract %s was modified concurrently", apperrors.ErrConflict, contract.ID)
	}
	contract.Version++
	cp := *contract
	m.contracts[contract.ProjectID] = &cp
	return nil
}

// mockScopeRepo implements repositories.ScopeRepository in memory.
type mockScopeRepo struct {
	scopes    map[uuid.UUID]*models.ScopeOfWork // keyed by project ID
	createErr error
	updateErr error
}

func newMockScopeRepo() *mockScopeRepo {
	return &mockScopeRepo{scopes: make(map[uuid.UUID]*models.ScopeOfWork)}
}

func (m *mockScopeRepo) Create(_ context.Context, scope *models.ScopeOfWork) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *scope
	m.scopes[scope.ProjectID] = &cp
	return nil
}

func (m *mockScopeRepo) GetByProjectID(_ context.Context, projectID uuid.UUID) (*models.ScopeOfWork, error) {
	s, ok := m.scopes[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: scope for project %s", apperrors.ErrNotFound, projectID)
	}
	cp := *s
	return &cp, nil
}

func (m *mockScopeRepo) Update(_ context.Context, scope *models.ScopeOfWork) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.scopes[scope.ProjectID]
	if !ok {
		return fmt.Errorf("%w: scope %s", apperrors.ErrNotFound, scope.ID)
	}
	if stored.Version != scope.Version {
		return fmt.Errorf("%w: scope %s was modified concurrently", apperrors.ErrConflict, scope.ID)
	}
	scope.Version++
	cp := *scope
	m.scopes[scope.ProjectID] = &cp
	return nil
}

// mockProgressRepo implements repositories.ProgressRepository in memory.
type mockProgressRepo struct {
	updates   []*models.ProgressUpdate
	createErr error
}

func (m *mockProgressRepo) Create(_ context.Context, update *models.ProgressUpdate) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *update
	m.updates = append(m.updates, &cp)
	return nil
}

func (m *mockProgressRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.ProgressUpdate, error) {
	var out []*models.ProgressUpdate
	for _, u := range m.updates {
		if u.ProjectID == projectID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockIdemGuard implements IdempotencyGuard in memory.
type mockIdemGuard struct {
	claimed map[string]bool
}

func newMockIdemGuard() *mockIdemGuard {
	return &mockIdemGuard{claimed: make(map[string]bool)}
}

func (g *mockIdemGuard) Reserve(_ context.Context, key string) error {
	if g.claimed[key] {
		return fmt.Errorf("%w: request with idempotency key %q was already processed", apperrors.ErrConflict, key)
	}
	g.claimed[key] = true
	return nil
}

func (g *mockIdemGuard) Release(_ context.Context, key string) {
	delete(g.claimed, key)
}
