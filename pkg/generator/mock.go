package generator

import "context"

// MockDrafter is a configurable mock for testing draft-dependent code.
// Set GenerateDraftFunc to control behavior in tests.
type MockDrafter struct {
	// GenerateDraftFunc is called when GenerateDraft is invoked.
	// If nil, returns an empty draft and nil error.
	GenerateDraftFunc func(ctx context.Context, req *DraftRequest) (*Draft, error)

	// GenerateDraftCalls counts invocations for verification.
	GenerateDraftCalls int
}

var _ Drafter = (*MockDrafter)(nil)

// GenerateDraft implements Drafter.
func (m *MockDrafter) GenerateDraft(ctx context.Context, req *DraftRequest) (*Draft, error) {
	m.GenerateDraftCalls++
	if m.GenerateDraftFunc != nil {
		return m.GenerateDraftFunc(ctx, req)
	}
	return &Draft{}, nil
}
