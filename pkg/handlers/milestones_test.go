package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/apperrors"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
)

func submitRequest(projectID, milestoneID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost,
		"/api/projects/"+projectID.String()+"/milestones/"+milestoneID.String()+"/submit",
		bytes.NewBufferString(body))
	req.SetPathValue("pid", projectID.String())
	req.SetPathValue("mid", milestoneID.String())
	return req
}

func TestMilestonesHandler_Submit(t *testing.T) {
	projectID := uuid.New()
	milestoneID := uuid.New()

	svc := &mockMilestoneService{
		SubmitFunc: func(_ context.Context, _ authz.Actor, pid, mid uuid.UUID, proofURL, idemKey string) (*models.Milestone, error) {
			if pid != projectID || mid != milestoneID {
				t.Errorf("unexpected ids: %s %s", pid, mid)
			}
			if proofURL != "https://proofs.example/demo.jpg" {
				t.Errorf("unexpected proof URL %q", proofURL)
			}
			if idemKey != "key-1" {
				t.Errorf("unexpected idempotency key %q", idemKey)
			}
			return &models.Milestone{ID: mid, ProjectID: pid, Status: models.MilestoneSubmitted}, nil
		},
	}
	handler := NewMilestonesHandler(svc, zap.NewNop())

	req := submitRequest(projectID, milestoneID, `{"proof_url":"https://proofs.example/demo.jpg"}`)
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var m models.Milestone
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if m.Status != models.MilestoneSubmitted {
		t.Errorf("expected status submitted, got %s", m.Status)
	}
}

func TestMilestonesHandler_Submit_InvalidBody(t *testing.T) {
	handler := NewMilestonesHandler(&mockMilestoneService{}, zap.NewNop())

	req := submitRequest(uuid.New(), uuid.New(), `{not json`)
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestMilestonesHandler_Submit_InvalidMilestoneID(t *testing.T) {
	handler := NewMilestonesHandler(&mockMilestoneService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/x/milestones/y/submit", nil)
	req.SetPathValue("pid", uuid.New().String())
	req.SetPathValue("mid", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Submit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestMilestonesHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperrors.ErrValidation, http.StatusBadRequest, "validation_error"},
		{"unauthenticated", apperrors.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"invalid transition", apperrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"ledger integrity", apperrors.ErrLedgerIntegrity, http.StatusInternalServerError, "ledger_integrity"},
		{"unavailable", apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMilestoneService{
				ApproveFunc: func(_ context.Context, _ authz.Actor, _, _ uuid.UUID, _ string) (*models.Milestone, error) {
					return nil, fmt.Errorf("%w: boom", tt.err)
				},
			}
			handler := NewMilestonesHandler(svc, zap.NewNop())

			projectID := uuid.New()
			milestoneID := uuid.New()
			req := httptest.NewRequest(http.MethodPost,
				"/api/projects/"+projectID.String()+"/milestones/"+milestoneID.String()+"/approve", nil)
			req.SetPathValue("pid", projectID.String())
			req.SetPathValue("mid", milestoneID.String())
			rec := httptest.NewRecorder()

			handler.Approve(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, body["error"])
			}
		})
	}
}

func TestMilestonesHandler_Reject(t *testing.T) {
	projectID := uuid.New()
	milestoneID := uuid.New()

	svc := &mockMilestoneService{
		RejectFunc: func(_ context.Context, _ authz.Actor, _, _ uuid.UUID, reason string) (*models.Milestone, error) {
			if reason != "grout incomplete" {
				t.Errorf("unexpected reason %q", reason)
			}
			return &models.Milestone{ID: milestoneID, Status: models.MilestoneRejected, RejectionReason: reason}, nil
		},
	}
	handler := NewMilestonesHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost,
		"/api/projects/"+projectID.String()+"/milestones/"+milestoneID.String()+"/reject",
		bytes.NewBufferString(`{"reason":"grout incomplete"}`))
	req.SetPathValue("pid", projectID.String())
	req.SetPathValue("mid", milestoneID.String())
	rec := httptest.NewRecorder()

	handler.Reject(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestMilestonesHandler_List(t *testing.T) {
	projectID := uuid.New()

	svc := &mockMilestoneService{
		ListFunc: func(_ context.Context, _ authz.Actor, pid uuid.UUID) ([]*models.Milestone, error) {
			return []*models.Milestone{
				{ProjectID: pid, OrderNumber: 1},
				{ProjectID: pid, OrderNumber: 2},
			}, nil
		},
	}
	handler := NewMilestonesHandler(svc, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+projectID.String()+"/milestones", nil)
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response MilestoneListResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 2 {
		t.Errorf("expected 2 milestones, got %d", response.Total)
	}
}
