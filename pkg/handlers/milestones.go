package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// MilestoneListResponse for GET /api/projects/{pid}/milestones
type MilestoneListResponse struct {
	Milestones []*models.Milestone `json:"milestones"`
	Total      int                 `json:"total"`
}

// SubmitMilestoneRequest for POST .../milestones/{mid}/submit
type SubmitMilestoneRequest struct {
	ProofURL string `json:"proof_url"`
}

// RejectMilestoneRequest for POST .../milestones/{mid}/reject
type RejectMilestoneRequest struct {
	Reason string `json:"reason"`
}

// MilestonesHandler handles milestone workflow HTTP requests.
type MilestonesHandler struct {
	milestoneService services.MilestoneService
	logger           *zap.Logger
}

// NewMilestonesHandler creates a new milestones handler.
func NewMilestonesHandler(milestoneService services.MilestoneService, logger *zap.Logger) *MilestonesHandler {
	return &MilestonesHandler{
		milestoneService: milestoneService,
		logger:           logger,
	}
}

// RegisterRoutes registers the milestones handler's routes on the given mux.
func (h *MilestonesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/projects/{pid}/milestones"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST "+base+"/{mid}/submit", authMiddleware.RequireAuth(h.Submit))
	mux.HandleFunc("POST "+base+"/{mid}/approve", authMiddleware.RequireAuth(h.Approve))
	mux.HandleFunc("POST "+base+"/{mid}/reject", authMiddleware.RequireAuth(h.Reject))
}

// List handles GET /api/projects/{pid}/milestones
func (h *MilestonesHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	milestones, err := h.milestoneService.List(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response := MilestoneListResponse{
		Milestones: milestones,
		Total:      len(milestones),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Submit handles POST /api/projects/{pid}/milestones/{mid}/submit
func (h *MilestonesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	milestoneID, ok := parsePathID(w, r, "mid", "milestone ID", h.logger)
	if !ok {
		return
	}

	var req SubmitMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	milestone, err := h.milestoneService.Submit(r.Context(), actorFrom(r), projectID, milestoneID, req.ProofURL, idempotencyKey(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, milestone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Approve handles POST /api/projects/{pid}/milestones/{mid}/approve
func (h *MilestonesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	milestoneID, ok := parsePathID(w, r, "mid", "milestone ID", h.logger)
	if !ok {
		return
	}

	milestone, err := h.milestoneService.Approve(r.Context(), actorFrom(r), projectID, milestoneID, idempotencyKey(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, milestone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reject handles POST /api/projects/{pid}/milestones/{mid}/reject
func (h *MilestonesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	milestoneID, ok := parsePathID(w, r, "mid", "milestone ID", h.logger)
	if !ok {
		return
	}

	var req RejectMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	milestone, err := h.milestoneService.Reject(r.Context(), actorFrom(r), projectID, milestoneID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, milestone); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
