package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// ProgressListResponse for GET /api/projects/{pid}/progress
type ProgressListResponse struct {
	Updates []*models.ProgressUpdate `json:"updates"`
	Total   int                      `json:"total"`
}

// ProgressHandler handles progress update HTTP requests.
type ProgressHandler struct {
	progressService services.ProgressService
	logger          *zap.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(progressService services.ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		logger:          logger,
	}
}

// RegisterRoutes registers the progress handler's routes on the given mux.
func (h *ProgressHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/progress", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/progress", authMiddleware.RequireAuth(h.Create))
}

// List handles GET /api/projects/{pid}/progress
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	updates, err := h.progressService.List(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response := ProgressListResponse{
		Updates: updates,
		Total:   len(updates),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/projects/{pid}/progress
func (h *ProgressHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var input services.CreateProgressUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	update, err := h.progressService.Create(r.Context(), actorFrom(r), projectID, &input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, update); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
