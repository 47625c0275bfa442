package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/generator"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/models"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// ProjectListResponse for GET /api/projects
type ProjectListResponse struct {
	Projects []*models.Project `json:"projects"`
	Total    int               `json:"total"`
}

// ChangeStatusRequest for PUT /api/projects/{pid}/status
type ChangeStatusRequest struct {
	Status models.ProjectStatus `json:"status"`
}

// ProjectsHandler handles project lifecycle HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/projects", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/projects", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/projects/draft", authMiddleware.RequireAuth(h.Draft))
	mux.HandleFunc("GET /api/projects/{pid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("POST /api/projects/{pid}/activate", authMiddleware.RequireAuth(h.Activate))
	mux.HandleFunc("PUT /api/projects/{pid}/status", authMiddleware.RequireAuth(h.ChangeStatus))
	mux.HandleFunc("POST /api/projects/{pid}/reconcile", authMiddleware.RequireAuth(h.Reconcile))
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.CreateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	detail, err := h.projectService.Create(r.Context(), actorFrom(r), &input)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, detail); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.ProjectStatus(r.URL.Query().Get("status"))

	projects, err := h.projectService.List(r.Context(), actorFrom(r), status)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response := ProjectListResponse{
		Projects: projects,
		Total:    len(projects),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.projectService.Get(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, detail); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Activate handles POST /api/projects/{pid}/activate
func (h *ProjectsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Activate(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, project); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ChangeStatus handles PUT /api/projects/{pid}/status
func (h *ProjectsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	project, err := h.projectService.ChangeStatus(r.Context(), actorFrom(r), projectID, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, project); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reconcile handles POST /api/projects/{pid}/reconcile
func (h *ProjectsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projectService.Reconcile(r.Context(), actorFrom(r), projectID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "consistent"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Draft handles POST /api/projects/draft
func (h *ProjectsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	var req generator.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	draft, err := h.projectService.Draft(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
