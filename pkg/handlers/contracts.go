package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/services"
)

// ContractsHandler handles contract and scope-of-work HTTP requests.
type ContractsHandler struct {
	contractService services.ContractService
	scopeService    services.ScopeService
	logger          *zap.Logger
}

// NewContractsHandler creates a new contracts handler.
func NewContractsHandler(
	contractService services.ContractService,
	scopeService services.ScopeService,
	logger *zap.Logger,
) *ContractsHandler {
	return &ContractsHandler{
		contractService: contractService,
		scopeService:    scopeService,
		logger:          logger,
	}
}

// RegisterRoutes registers the contracts handler's routes on the given mux.
func (h *ContractsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/projects/{pid}/contract", authMiddleware.RequireAuth(h.GetContract))
	mux.HandleFunc("POST /api/projects/{pid}/contract/sign", authMiddleware.RequireAuth(h.SignContract))
	mux.HandleFunc("GET /api/projects/{pid}/scope", authMiddleware.RequireAuth(h.GetScope))
	mux.HandleFunc("POST /api/projects/{pid}/scope/approve", authMiddleware.RequireAuth(h.ApproveScope))
}

// GetContract handles GET /api/projects/{pid}/contract
func (h *ContractsHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	contract, err := h.contractService.Get(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, contract); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SignContract handles POST /api/projects/{pid}/contract/sign
func (h *ContractsHandler) SignContract(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	contract, err := h.contractService.Sign(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, contract); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetScope handles GET /api/projects/{pid}/scope
func (h *ContractsHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	scope, err := h.scopeService.Get(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, scope); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ApproveScope handles POST /api/projects/{pid}/scope/approve
func (h *ContractsHandler) ApproveScope(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	scope, err := h.scopeService.Approve(r.Context(), actorFrom(r), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, scope); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
