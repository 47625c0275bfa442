// Package handlers translates HTTP requests into service calls. Handlers
// never enforce authorization themselves; the services' gate does.
package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/auth"
	"github.com/sitecrew-inc/sitecrew-engine/pkg/authz"
)

// actorFrom builds the authorization actor from the authenticated request.
func actorFrom(r *http.Request) authz.Actor {
	id, roles := auth.ActorFromContext(r.Context())
	return authz.Actor{ID: id, Roles: roles}
}

// parseProjectID extracts and validates the {pid} path segment. On failure
// it writes the error response and returns false.
func parseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parsePathID(w, r, "pid", "project ID", logger)
}

func parsePathID(w http.ResponseWriter, r *http.Request, segment, label string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(segment))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid "+label); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// idempotencyKey returns the client supplied deduplication key, if any.
func idempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}
