package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockValidator struct {
	claims *Claims
	err    error
}

func (m *mockValidator) ValidateToken(tokenString string) (*Claims, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.claims, nil
}

func (m *mockValidator) Close() {}

func TestRequireAuth_MissingHeader(t *testing.T) {
	mw := NewMiddleware(&mockValidator{}, zap.NewNop())
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	mw := NewMiddleware(&mockValidator{err: errors.New("expired")}, zap.NewNop())
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuth_SetsClaims(t *testing.T) {
	subject := uuid.New()
	validator := &mockValidator{claims: &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject.String()},
		Roles:            []string{RoleContractor},
	}}
	mw := NewMiddleware(validator, zap.NewNop())

	called := false
	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
		actorID, roles := ActorFromContext(r.Context())
		if actorID != subject {
			t.Errorf("actor = %s, want %s", actorID, subject)
		}
		if len(roles) != 1 || roles[0] != RoleContractor {
			t.Errorf("roles = %v", roles)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if !called {
		t.Fatal("handler not called")
	}
}

func TestHasRole(t *testing.T) {
	c := &Claims{Roles: []string{RoleOwner, RoleAdmin}}
	if !c.HasRole(RoleAdmin) {
		t.Error("expected admin role")
	}
	if c.HasRole(RoleContractor) {
		t.Error("unexpected contractor role")
	}
}
