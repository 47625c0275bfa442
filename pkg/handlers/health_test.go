package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/sitecrew-inc/sitecrew-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(&config.Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body %q, got %q", "ok", rec.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3", Env: "test"}
	handler := NewHealthHandler(cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	handler.Ping(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status ok, got %q", response.Status)
	}
	if response.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", response.Version)
	}
	if response.Service != "sitecrew-engine" {
		t.Errorf("expected service sitecrew-engine, got %q", response.Service)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment test, got %q", response.Environment)
	}
}
