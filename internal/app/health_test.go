package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	response := decodeJSON(t, rr)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	response := decodeJSON(t, rr)
	if status, exists := response["status"]; !exists || status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}

	checks, exists := response["checks"].(map[string]any)
	if !exists {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	storeCheck, exists := checks["docstore"].(map[string]any)
	if !exists {
		t.Fatalf("expected docstore check, got %v", checks["docstore"])
	}
	if storeStatus := storeCheck["status"]; storeStatus != "ok" {
		t.Errorf("expected docstore status=ok, got %v", storeStatus)
	}
}

func TestReadyEndpoint_StoreFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.pingFn = func(context.Context) error {
		return errors.New("connection refused")
	}

	rr := env.do(http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	response := decodeJSON(t, rr)
	if ok, exists := response["ok"]; !exists || ok != false {
		t.Errorf("expected ok=false, got %v", ok)
	}
	checks, _ := response["checks"].(map[string]any)
	storeCheck, _ := checks["docstore"].(map[string]any)
	if storeError := storeCheck["error"]; storeError != "connection refused" {
		t.Errorf("expected docstore error='connection refused', got %v", storeError)
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(http.MethodOptions, "/api/rounds/save-round", "", "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestHealthEndpoint_CORSHeaders(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(http.MethodGet, "/api/health", "", "")

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}
	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestPingMethod(t *testing.T) {
	tests := []struct {
		name      string
		pingError error
		wantError bool
	}{
		{
			name:      "healthy store",
			pingError: nil,
			wantError: false,
		},
		{
			name:      "unhealthy store",
			pingError: errors.New("connection failed"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.store.pingFn = func(context.Context) error {
				return tt.pingError
			}

			err := env.service.Ping(context.Background())
			if (err != nil) != tt.wantError {
				t.Errorf("Ping() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
