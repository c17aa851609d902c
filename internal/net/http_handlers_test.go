package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	server "cart-flipper/server"
	"cart-flipper/server/internal/observability"
)

func newAuthority(t *testing.T) *server.Authority {
	t.Helper()
	authority, err := server.NewAuthority(server.DefaultAuthorityConfig())
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	return authority
}

func TestHTTPHealth(t *testing.T) {
	handler := NewHTTPHandler(newAuthority(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("expected ok body, got %q", body)
	}
}

func TestHTTPDiagnosticsReportsSnapshot(t *testing.T) {
	authority := newAuthority(t)
	if err := authority.SpawnDemoCarts(2); err != nil {
		t.Fatalf("spawn demo carts: %v", err)
	}
	handler := NewHTTPHandler(authority, HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		Status    string        `json:"status"`
		Authority uint64        `json:"authority"`
		Version   string        `json:"version"`
		TickRate  int           `json:"tickRate"`
		Snapshot  server.Status `json:"snapshot"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if payload.Status != "ok" || payload.Authority != server.DefaultAuthorityID {
		t.Fatalf("unexpected diagnostics header %+v", payload)
	}
	if payload.Version != server.ProtocolVersion {
		t.Fatalf("expected version %q, got %q", server.ProtocolVersion, payload.Version)
	}
	if payload.TickRate <= 0 {
		t.Fatalf("expected positive tick rate, got %d", payload.TickRate)
	}
	if len(payload.Snapshot.Sessions) != 0 || len(payload.Snapshot.Peers) != 0 {
		t.Fatalf("expected an idle authority, got %+v", payload.Snapshot)
	}
}

func TestHTTPDiagnosticsRejectsPost(t *testing.T) {
	handler := NewHTTPHandler(newAuthority(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/diagnostics", nil))

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", resp.Code)
	}
}

func TestHTTPWebsocketRequiresPeer(t *testing.T) {
	handler := NewHTTPHandler(newAuthority(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestHTTPPprofTraceIsOptIn(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		want    int
	}{
		{name: "disabled", enabled: false, want: http.StatusNotFound},
		{name: "enabled", enabled: true, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHTTPHandler(newAuthority(t), HTTPHandlerConfig{
				Observability: observability.Config{EnablePprofTrace: tc.enabled},
			})
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/trace?seconds=0.01", nil))
			if resp.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, resp.Code)
			}
		})
	}
}
