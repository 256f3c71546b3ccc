package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/followup/internal/config"
	"github.com/clinic/followup/internal/domain/followup"
	"github.com/clinic/followup/internal/platform/db"
	"github.com/clinic/followup/internal/platform/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		LogLevel:       "info",
		StoreDriver:    config.StoreDriverMemory,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      "1M",
		CORSOrigins:    []string{"http://localhost:5173"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
}

func newTestServer() http.Handler {
	store := followup.NewMemoryStore()
	return newServer(testConfig(), zerolog.Nop(), store, store, nil)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Root(t *testing.T) {
	rec := do(newTestServer(), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "Server is running!" {
		t.Errorf("unexpected root response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_Health(t *testing.T) {
	rec := do(newTestServer(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected health body %s", rec.Body.String())
	}
}

func TestServer_FollowUpFlow(t *testing.T) {
	srv := newTestServer()

	rec := do(srv, http.MethodPost, "/api/patients", `{"name":"Rex","procedure":"Spay"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("expected CORS header for the frontend origin")
	}
	var p followup.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode patient: %v", err)
	}

	body := `{"followUpId":"` + p.FollowUps[0].ID.String() + `","status":"CONCERN","response":"Lethargic"}`
	rec = do(srv, http.MethodPost, "/api/respond", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodPost, "/api/respond", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("resubmit: expected 409, got %d", rec.Code)
	}

	rec = do(srv, http.MethodGet, "/api/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", rec.Code)
	}
	var ns []followup.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &ns); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(ns) != 1 || !strings.Contains(ns[0].Message, "Rex") {
		t.Errorf("unexpected notifications %+v", ns)
	}

	rec = do(srv, http.MethodGet, "/api/follow-ups", "")
	etag := rec.Header().Get("ETag")
	if rec.Code != http.StatusOK || etag == "" {
		t.Fatalf("follow-ups: expected tagged 200, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/follow-ups", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for unchanged listing, got %d", rec.Code)
	}
}

func TestServer_ErrorBodies(t *testing.T) {
	srv := newTestServer()

	rec := do(srv, http.MethodPost, "/api/patients", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"Name and procedure are required"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/api/follow-ups/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = do(srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("expected JSON 404, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.LogLevel = "warn"
	logger := newLogger(cfg, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected log output %q", out)
	}

	cfg.LogLevel = "bogus"
	if got := newLogger(cfg, &buf).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %s", got)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_followup.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2025-03-01 09:00:00") {
		t.Errorf("expected applied row, got %s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending row, got %s", out)
	}
}

func TestServer_Metrics(t *testing.T) {
	store := followup.NewMemoryStore()
	srv := newServer(testConfig(), zerolog.Nop(), store, store, telemetry.New())

	rec := do(srv, http.MethodPost, "/api/patients", `{"name":"Rex","procedure":"Spay"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}

	rec = do(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`followup_events_total{event="patient_registered"} 1`,
		`route="/api/patients"`,
		"http_server_active_requests",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %s", want)
		}
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	rec := do(newTestServer(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", rec.Code)
	}
}

func TestRunServer_ReturnsConfigError(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")

	err := runServer()
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load config error, got %v", err)
	}
}
