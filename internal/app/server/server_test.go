package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"montero/internal/auth"
	"montero/internal/platform/config"
	"montero/internal/platform/db"
	"montero/internal/rpa/browser"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.SQLitePath = ":memory:"
	cfg.JWTSecret = "test-secret"
	cfg.Vault.MasterKey = testKey
	cfg.Artifacts.Dir = t.TempDir()
	cfg.RPA.Driver = config.BrowserSimulated
	cfg.RPA.WorkerID = "test"
	cfg.Maintenance.Interval = 0
	return cfg
}

func newApp(t *testing.T, cfg config.Config) (*App, *browser.Simulated) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	driver := browser.NewSimulated()
	app, err := Build(ctx, cfg, conn, driver)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return app, driver
}

func request(t *testing.T, h http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := auth.GenerateToken("test-secret", "user-"+role, role, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProbesAndMetrics(t *testing.T) {
	app, _ := newApp(t, testConfig(t))

	if rec := request(t, app.Router, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := request(t, app.Router, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
	rec := request(t, app.Router, http.MethodGet, "/healthz", "", "")
	if rec.Header().Get("X-Request-ID") == "" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing standard headers: %v", rec.Header())
	}

	rec = request(t, app.Router, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "montero_http_requests_total") {
		t.Fatalf("metrics not exposed: %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	app, _ := newApp(t, testConfig(t))
	if rec := request(t, app.Router, http.MethodGet, "/api/v1/rpa/jobs", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := request(t, app.Router, http.MethodGet, "/api/v1/pila/parameters", auth.RoleAnalyst, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBuildFailsFastOnBadVaultKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vault.MasterKey = ""
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := Build(ctx, cfg, conn, browser.NewSimulated()); err == nil {
		t.Fatal("expected startup to fail without a vault key")
	}
}

func TestBuildRejectsUnknownFiscalYear(t *testing.T) {
	cfg := testConfig(t)
	cfg.FiscalYear = 1999
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := Build(ctx, cfg, conn, browser.NewSimulated()); err == nil {
		t.Fatal("expected startup to fail for a year without parameters")
	}
}

func TestJobEndToEnd(t *testing.T) {
	app, driver := newApp(t, testConfig(t))
	h := app.Router

	rec := request(t, h, http.MethodPut, "/api/v1/vault/credentials/ARL-X", auth.RoleAdmin,
		`{"username":"operador","password":"s3cret","url":"https://arl.example"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put credential: %d %s", rec.Code, rec.Body.String())
	}

	rec = request(t, h, http.MethodPost, "/api/v1/rpa/jobs", auth.RoleOperator,
		`{"action":"AFFILIATE","platform":"ARL-X","payload":{"documentType":"CC","documentNumber":"1020304050","firstName":"Ana","lastName":"Rojas","birthDate":"1990-05-01","employerNit":"900123456","startDate":"2025-03-01","salary":1423500,"riskClass":"I"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data struct {
			JobID string `json:"jobId"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	processed, err := app.Pool.RunOnce(context.Background(), "test-1")
	if err != nil || !processed {
		t.Fatalf("run once: %v %v", processed, err)
	}

	rec = request(t, h, http.MethodGet, "/api/v1/rpa/jobs/"+created.Data.JobID, auth.RoleAnalyst, "")
	var status struct {
		Data struct {
			Status      string `json:"status"`
			ArtifactRef string `json:"artifactRef"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Data.Status != "SUCCEEDED" || status.Data.ArtifactRef == "" {
		t.Fatalf("unexpected status %s", rec.Body.String())
	}

	rec = request(t, h, http.MethodGet, "/api/v1/rpa/artifacts/"+status.Data.ArtifactRef, auth.RoleAnalyst, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("artifact download: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if driver.Active() != 0 {
		t.Fatalf("browser sessions leaked: %d", driver.Active())
	}

	rec = request(t, h, http.MethodGet, "/api/v1/audit/events", auth.RoleAdmin, "")
	if rec.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("expected credential and job audit events, got %s", rec.Header().Get("X-Total-Count"))
	}
}

func TestMaintenanceRunsEndpoint(t *testing.T) {
	app, _ := newApp(t, testConfig(t))
	if err := app.Scheduler.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	rec := request(t, app.Router, http.MethodGet, "/api/v1/maintenance/runs", auth.RoleAdmin, "")
	var env struct {
		Data []struct {
			JobType string `json:"jobType"`
			Status  string `json:"status"`
		} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if rec.Code != http.StatusOK || len(env.Data) != 3 {
		t.Fatalf("unexpected runs %d %s", rec.Code, rec.Body.String())
	}
	for _, run := range env.Data {
		if run.Status != "completed" {
			t.Fatalf("unexpected run %+v", run)
		}
	}

	if rec := request(t, app.Router, http.MethodGet, "/api/v1/maintenance/runs", auth.RoleOperator, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig(t)
	cfg.CORSOrigins = []string{"https://montero.example"}
	app, _ := newApp(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/rpa/jobs", nil)
	req.Header.Set("Origin", "https://montero.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://montero.example" {
		t.Fatalf("missing CORS headers: %v", rec.Header())
	}
}
