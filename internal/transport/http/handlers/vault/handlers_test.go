package vaulthandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/audit"
	"montero/internal/domain/vault"
	"montero/internal/platform/db"
	"montero/internal/transport/http/middleware"
)

const (
	secret  = "test-secret"
	testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
)

func newRouter(t *testing.T) (http.Handler, *vault.Service, *audit.Service) {
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
	svc, err := vault.New(vault.NewStore(conn), testKey, "")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	rec := audit.New(conn)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(secret))
	NewHandler(svc, rec).RegisterRoutes(r)
	return r, svc, rec
}

func do(t *testing.T, h http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := auth.GenerateToken(secret, "user-"+role, role, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPutListDelete(t *testing.T) {
	h, svc, trail := newRouter(t)

	rec := do(t, h, http.MethodPut, "/vault/credentials/ARL-X", auth.RoleAdmin,
		`{"username":"operador","password":"s3cret","url":"https://arl.example","notes":"cuenta principal"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	cred, err := svc.Get(context.Background(), "ARL-X")
	if err != nil || cred.Username != "operador" || cred.Password != "s3cret" {
		t.Fatalf("credential not stored: %+v %v", cred, err)
	}

	rec = do(t, h, http.MethodGet, "/vault/credentials", auth.RoleAdmin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "s3cret") || strings.Contains(rec.Body.String(), "operador") {
		t.Fatal("listing leaked secrets")
	}
	var env struct {
		Data []vault.Summary `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if len(env.Data) != 1 || env.Data[0].Platform != "ARL-X" || !env.Data[0].Encrypted {
		t.Fatalf("unexpected listing %+v", env.Data)
	}

	if rec := do(t, h, http.MethodDelete, "/vault/credentials/ARL-X", auth.RoleAdmin, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/vault/credentials/ARL-X", auth.RoleAdmin, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	events, _ := trail.List(context.Background(), audit.Filter{EntityType: "credential"}, true, 10, 0)
	if len(events) != 2 {
		t.Fatalf("expected put and delete in the trail, got %+v", events)
	}
	for _, evt := range events {
		if strings.Contains(string(evt.After), "s3cret") {
			t.Fatal("audit trail leaked a secret")
		}
	}
}

func TestPutValidation(t *testing.T) {
	h, _, _ := newRouter(t)
	if rec := do(t, h, http.MethodPut, "/vault/credentials/ARL-X", auth.RoleAdmin, `{"username":"operador"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/vault/credentials/bad%20name", auth.RoleAdmin, `{"username":"a","password":"b"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad platform, got %d", rec.Code)
	}
}

func TestVaultRequiresAdmin(t *testing.T) {
	h, _, _ := newRouter(t)
	for _, role := range []string{auth.RoleOperator, auth.RoleAnalyst, auth.RoleService} {
		if rec := do(t, h, http.MethodGet, "/vault/credentials", role, ""); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", role, rec.Code)
		}
	}
}

func TestMigrateEndpoint(t *testing.T) {
	h, _, _ := newRouter(t)
	_ = do(t, h, http.MethodPut, "/vault/credentials/ARL-X", auth.RoleAdmin, `{"username":"a","password":"b"}`)

	rec := do(t, h, http.MethodPost, "/vault/migrate", auth.RoleAdmin, "")
	var env struct {
		Data vault.MigrationReport `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if rec.Code != http.StatusOK || env.Data.Scanned != 1 || env.Data.Skipped != 1 || env.Data.Migrated != 0 {
		t.Fatalf("unexpected report %d %+v", rec.Code, env.Data)
	}
}
