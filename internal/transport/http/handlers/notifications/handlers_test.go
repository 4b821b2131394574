package notificationshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/notifications"
	"montero/internal/platform/db"
	"montero/internal/transport/http/middleware"
)

const secret = "test-secret"

func setup(t *testing.T) (http.Handler, *notifications.Service) {
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
	svc := notifications.New(notifications.NewStore(conn))
	r := chi.NewRouter()
	r.Use(middleware.Auth(secret))
	NewHandler(svc).RegisterRoutes(r)
	return r, svc
}

func call(t *testing.T, h http.Handler, method, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	token, err := auth.GenerateToken(secret, "user-"+role, role, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListAndMarkRead(t *testing.T) {
	h, svc := setup(t)
	ctx := context.Background()
	if err := svc.CredentialRejected(ctx, "3f1c2a9e-7d4b-4c1a-9e8f-0a1b2c3d4e5f", "ARL-X", "Clave vencida"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	rec := call(t, h, http.MethodGet, "/notifications?unread=true", auth.RoleAnalyst)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("unexpected list %d %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data []notifications.Notice `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if len(env.Data) != 1 || env.Data[0].Kind != notifications.KindCredentialRejected {
		t.Fatalf("unexpected notices %+v", env.Data)
	}

	if rec := call(t, h, http.MethodPost, "/notifications/"+env.Data[0].ID+"/read", auth.RoleAnalyst); rec.Code != http.StatusForbidden {
		t.Fatalf("analyst must not mark read, got %d", rec.Code)
	}
	if rec := call(t, h, http.MethodPost, "/notifications/"+env.Data[0].ID+"/read", auth.RoleOperator); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = call(t, h, http.MethodGet, "/notifications?unread=true", auth.RoleAnalyst)
	if rec.Header().Get("X-Total-Count") != "0" {
		t.Fatalf("expected no unread notices, got %s", rec.Header().Get("X-Total-Count"))
	}
	if rec := call(t, h, http.MethodPost, "/notifications/not-a-uuid/read", auth.RoleOperator); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
