package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"montero/internal/auth"
	"montero/internal/platform/metrics"
	"montero/internal/requestctx"
)

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "caller-supplied" {
		t.Fatal("expected caller request id to be kept")
	}
}

func TestAuthMiddlewareSetsPrincipal(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, "ops-1", auth.RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := GetPrincipal(r.Context())
		if !ok || p.Subject != "ops-1" || p.Role != auth.RoleOperator {
			t.Fatalf("unexpected principal: %+v", p)
		}
		if requestctx.GetActor(r.Context()) != "ops-1" {
			t.Fatal("expected actor in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("handler not called")
	}
}

func TestAuthMiddlewareIgnoresBadTokens(t *testing.T) {
	handler := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipal(r.Context()); ok {
			t.Fatal("did not expect principal in context")
		}
	}))
	for _, header := range []string{"", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func TestRequirePermission(t *testing.T) {
	secret := "test-secret"
	handler := Auth(secret)(RequirePermission(auth.PermVaultAdmin)(noContent()))

	cases := []struct {
		name string
		role string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"analyst", auth.RoleAnalyst, http.StatusForbidden},
		{"operator", auth.RoleOperator, http.StatusForbidden},
		{"admin", auth.RoleAdmin, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vault/credentials", nil)
		if tc.role != "" {
			token, err := auth.GenerateToken(secret, "u-"+tc.role, tc.role, time.Hour)
			if err != nil {
				t.Fatalf("token: %v", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestRecovererReturnsEnvelope(t *testing.T) {
	handler := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "internal_error") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	m := metrics.New()
	handler := Logger(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot || rec.Body.String() != "tea" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(scrape.Body.String(), `code="418"`) {
		t.Fatal("expected request to be counted")
	}
}

func TestBodyLimitRouteOverride(t *testing.T) {
	var readErr error
	handler := BodyLimit(4, RouteLimit{Path: "/api/v1/rpa/attachments", MaxBytes: 64})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name     string
		path     string
		tooLarge bool
	}{
		{"upload route uses its own cap", "/api/v1/rpa/attachments", false},
		{"other routes keep the default cap", "/api/v1/rpa/jobs", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			readErr = nil
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader("0123456789")))
			var mbe *http.MaxBytesError
			if got := errors.As(readErr, &mbe); got != tc.tooLarge {
				t.Fatalf("too large: got %v (%v) want %v", got, readErr, tc.tooLarge)
			}
		})
	}
}

func TestBodyLimitAndSecureHeaders(t *testing.T) {
	handler := SecureHeaders(true)(BodyLimit(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		_, err := r.Body.Read(buf)
		if err == nil {
			_, err = r.Body.Read(buf)
		}
		if err == nil || !strings.Contains(err.Error(), "too large") {
			t.Fatalf("expected body limit error, got %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected security headers")
	}
}
