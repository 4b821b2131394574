package pilahandler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/params"
	"montero/internal/domain/pila"
	"montero/internal/transport/http/middleware"
)

const secret = "test-secret"

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	registry, err := params.NewRegistry(2025, params.Builtin()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(secret))
	NewHandler(registry, nil).RegisterRoutes(r)
	return r
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

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return env.Error.Code
}

func TestCalculateDependent(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodPost, "/pila/calculate", auth.RoleAnalyst,
		`{"salary":2000000,"riskClass":"I","cotizanteType":"dependiente"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data pila.Result `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	res := env.Data
	if res.Year != 2025 || res.DaysWorked != 30 || res.IBC != 2000000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.HealthEmployee != 80000 || res.PensionEmployee != 80000 || res.Totals.Employee != 160000 {
		t.Fatalf("unexpected employee shares %+v", res)
	}
	if res.Totals.Grand != res.Totals.Employee+res.Totals.Employer {
		t.Fatalf("grand total mismatch %+v", res.Totals)
	}
}

func TestCalculateErrors(t *testing.T) {
	h := newRouter(t)
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"salary", `{"salary":0,"riskClass":"I","cotizanteType":"DEPENDIENTE"}`, http.StatusBadRequest, "invalid_salary"},
		{"risk", `{"salary":2000000,"riskClass":9,"cotizanteType":"DEPENDIENTE"}`, http.StatusBadRequest, "invalid_risk_class"},
		{"days", `{"salary":2000000,"riskClass":"I","cotizanteType":"DEPENDIENTE","daysWorked":31}`, http.StatusBadRequest, "invalid_days_worked"},
		{"combination", `{"salary":20000000,"riskClass":"I","cotizanteType":"INDEPENDIENTE","isIntegralSalary":true}`, http.StatusBadRequest, "invalid_combination"},
		{"cotizante", `{"salary":2000000,"riskClass":"I","cotizanteType":"PENSIONADO"}`, http.StatusBadRequest, "invalid_cotizante"},
		{"year", `{"salary":2000000,"riskClass":"I","cotizanteType":"DEPENDIENTE","year":1999}`, http.StatusNotFound, "unknown_fiscal_year"},
		{"policy", `{"salary":2000000,"riskClass":"I","cotizanteType":"DEPENDIENTE","parafiscalPolicy":"never"}`, http.StatusBadRequest, "invalid_policy"},
		{"malformed", `{"salary":`, http.StatusBadRequest, "invalid_payload"},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/pila/calculate", auth.RoleOperator, tc.body)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d %s", tc.name, tc.status, rec.Code, rec.Body.String())
		}
		if code := errorCode(t, rec); code != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, code)
		}
	}
}

func TestCalculateRequiresPermission(t *testing.T) {
	h := newRouter(t)
	body := `{"salary":2000000,"riskClass":"I","cotizanteType":"DEPENDIENTE"}`
	if rec := do(t, h, http.MethodPost, "/pila/calculate", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/pila/calculate", auth.RoleService, body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReportFormats(t *testing.T) {
	h := newRouter(t)
	body := `{"salary":2000000,"riskClass":"II","cotizanteType":"DEPENDIENTE"}`

	rec := do(t, h, http.MethodPost, "/pila/report", auth.RoleAnalyst, body)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected pdf response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatal("expected a PDF document")
	}

	rec = do(t, h, http.MethodPost, "/pila/report?format=text", auth.RoleAnalyst, body)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "LIQUIDACIÓN PILA 2025") {
		t.Fatalf("unexpected text report %d %s", rec.Code, rec.Body.String())
	}
}

func TestParameters(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/pila/parameters", auth.RoleAnalyst, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"defaultYear":2025`) {
		t.Fatalf("unexpected list %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/pila/parameters/2025", auth.RoleAnalyst, "")
	var env struct {
		Data params.FiscalParameters `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.SMMLV != 1_300_000 || !env.Data.ARLRates[params.RiskV].Equal(params.Defaults2025().ARLRates[params.RiskV]) {
		t.Fatalf("unexpected bundle %+v", env.Data)
	}

	if rec := do(t, h, http.MethodGet, "/pila/parameters/2031", auth.RoleAnalyst, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/pila/parameters/abc", auth.RoleAnalyst, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
