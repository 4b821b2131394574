package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"montero/internal/auth"
	"montero/internal/domain/pila"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONTERO_CONFIG", "")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "montero.db"))
	t.Setenv("VAULT_MASTER_KEY", testKey)
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("USER", "tester")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "token", "--subject", "ops-bot", "--role", auth.RoleService)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseToken("cli-secret", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops-bot" || claims.Role != auth.RoleService {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := run(t, "", "token", "--subject", "x", "--role", "root"); !errors.Is(err, auth.ErrUnknownRole) {
		t.Fatalf("expected unknown role, got %v", err)
	}
}

func TestPilaCalcText(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "I")
	if err != nil {
		t.Fatalf("calc: %v", err)
	}
	if !strings.Contains(out, "LIQUIDACIÓN PILA 2025") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestPilaCalcJSON(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "1", "--format", "json")
	if err != nil {
		t.Fatalf("calc: %v", err)
	}
	var res pila.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.HealthEmployee != 80000 || res.PensionEmployee != 80000 || res.IBC != 2000000 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPilaCalcErrors(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "", "pila", "calc", "--salary", "0", "--risk-class", "I"); !errors.Is(err, pila.ErrInvalidSalary) {
		t.Fatalf("expected invalid salary, got %v", err)
	}
	if _, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "VI"); err == nil {
		t.Fatal("expected risk class error")
	}
	if _, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "I", "--policy", "never"); err == nil {
		t.Fatal("expected policy error")
	}
	if _, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "I", "--format", "pdf"); err == nil {
		t.Fatal("expected pdf without --out to fail")
	}
}

func TestPilaCalcPDF(t *testing.T) {
	setupEnv(t)
	path := filepath.Join(t.TempDir(), "liquidacion.pdf")
	out, err := run(t, "", "pila", "calc", "--salary", "2000000", "--risk-class", "I", "--format", "pdf", "--out", path)
	if err != nil || !strings.Contains(out, path) {
		t.Fatalf("pdf: %v %s", err, out)
	}
}

func TestVaultCommands(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "s3cret\n", "vault", "put", "ARL-X", "--username", "operador", "--password-stdin", "--url", "https://arl.example"); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := run(t, "", "vault", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "ARL-X") || strings.Contains(out, "s3cret") {
		t.Fatalf("unexpected listing:\n%s", out)
	}

	out, err = run(t, "", "vault", "get", "ARL-X")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "password: s3cret") || !strings.Contains(out, "username: operador") {
		t.Fatalf("unexpected credential output:\n%s", out)
	}

	out, err = run(t, "", "vault", "migrate")
	if err != nil || !strings.Contains(out, "scanned 1, migrated 0, skipped 1") {
		t.Fatalf("migrate: %v %s", err, out)
	}

	if _, err := run(t, "", "vault", "delete", "ARL-X"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "", "vault", "delete", "ARL-X"); err == nil {
		t.Fatal("expected second delete to fail")
	}
}

func TestVaultRequiresKey(t *testing.T) {
	setupEnv(t)
	t.Setenv("VAULT_MASTER_KEY", "")
	if _, err := run(t, "", "vault", "list"); err == nil {
		t.Fatal("expected missing key to fail")
	}
}

func TestParamsListAndMigrate(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "migrate")
	if err != nil || !strings.Contains(out, "migrations applied") {
		t.Fatalf("migrate: %v %s", err, out)
	}
	out, err = run(t, "", "params", "list")
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if !strings.Contains(out, "2025") || !strings.Contains(out, "1300000") {
		t.Fatalf("unexpected params listing:\n%s", out)
	}
}
