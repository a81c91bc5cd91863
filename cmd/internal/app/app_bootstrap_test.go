package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"libra/cmd/identity"
)

func testApp(t *testing.T, cfg Config) *App {
	t.Helper()

	// Cheap hashing parameters; the defaults are tuned for production logins.
	t.Setenv("LIBRA_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("LIBRA_ARGON2_ITERATIONS", "1")
	t.Setenv("LIBRA_ARGON2_PARALLELISM", "1")
	t.Setenv("LIBRA_SESSION_SWEEP_INTERVAL", "0")

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_BootstrapsSuperAdmin(t *testing.T) {
	a := testApp(t, Config{
		RequireArgon2id:          true,
		BootstrapAdminUsername:   "  Root ",
		BootstrapAdminPassword:   "Adm1n!pass",
		BootstrapAdminMustChange: true,
	})

	p, err := a.principals.GetByUsername(context.Background(), "root")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if p.Role != identity.RoleSuperAdmin {
		t.Fatalf("role=%q want %q", p.Role, identity.RoleSuperAdmin)
	}
	if !p.MustChangePassword {
		t.Fatalf("expected must_change_password")
	}
	if !a.passwords.Verify("Adm1n!pass", p.PasswordHash) {
		t.Fatalf("stored hash does not verify")
	}

	// A second run keeps the existing account.
	if err := a.bootstrapAdmin(context.Background()); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	again, err := a.principals.GetByUsername(context.Background(), "root")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if again.ID != p.ID || again.PasswordHash != p.PasswordHash {
		t.Fatalf("bootstrap replaced the existing account")
	}
}

func TestNew_BootstrapRejectsWeakPassword(t *testing.T) {
	t.Setenv("LIBRA_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("LIBRA_ARGON2_ITERATIONS", "1")

	_, err := New(context.Background(), Config{
		RequireArgon2id:        true,
		BootstrapAdminUsername: "root",
		BootstrapAdminPassword: "password",
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "bootstrap admin password") {
		t.Fatalf("expected bootstrap password error, got %v", err)
	}
}

func TestNew_SkipsBootstrapWithoutCredentials(t *testing.T) {
	a := testApp(t, Config{RequireArgon2id: true, BootstrapAdminUsername: "root"})

	_, err := a.principals.GetByUsername(context.Background(), "root")
	if !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandler_ProbesAndMetrics(t *testing.T) {
	a := testApp(t, Config{RequireArgon2id: true})
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(res.Body)
		_ = res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, res.StatusCode)
		}
		if strings.TrimSpace(string(body)) != want {
			t.Fatalf("GET %s body=%q want %q", path, body, want)
		}
		if got := res.Header.Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("GET %s missing security headers", path)
		}
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if !strings.Contains(string(body), "libra_session_active") {
		t.Fatalf("metrics output missing session gauge")
	}
}

func TestHandler_ReadinessRequiresDB(t *testing.T) {
	a := testApp(t, Config{RequireArgon2id: true, ReadinessRequireDB: true})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rec.Code)
	}
}

func TestHandler_LoginWithBootstrapAdmin(t *testing.T) {
	a := testApp(t, Config{
		RequireArgon2id:          true,
		BootstrapAdminUsername:   "root",
		BootstrapAdminPassword:   "Adm1n!pass",
		BootstrapAdminMustChange: true,
	})
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	body, _ := json.Marshal(map[string]string{"username": "ROOT", "password": "Adm1n!pass"})
	res, err := http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status=%d", res.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
		User  struct {
			Role               string `json:"role"`
			MustChangePassword bool   `json:"must_change_password"`
		} `json:"user"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Token == "" || out.User.Role != identity.RoleSuperAdmin || !out.User.MustChangePassword {
		t.Fatalf("unexpected login response: %+v", out)
	}
	if a.sessions.Len() != 1 {
		t.Fatalf("sessions=%d want 1", a.sessions.Len())
	}
}
