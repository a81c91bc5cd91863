package identity

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libra/cmd/identity/ids"
)

// Integration tests are opt-in and require LIBRA_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreatePrincipal_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s := mustPostgresStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.CreatePrincipal(ctx, CreatePrincipalInput{
		Username:     "Navid",
		Role:         RoleAdmin,
		PasswordHash: "hash-1",
		Now:          time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create principal 1: %v", err)
	}

	_, err := s.CreatePrincipal(ctx, CreatePrincipalInput{
		Username:     "nAvId",
		Role:         RoleAdmin,
		PasswordHash: "hash-2",
		Now:          time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_LookupAndUpdate(t *testing.T) {
	t.Parallel()

	s := mustPostgresStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := s.CreatePrincipal(ctx, CreatePrincipalInput{
		Username:           "Librarian-One",
		Role:               RoleLibrarian,
		PasswordHash:       "hash-a",
		MustChangePassword: true,
		Now:                time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create principal: %v", err)
	}
	if p.ID <= 0 {
		t.Fatalf("expected positive id, got %d", p.ID)
	}

	got, err := s.GetByUsername(ctx, "librarian-one")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != p.ID || got.Username != "Librarian-One" || !got.MustChangePassword {
		t.Fatalf("unexpected principal: %+v", got)
	}

	now := time.Now().UTC()
	if err := s.SetPasswordHash(ctx, p.ID, "hash-b", false, now); err != nil {
		t.Fatalf("set password hash: %v", err)
	}
	if err := s.SetDisabled(ctx, p.ID, true); err != nil {
		t.Fatalf("set disabled: %v", err)
	}

	got, err = s.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.PasswordHash != "hash-b" || got.MustChangePassword || !got.Disabled {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.PasswordChangedAt == nil {
		t.Fatalf("expected password_changed_at to be set")
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	t.Parallel()

	s := mustPostgresStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.GetByUsername(ctx, "nobody"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SetPasswordHash(ctx, 999999, "h", false, time.Now()); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWithSchema_RejectsInvalidIdentifier(t *testing.T) {
	t.Parallel()

	st := &PostgresStore{}
	if err := WithSchema(`bad"schema`)(st); err == nil {
		t.Fatalf("expected error for invalid identifier")
	}
	if err := WithSchema("  ")(st); err == nil {
		t.Fatalf("expected error for empty schema")
	}
	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func mustPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	schema := "libra_it_" + strings.ToLower(mustNewULIDLike(t))
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("LIBRA_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: LIBRA_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse LIBRA_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (LIBRA_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := ids.New(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
