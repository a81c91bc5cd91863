package audit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"libra/cmd/identity/ids"
	"libra/cmd/internal/auth/session"
)

// Opt-in: requires LIBRA_DATABASE_URL.
func TestPostgresSink_Record(t *testing.T) {
	raw := strings.TrimSpace(os.Getenv("LIBRA_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: LIBRA_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	id, err := ids.New(time.Now())
	require.NoError(t, err)
	schema := "libra_it_" + strings.ToLower(id)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	sink, err := NewPostgresSink(pool, schema)
	require.NoError(t, err)
	require.NoError(t, sink.EnsureSchema(ctx))

	require.NoError(t, sink.Record(ctx, session.AuditEvent{
		Kind:        session.EventLogout,
		PrincipalID: 3,
		SessionID:   id,
		Description: "user \"bob\" logged out",
		At:          time.Now().UTC(),
		Meta:        map[string]any{"ip": "127.0.0.1"},
	}))
	require.NoError(t, sink.Record(ctx, session.AuditEvent{Kind: session.EventInvalidateAll}))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM `+pgx.Identifier{schema, "audit_log"}.Sanitize()).Scan(&n))
	require.Equal(t, 2, n)

	var kind, desc string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT kind, description FROM `+pgx.Identifier{schema, "audit_log"}.Sanitize()+` WHERE principal_id = 3`,
	).Scan(&kind, &desc))
	require.Equal(t, session.EventLogout, kind)
	require.Contains(t, desc, "bob")
}
