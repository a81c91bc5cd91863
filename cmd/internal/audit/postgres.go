package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"libra/cmd/identity/ids"
	"libra/cmd/internal/auth/session"
)

var schemaRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSink appends events to <schema>.audit_log.
// The pool is owned by the caller.
type PostgresSink struct {
	pool  *pgxpool.Pool
	table string
	ns    string
}

// NewPostgresSink returns a sink writing to schema.audit_log.
func NewPostgresSink(pool *pgxpool.Pool, schema string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if !schemaRe.MatchString(schema) {
		return nil, fmt.Errorf("audit: invalid schema identifier")
	}
	return &PostgresSink{
		pool:  pool,
		ns:    pgx.Identifier{schema}.Sanitize(),
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
	}, nil
}

// EnsureSchema creates the schema and audit_log table if missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+s.ns+`;

CREATE TABLE IF NOT EXISTS `+s.table+` (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  principal_id BIGINT NULL,
  session_id TEXT NULL,
  description TEXT NOT NULL DEFAULT '',
  meta JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_audit_log_id_ulid_len CHECK (char_length(id) = 26)
);`)
	return err
}

func (s *PostgresSink) Record(ctx context.Context, ev session.AuditEvent) error {
	kind := strings.TrimSpace(ev.Kind)
	if kind == "" {
		return fmt.Errorf("audit: empty kind")
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	id, err := ids.New(at)
	if err != nil {
		return err
	}

	var principalID any
	if ev.PrincipalID != 0 {
		principalID = ev.PrincipalID
	}

	var sessionID any
	if ev.SessionID != "" {
		sessionID = ev.SessionID
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			m := string(b)
			metaVal = &m
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, kind, principal_id, session_id, description, meta, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, id, kind, principalID, sessionID, ev.Description, metaVal, at)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", kind, err)
	}
	return nil
}
