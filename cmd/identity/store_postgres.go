package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema/table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "libra"

// WithSchema sets the Postgres schema (default "libra").
// The schema name must be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Schema returns the configured schema name.
func (s *PostgresStore) Schema() string { return s.schema }

// EnsureSchema creates the schema and principals table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	principals := pgIdent(s.schema, "principals")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  must_change_password BOOLEAN NOT NULL DEFAULT false,
  disabled BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  password_changed_at TIMESTAMPTZ NULL,

  CONSTRAINT uq_principals_username_norm UNIQUE (username_norm)
);`, pgx.Identifier{s.schema}.Sanitize(), principals)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

const principalColumns = `id, username, role, password_hash, must_change_password, disabled, created_at, password_changed_at`

// CreatePrincipal inserts a principal and returns it with its assigned ID.
func (s *PostgresStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
	const op = "identity.CreatePrincipal"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	if err := validateCreate(op, in); err != nil {
		return Principal{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	principals := pgIdent(s.schema, "principals")

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+principals+` (
		     username, username_norm, role, password_hash, must_change_password, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+principalColumns,
		strings.TrimSpace(in.Username),
		NormalizeUsername(in.Username),
		in.Role,
		in.PasswordHash,
		in.MustChangePassword,
		now,
	)

	p, err := scanPrincipal(row)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Principal{}, ConflictError{Op: op, Field: "username"}
		}
		return Principal{}, err
	}
	return p, nil
}

// GetByUsername looks up a principal by normalized username.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Principal, error) {
	const op = "identity.GetByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return Principal{}, invalid(op, "username is required")
	}

	principals := pgIdent(s.schema, "principals")

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+principals+` WHERE username_norm = $1`,
		norm,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, notFound(op)
		}
		return Principal{}, err
	}
	return p, nil
}

// GetByID looks up a principal by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (Principal, error) {
	const op = "identity.GetByID"

	principals := pgIdent(s.schema, "principals")

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+principals+` WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, notFound(op)
		}
		return Principal{}, err
	}
	return p, nil
}

// SetPasswordHash replaces the stored hash and must-change flag.
func (s *PostgresStore) SetPasswordHash(ctx context.Context, id int64, hash string, mustChange bool, now time.Time) error {
	const op = "identity.SetPasswordHash"

	if hash == "" {
		return invalid(op, "password hash is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	principals := pgIdent(s.schema, "principals")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+principals+`
		    SET password_hash = $2,
		        must_change_password = $3,
		        password_changed_at = $4
		  WHERE id = $1`,
		id, hash, mustChange, now,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// SetDisabled blocks or re-enables login for id.
func (s *PostgresStore) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	const op = "identity.SetDisabled"

	principals := pgIdent(s.schema, "principals")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+principals+` SET disabled = $2 WHERE id = $1`,
		id, disabled,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Role,
		&p.PasswordHash,
		&p.MustChangePassword,
		&p.Disabled,
		&p.CreatedAt,
		&p.PasswordChangedAt,
	)
	return p, err
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
