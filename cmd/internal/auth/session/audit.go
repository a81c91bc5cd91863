package session

import (
	"context"
	"time"
)

// Audit event kinds emitted by libra.
const (
	EventLogin             = "auth.login.success"
	EventLoginFailed       = "auth.login.failed"
	EventLogout            = "auth.logout"
	EventInvalidateAll     = "auth.sessions.invalidate_all"
	EventPasswordSet       = "auth.password.changed"
	EventPasswordReset     = "auth.password.reset"
	EventPrincipalDisabled = "auth.principal.disabled"
	EventPrincipalEnabled  = "auth.principal.enabled"
)

// AuditEvent is one audit-trail entry.
type AuditEvent struct {
	Kind        string
	PrincipalID int64
	Description string

	// SessionID is the session ULID when the event concerns one session.
	SessionID string
	At        time.Time

	// Meta carries request context (ip, user agent, reason). Never secrets.
	Meta map[string]any
}

// AuditSink persists audit events. The Store never retries a failed Record
// and never lets it change the outcome of the operation that produced it.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// AuditFunc adapts a function to AuditSink.
type AuditFunc func(ctx context.Context, ev AuditEvent) error

func (f AuditFunc) Record(ctx context.Context, ev AuditEvent) error { return f(ctx, ev) }
