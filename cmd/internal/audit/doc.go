// Package audit provides session.AuditSink implementations: a structured-log
// sink, a PostgreSQL sink writing to audit_log, and a fan-out combinator.
package audit
