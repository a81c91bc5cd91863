package audit

import (
	"context"
	"errors"
	"log/slog"

	"libra/cmd/internal/auth/session"
)

// LogSink writes each event as one structured log record.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a LogSink writing to log (slog.Default when nil).
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, ev session.AuditEvent) error {
	attrs := []slog.Attr{
		slog.String("kind", ev.Kind),
		slog.Int64("principal_id", ev.PrincipalID),
		slog.String("description", ev.Description),
		slog.Time("at", ev.At),
	}
	if ev.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ev.SessionID))
	}
	if len(ev.Meta) > 0 {
		attrs = append(attrs, slog.Any("meta", ev.Meta))
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "audit.event", attrs...)
	return nil
}

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []session.AuditSink

func (m Multi) Record(ctx context.Context, ev session.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
