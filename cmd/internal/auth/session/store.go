package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"libra/cmd/identity/ids"
	"libra/cmd/security/token"
)

const maxTokenDraws = 3

// TokenGenerator mints opaque session tokens.
type TokenGenerator interface {
	Token() (string, error)
}

// Store is the registry of live sessions keyed by token.
// All methods are safe for concurrent use.
type Store struct {
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	tokens  TokenGenerator
	audit   AuditSink
	metrics *Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	auditWG  sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAuditSink sets the sink notified on logout.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Store) { s.audit = sink }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTokenGenerator overrides the token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Store) {
		if g != nil {
			s.tokens = g
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = DefaultConfig().AuditTimeout
	}

	s := &Store{
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
		tokens:   token.NewGenerator(token.DefaultConfig()),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// IdleTimeout returns the configured sliding expiry window.
func (s *Store) IdleTimeout() time.Duration { return s.cfg.IdleTimeout }

// Create sweeps expired sessions, then registers a new session and returns
// its token. It fails when no token can be drawn or the store is shut down.
func (s *Store) Create(principalID int64, username, role string) (string, error) {
	sess, err := s.CreateSession(principalID, username, role)
	if err != nil {
		return "", err
	}
	return sess.token, nil
}

// CreateSession is Create returning the registered session itself.
// It does not count as a lookup.
func (s *Store) CreateSession(principalID int64, username, role string) (*Session, error) {
	now := s.now()
	s.Sweep()

	id, err := ids.New(now)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	for range maxTokenDraws {
		tok, err := s.tokens.Token()
		if err != nil {
			s.log.Error("session.create.token.fail", "principal_id", principalID, "err", err)
			return nil, fmt.Errorf("session token: %w", err)
		}

		sess := newSession(id, tok, principalID, username, role, now)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if _, taken := s.sessions[tok]; taken {
			s.mu.Unlock()
			continue
		}
		s.sessions[tok] = sess
		s.metrics.setActive(len(s.sessions))
		s.mu.Unlock()

		s.metrics.incCreated()
		s.log.Info("session.create",
			"session_id", id,
			"token_fp", token.Fingerprint(tok),
			"principal_id", principalID,
			"role", role,
		)
		return sess, nil
	}

	return nil, ErrTokenCollision
}

// Get returns the live session for tok and extends its lifetime.
// Unknown, empty and expired tokens report false; expired entries are removed.
func (s *Store) Get(tok string) (*Session, bool) {
	if tok == "" {
		s.metrics.incLookup("miss")
		return nil, false
	}

	now := s.now()
	timeout := s.cfg.IdleTimeout

	s.mu.RLock()
	sess, ok := s.sessions[tok]
	if ok && !sess.expired(now, timeout) {
		sess.touch(now)
		s.mu.RUnlock()
		s.metrics.incLookup("hit")
		return sess, true
	}
	s.mu.RUnlock()

	if !ok {
		s.metrics.incLookup("miss")
		return nil, false
	}

	s.mu.Lock()
	if cur, ok := s.sessions[tok]; ok && cur == sess && cur.expired(now, timeout) {
		delete(s.sessions, tok)
		s.metrics.setActive(len(s.sessions))
		s.metrics.addEnded("expired", 1)
		s.log.Debug("session.expired", "session_id", sess.id, "principal_id", sess.principalID)
	}
	s.mu.Unlock()

	s.metrics.incLookup("expired")
	return nil, false
}

// Invalidate removes the session for tok. Unknown tokens are a no-op.
// A removal is reported to the audit sink as a logout.
func (s *Store) Invalidate(tok string) {
	if tok == "" {
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[tok]
	if ok {
		delete(s.sessions, tok)
		s.metrics.setActive(len(s.sessions))
	}
	audit := ok && s.reserveAuditLocked(1)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.ended([]*Session{sess}, audit)
}

// InvalidatePrincipal removes every session of principalID and returns the
// count. Each removal is audited as a logout.
func (s *Store) InvalidatePrincipal(principalID int64) int {
	return s.InvalidateOthers(principalID, "")
}

// InvalidateOthers is InvalidatePrincipal sparing the session for keep.
func (s *Store) InvalidateOthers(principalID int64, keep string) int {
	s.mu.Lock()
	var gone []*Session
	for tok, sess := range s.sessions {
		if sess.principalID != principalID || (keep != "" && tok == keep) {
			continue
		}
		delete(s.sessions, tok)
		gone = append(gone, sess)
	}
	if len(gone) > 0 {
		s.metrics.setActive(len(s.sessions))
	}
	audit := len(gone) > 0 && s.reserveAuditLocked(len(gone))
	s.mu.Unlock()

	s.ended(gone, audit)
	return len(gone)
}

// ended logs and audits sessions already removed from the registry.
// audit is true when deliveries were reserved under s.mu.
func (s *Store) ended(gone []*Session, audit bool) {
	if len(gone) == 0 {
		return
	}
	s.metrics.addEnded("logout", len(gone))

	now := s.now()
	for _, sess := range gone {
		s.log.Info("session.invalidate",
			"session_id", sess.id,
			"token_fp", token.Fingerprint(sess.token),
			"principal_id", sess.principalID,
		)
		if audit {
			go s.deliver(AuditEvent{
				Kind:        EventLogout,
				PrincipalID: sess.principalID,
				SessionID:   sess.id,
				Description: fmt.Sprintf("user %q logged out", sess.username),
				At:          now,
			})
		}
	}
}

// InvalidateAll drops every session and returns how many were live.
// No per-session audit events are emitted.
func (s *Store) InvalidateAll() int {
	s.mu.Lock()
	n := len(s.sessions)
	s.sessions = make(map[string]*Session)
	s.metrics.setActive(0)
	s.mu.Unlock()

	s.metrics.addEnded("reset", n)
	s.log.Warn("session.invalidate_all", "count", n)
	return n
}

// Sweep removes every expired session and returns the count removed.
func (s *Store) Sweep() int {
	now := s.now()
	timeout := s.cfg.IdleTimeout

	s.mu.Lock()
	n := 0
	for tok, sess := range s.sessions {
		if sess.expired(now, timeout) {
			delete(s.sessions, tok)
			n++
		}
	}
	if n > 0 {
		s.metrics.setActive(len(s.sessions))
	}
	s.mu.Unlock()

	if n > 0 {
		s.metrics.addEnded("expired", n)
		s.log.Debug("session.sweep", "removed", n)
	}
	return n
}

// Len returns the number of entries, including expired ones not yet reclaimed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Run sweeps at the configured interval until ctx is done or Shutdown is
// called. It returns immediately when SweepInterval is zero.
func (s *Store) Run(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}

	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// Shutdown stops Run, drops all sessions and waits for in-flight audit
// deliveries until ctx is done. Create fails with ErrClosed afterwards.
func (s *Store) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.InvalidateAll()

	done := make(chan struct{})
	go func() {
		s.auditWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reserveAuditLocked adds n pending deliveries unless the store is closed.
// Callers hold s.mu, so every Add happens before Shutdown starts waiting.
func (s *Store) reserveAuditLocked(n int) bool {
	if s.audit == nil || s.closed {
		return false
	}
	s.auditWG.Add(n)
	return true
}

// deliver sends one reserved event to the sink.
func (s *Store) deliver(ev AuditEvent) {
	defer s.auditWG.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session.audit.panic", "kind", ev.Kind, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AuditTimeout)
	defer cancel()

	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Warn("session.audit.fail", "kind", ev.Kind, "session_id", ev.SessionID, "err", err)
	}
}
