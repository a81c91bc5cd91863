package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"libra/cmd/identity"
	"libra/cmd/internal/auth/session"
	"libra/cmd/security/password"
	"libra/cmd/security/token"
)

// Session attribute keys set by the API.
const (
	attrMustChangePassword = "must_change_password"
	attrClientIP           = "client_ip"
)

// TemporaryPasswordGenerator mints one-time passwords for admin resets.
type TemporaryPasswordGenerator interface {
	TemporaryPassword() (string, error)
}

// Handler wires HTTP auth endpoints to the credential store and session registry.
type Handler struct {
	log *slog.Logger
	cfg Config
	now func() time.Time

	principals identity.Store
	sessions   *session.Store
	passwords  password.Config
	temp       TemporaryPasswordGenerator
	audit      session.AuditSink
	metrics    *Metrics

	limiter *ipLimiter

	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithPasswordConfig overrides password.DefaultConfig.
func WithPasswordConfig(c password.Config) HandlerOption {
	return func(h *Handler) { h.passwords = c }
}

// WithTemporaryPasswords overrides the temporary password source.
func WithTemporaryPasswords(g TemporaryPasswordGenerator) HandlerOption {
	return func(h *Handler) {
		if g != nil {
			h.temp = g
		}
	}
}

// WithAuditSink sets the sink for login and password events.
func WithAuditSink(sink session.AuditSink) HandlerOption {
	return func(h *Handler) { h.audit = sink }
}

// WithRegisterer registers auth API metrics with reg.
func WithRegisterer(reg prometheus.Registerer) HandlerOption {
	return func(h *Handler) { h.metrics = NewMetrics(reg) }
}

// WithClock overrides time.Now for rate limiting and audit timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, principals identity.Store, sessions *session.Store, opts ...HandlerOption) (*Handler, error) {
	if principals == nil {
		return nil, errors.New("auth: nil principal store")
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session store")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:        log,
		cfg:        cfg,
		now:        time.Now,
		principals: principals,
		sessions:   sessions,
		passwords:  password.DefaultConfig(),
		temp:       token.NewGenerator(token.DefaultConfig()),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	h.limiter = newIPLimiter(cfg.LoginRate, cfg.LoginBurst, cfg.LoginLimiterTTL)

	// Dummy hash for timing-resistant login checks.
	if hash, err := h.passwords.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/password", h.handlePasswordChange)
	mux.HandleFunc("/auth/ws", h.handleKeepalive)
	mux.HandleFunc("/me", h.handleMe)
	mux.HandleFunc("/admin/password_reset", h.handlePasswordReset)
	mux.HandleFunc("/admin/principals/disable", h.handleDisable)
	mux.HandleFunc("/admin/sessions/invalidate_all", h.handleInvalidateAll)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)
	meta := requestMeta(r, ip, username)

	if ok, retryAfter := h.limiter.allow(ip, now); !ok {
		h.metrics.login("rate_limited")
		h.record(ctx, session.AuditEvent{
			Kind:        session.EventLoginFailed,
			Description: fmt.Sprintf("login for %q rate limited", username),
			At:          now,
			Meta:        withReason(meta, "rate_limited"),
		})
		writeRateLimited(w, retryAfter)
		return
	}

	p, err := h.principals.GetByUsername(ctx, username)
	if err != nil {
		if !identity.IsNotFound(err) && !identity.IsInvalidInput(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		// Timing resistance: perform a dummy verify when user is missing.
		if h.dummyHash != "" {
			_ = h.passwords.Verify(req.Password, h.dummyHash)
		}
		h.loginFailed(ctx, 0, username, now, meta, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	if !h.passwords.Verify(req.Password, p.PasswordHash) {
		h.loginFailed(ctx, p.ID, username, now, meta, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if p.Disabled {
		h.loginFailed(ctx, p.ID, username, now, meta, "disabled")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	if h.passwords.NeedsRehash(p.PasswordHash) {
		h.rehash(ctx, p, req.Password, now)
	}

	sess, err := h.sessions.CreateSession(p.ID, p.Username, p.Role)
	if err != nil {
		h.metrics.login("error")
		h.log.Error("auth.login.session.fail", "principal_id", p.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if ip != "" {
		sess.SetAttribute(attrClientIP, ip)
	}
	if p.MustChangePassword {
		sess.SetAttribute(attrMustChangePassword, true)
	}

	h.metrics.login("success")
	h.record(ctx, session.AuditEvent{
		Kind:        session.EventLogin,
		PrincipalID: p.ID,
		SessionID:   sess.ID(),
		Description: fmt.Sprintf("user %q logged in", p.Username),
		At:          now,
		Meta:        meta,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:              sess.Token(),
		SessionID:          sess.ID(),
		IdleTimeoutSeconds: int64(h.sessions.IdleTimeout().Seconds()),
		User:               toPrincipalResponse(p),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	// The store audits the logout itself.
	h.sessions.Invalidate(sess.Token())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	p, err := h.principals.GetByID(r.Context(), sess.PrincipalID())
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Role and username come from the session: they are fixed at login.
	resp := toPrincipalResponse(p)
	resp.Username = sess.Username()
	resp.Role = sess.Role()

	writeJSON(w, http.StatusOK, meResponse{
		User:       resp,
		SessionID:  sess.ID(),
		CreatedAt:  sess.CreatedAt(),
		LastAccess: sess.LastAccess(),
	})
}

func (h *Handler) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req passwordChangeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := h.now()

	p, err := h.principals.GetByID(ctx, sess.PrincipalID())
	if err != nil {
		h.log.Error("auth.password.lookup.fail", "principal_id", sess.PrincipalID(), "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if !h.passwords.Verify(req.CurrentPassword, p.PasswordHash) {
		h.metrics.password("change", "bad_current")
		writeError(w, http.StatusForbidden, "invalid_credentials", "current password is incorrect")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		h.metrics.password("change", "rejected")
		writeError(w, http.StatusBadRequest, "password_reused", "new password must differ from the current one")
		return
	}
	if err := h.passwords.Validate(req.NewPassword); err != nil {
		h.metrics.password("change", "rejected")
		writePolicyError(w, err)
		return
	}

	hash, err := h.passwords.Hash(req.NewPassword)
	if err != nil {
		h.metrics.password("change", "error")
		h.log.Error("auth.password.hash.fail", "principal_id", p.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if err := h.principals.SetPasswordHash(ctx, p.ID, hash, false, now); err != nil {
		h.metrics.password("change", "error")
		h.log.Error("auth.password.store.fail", "principal_id", p.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	sess.RemoveAttribute(attrMustChangePassword)
	revoked := h.sessions.InvalidateOthers(p.ID, sess.Token())

	h.metrics.password("change", "success")
	h.record(ctx, session.AuditEvent{
		Kind:        session.EventPasswordSet,
		PrincipalID: p.ID,
		SessionID:   sess.ID(),
		Description: fmt.Sprintf("user %q changed password", p.Username),
		At:          now,
		Meta:        map[string]any{"sessions_revoked": revoked},
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	admin, ok := h.requireRole(w, r, identity.RoleAdmin)
	if !ok {
		return
	}

	var req passwordResetRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	ctx := r.Context()
	now := h.now()

	target, err := h.principals.GetByID(ctx, req.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.password_reset.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if !canManage(admin, target) {
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return
	}

	temp, err := h.temp.TemporaryPassword()
	if err != nil {
		h.metrics.password("reset", "error")
		h.log.Error("auth.password_reset.generate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	hash, err := h.passwords.Hash(temp)
	if err != nil {
		h.metrics.password("reset", "error")
		h.log.Error("auth.password_reset.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if err := h.principals.SetPasswordHash(ctx, target.ID, hash, true, now); err != nil {
		h.metrics.password("reset", "error")
		h.log.Error("auth.password_reset.store.fail", "principal_id", target.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	// Sessions opened with the old credential must not outlive it.
	revoked := h.sessions.InvalidatePrincipal(target.ID)

	h.metrics.password("reset", "success")
	h.record(ctx, session.AuditEvent{
		Kind:        session.EventPasswordReset,
		PrincipalID: target.ID,
		SessionID:   admin.ID(),
		Description: fmt.Sprintf("password for %q reset by %q", target.Username, admin.Username()),
		At:          now,
		Meta:        map[string]any{"admin_id": admin.PrincipalID(), "sessions_revoked": revoked},
	})

	writeJSON(w, http.StatusOK, passwordResetResponse{
		UserID:            target.ID,
		TemporaryPassword: temp,
		SessionsRevoked:   revoked,
	})
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	admin, ok := h.requireRole(w, r, identity.RoleAdmin)
	if !ok {
		return
	}

	var req disableRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if req.UserID == admin.PrincipalID() {
		writeError(w, http.StatusBadRequest, "invalid_request", "cannot change own account state")
		return
	}

	ctx := r.Context()

	target, err := h.principals.GetByID(ctx, req.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.disable.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	if !canManage(admin, target) {
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return
	}

	if err := h.principals.SetDisabled(ctx, target.ID, req.Disabled); err != nil {
		h.log.Error("auth.disable.store.fail", "principal_id", target.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	kind := session.EventPrincipalEnabled
	revoked := 0
	if req.Disabled {
		kind = session.EventPrincipalDisabled
		revoked = h.sessions.InvalidatePrincipal(target.ID)
	}

	h.record(ctx, session.AuditEvent{
		Kind:        kind,
		PrincipalID: target.ID,
		SessionID:   admin.ID(),
		Description: fmt.Sprintf("account %q disabled=%t by %q", target.Username, req.Disabled, admin.Username()),
		At:          h.now(),
		Meta:        map[string]any{"admin_id": admin.PrincipalID(), "sessions_revoked": revoked},
	})

	writeJSON(w, http.StatusOK, disableResponse{
		UserID:          target.ID,
		Disabled:        req.Disabled,
		SessionsRevoked: revoked,
	})
}

// canManage reports whether admin may act on target's credentials.
// Only a Super Admin may manage another Super Admin.
func canManage(admin *session.Session, target identity.Principal) bool {
	return target.Role != session.RoleSuperAdmin || admin.Role() == session.RoleSuperAdmin
}

func (h *Handler) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	admin, ok := h.requireRole(w, r, identity.RoleAdmin)
	if !ok {
		return
	}

	n := h.sessions.InvalidateAll()

	h.record(r.Context(), session.AuditEvent{
		Kind:        session.EventInvalidateAll,
		PrincipalID: admin.PrincipalID(),
		Description: fmt.Sprintf("%d sessions invalidated by %q", n, admin.Username()),
		At:          h.now(),
		Meta:        map[string]any{"count": n},
	})

	writeJSON(w, http.StatusOK, invalidateAllResponse{Invalidated: n})
}

// ---- helpers ----

func (h *Handler) loginFailed(ctx context.Context, principalID int64, username string, now time.Time, meta map[string]any, reason string) {
	h.metrics.login(reason)
	h.record(ctx, session.AuditEvent{
		Kind:        session.EventLoginFailed,
		PrincipalID: principalID,
		Description: fmt.Sprintf("login for %q failed", username),
		At:          now,
		Meta:        withReason(meta, reason),
	})
}

// rehash upgrades a legacy or outdated hash after a successful verify.
// Failure leaves the old hash in place.
func (h *Handler) rehash(ctx context.Context, p identity.Principal, plain string, now time.Time) {
	hash, err := h.passwords.Hash(plain)
	if err != nil {
		h.log.Warn("auth.login.rehash.fail", "principal_id", p.ID, "err", err)
		return
	}
	if err := h.principals.SetPasswordHash(ctx, p.ID, hash, p.MustChangePassword, now); err != nil {
		h.log.Warn("auth.login.rehash.store.fail", "principal_id", p.ID, "err", err)
		return
	}
	h.log.Info("auth.login.rehash", "principal_id", p.ID)
}

// record writes ev synchronously under AuditTimeout. Failures are logged only.
func (h *Handler) record(ctx context.Context, ev session.AuditEvent) {
	if h.audit == nil {
		return
	}
	timeout := h.cfg.AuditTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().AuditTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := h.audit.Record(ctx, ev); err != nil {
		h.log.Warn("auth.audit.fail", "kind", ev.Kind, "err", err)
	}
}

func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	sess, ok := h.sessions.Get(tok)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return nil, false
	}
	return sess, true
}

// requireRole admits the role itself or a Super Admin. A session whose
// password must be changed is refused.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role string) (*session.Session, bool) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return nil, false
	}
	if !sess.HasRole(role) {
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return nil, false
	}
	if v, ok := sess.Attribute(attrMustChangePassword); ok && v == true {
		writeError(w, http.StatusForbidden, "password_change_required", "change your password first")
		return nil, false
	}
	return sess, true
}

func writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "password_too_short", "password is too short")
	case errors.Is(err, password.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "password_too_long", "password is too long")
	default:
		writeError(w, http.StatusBadRequest, "weak_password", "password needs upper, lower, digit and symbol characters")
	}
}

func toPrincipalResponse(p identity.Principal) principalResponse {
	return principalResponse{
		ID:                 p.ID,
		Username:           p.Username,
		Role:               p.Role,
		MustChangePassword: p.MustChangePassword,
	}
}

func requestMeta(r *http.Request, ip, username string) map[string]any {
	meta := map[string]any{"username": username}
	if ip != "" {
		meta["ip"] = ip
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		meta["user_agent"] = ua
	}
	return meta
}

func withReason(meta map[string]any, reason string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["reason"] = reason
	return out
}
