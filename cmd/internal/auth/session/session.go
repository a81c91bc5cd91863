package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// RoleSuperAdmin satisfies every role check.
const RoleSuperAdmin = "Super Admin"

// Session is one authenticated principal. Identity fields are fixed at
// creation; lastAccess only moves forward.
type Session struct {
	id          string
	token       string
	principalID int64
	username    string
	role        string
	createdAt   time.Time

	// unix nanoseconds
	lastAccess atomic.Int64

	mu    sync.Mutex
	attrs map[string]any
}

func newSession(id, token string, principalID int64, username, role string, now time.Time) *Session {
	s := &Session{
		id:          id,
		token:       token,
		principalID: principalID,
		username:    username,
		role:        role,
		createdAt:   now,
	}
	s.lastAccess.Store(now.UnixNano())
	return s
}

// ID is a loggable ULID for the session. It is not a credential.
func (s *Session) ID() string { return s.id }

// Token is the opaque key the caller presents.
func (s *Session) Token() string { return s.token }

func (s *Session) PrincipalID() int64   { return s.principalID }
func (s *Session) Username() string     { return s.username }
func (s *Session) Role() string         { return s.role }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns the time of the most recent successful lookup.
func (s *Session) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// HasRole reports whether the session's role is required or RoleSuperAdmin.
func (s *Session) HasRole(required string) bool {
	return s.role == required || s.role == RoleSuperAdmin
}

// Attribute returns the value stored under key.
func (s *Session) Attribute(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// SetAttribute stores value under key, replacing any previous value.
func (s *Session) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
}

// RemoveAttribute deletes key. Removing a missing key is a no-op.
func (s *Session) RemoveAttribute(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// Attributes returns a copy of all attributes.
func (s *Session) Attributes() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// touch advances lastAccess to now unless it is already later.
func (s *Session) touch(now time.Time) {
	n := now.UnixNano()
	for {
		cur := s.lastAccess.Load()
		if n <= cur {
			return
		}
		if s.lastAccess.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.UnixNano()-s.lastAccess.Load() > int64(timeout)
}
