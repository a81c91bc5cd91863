package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps principals in process memory.
// Intended for development and tests; contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Principal
	byName map[string]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]Principal),
		byName: make(map[string]int64),
	}
}

// CreatePrincipal assigns the next ID and stores the principal.
func (s *MemoryStore) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error) {
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
	norm := NormalizeUsername(in.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[norm]; taken {
		return Principal{}, ConflictError{Op: op, Field: "username"}
	}

	s.nextID++
	p := Principal{
		ID:                 s.nextID,
		Username:           strings.TrimSpace(in.Username),
		Role:               in.Role,
		PasswordHash:       in.PasswordHash,
		MustChangePassword: in.MustChangePassword,
		CreatedAt:          now,
	}
	s.byID[p.ID] = p
	s.byName[norm] = p.ID
	return p, nil
}

// GetByUsername returns the principal whose normalized username matches.
func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Principal, error) {
	const op = "identity.GetByUsername"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	norm := NormalizeUsername(username)
	if norm == "" {
		return Principal{}, invalid(op, "username is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[norm]
	if !ok {
		return Principal{}, notFound(op)
	}
	return s.byID[id], nil
}

// GetByID returns the principal with the given ID.
func (s *MemoryStore) GetByID(ctx context.Context, id int64) (Principal, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return Principal{}, notFound(op)
	}
	return p, nil
}

// SetPasswordHash replaces the hash and must-change flag for id.
func (s *MemoryStore) SetPasswordHash(ctx context.Context, id int64, hash string, mustChange bool, now time.Time) error {
	const op = "identity.SetPasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return invalid(op, "password hash is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	p.PasswordHash = hash
	p.MustChangePassword = mustChange
	p.PasswordChangedAt = &now
	s.byID[id] = p
	return nil
}

// SetDisabled toggles the disabled flag for id.
func (s *MemoryStore) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	const op = "identity.SetDisabled"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return notFound(op)
	}
	p.Disabled = disabled
	s.byID[id] = p
	return nil
}
