package identity

import (
	"context"
	"time"
)

// Roles known to libra. Any other string is allowed; RoleSuperAdmin
// satisfies every role check in the session layer.
const (
	RoleSuperAdmin = "Super Admin"
	RoleAdmin      = "Admin"
	RoleLibrarian  = "Librarian"
)

// Principal is an account that can log in.
// PasswordHash is whatever security/password produced; never a plaintext.
type Principal struct {
	ID                 int64
	Username           string
	Role               string
	PasswordHash       string
	MustChangePassword bool
	Disabled           bool
	CreatedAt          time.Time
	PasswordChangedAt  *time.Time
}

// CreatePrincipalInput describes a new account.
type CreatePrincipalInput struct {
	Username           string
	Role               string
	PasswordHash       string
	MustChangePassword bool
	Now                time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (Principal, error)

	// GetByUsername looks up by normalized username.
	GetByUsername(ctx context.Context, username string) (Principal, error)
	GetByID(ctx context.Context, id int64) (Principal, error)

	// SetPasswordHash replaces the stored hash and the must-change flag.
	SetPasswordHash(ctx context.Context, id int64, hash string, mustChange bool, now time.Time) error

	// SetDisabled blocks or re-enables login for id.
	SetDisabled(ctx context.Context, id int64, disabled bool) error
}

func validateCreate(op string, in CreatePrincipalInput) error {
	if NormalizeUsername(in.Username) == "" {
		return invalid(op, "username is required")
	}
	if in.Role == "" {
		return invalid(op, "role is required")
	}
	if in.PasswordHash == "" {
		return invalid(op, "password hash is required")
	}
	return nil
}
