package api

import "time"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type passwordResetRequest struct {
	UserID int64 `json:"user_id"`
}

type principalResponse struct {
	ID                 int64  `json:"id"`
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

type loginResponse struct {
	Token              string            `json:"token"`
	SessionID          string            `json:"session_id"`
	IdleTimeoutSeconds int64             `json:"idle_timeout_seconds"`
	User               principalResponse `json:"user"`
}

type meResponse struct {
	User       principalResponse `json:"user"`
	SessionID  string            `json:"session_id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastAccess time.Time         `json:"last_access"`
}

type passwordResetResponse struct {
	UserID            int64  `json:"user_id"`
	TemporaryPassword string `json:"temporary_password"`
	SessionsRevoked   int    `json:"sessions_revoked"`
}

type disableRequest struct {
	UserID   int64 `json:"user_id"`
	Disabled bool  `json:"disabled"`
}

type disableResponse struct {
	UserID          int64 `json:"user_id"`
	Disabled        bool  `json:"disabled"`
	SessionsRevoked int   `json:"sessions_revoked"`
}

type invalidateAllResponse struct {
	Invalidated int `json:"invalidated"`
}

type keepaliveMessage struct {
	Type               string    `json:"type"`
	LastAccess         time.Time `json:"last_access"`
	IdleTimeoutSeconds int64     `json:"idle_timeout_seconds"`
}
