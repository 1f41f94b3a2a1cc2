package models

import "time"

// AuditAction names an authentication event.
type AuditAction string

const (
	ActionLoginSuccess AuditAction = "LoginSuccess"
	ActionLoginFailed  AuditAction = "LoginFailed"
	ActionRefresh      AuditAction = "Refresh"
	ActionLogout       AuditAction = "Logout"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionLoginSuccess, ActionLoginFailed, ActionRefresh, ActionLogout:
		return true
	}
	return false
}

// AuditLogEntry is an append-only record of an authentication event.
// UserID is nil for failed attempts that could not be tied to a principal.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	UserID    *string     `json:"user_id,omitempty"`
	Email     string      `json:"email"`
	IPAddress string      `json:"ip_address"`
	UserAgent string      `json:"user_agent"`
	Action    AuditAction `json:"action"`
	CreatedAt time.Time   `json:"created_at"`
}
