// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the auth core.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionQRLogin  = "qr_login"
	ActionRefresh  = "refresh"
	ActionLogout   = "logout"
)

// AuthEvent is published for every security-relevant branch of the auth
// core, success or failure, before the HTTP response is written. It
// carries enough for downstream consumers to build an audit trail
// without querying the primary database.
type AuthEvent struct {
	EventID string `json:"event_id"`
	Action  string `json:"action"`
	Email   string `json:"email,omitempty"`
	UserID  uint64 `json:"user_id,omitempty"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	IP      string `json:"ip,omitempty"`
	At      string `json:"at"`
}

// NewAuthEvent stamps a fresh event with a unique ID and the current
// UTC time in RFC 3339 form.
func NewAuthEvent(action, email string, userID uint64, success bool, reason, ip string) AuthEvent {
	return AuthEvent{
		EventID: uuid.NewString(),
		Action:  action,
		Email:   email,
		UserID:  userID,
		Success: success,
		Reason:  reason,
		IP:      ip,
		At:      time.Now().UTC().Format(time.RFC3339),
	}
}
