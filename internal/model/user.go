package model

import "time"

// Role names a user's permission level as stored in users.role.
// ADMIN and MANAGER may administer QR credentials for field devices;
// USER is the default for self-registered accounts.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
)

// Approval states for users.approval_status. Accounts created through
// self-registration start as APPROVED in the current deployment; the
// PENDING/REJECTED states exist for administratively created accounts.
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// User represents an application user record as stored in the `users`
// table. Each field corresponds to a column. The struct is used
// internally by the repository layer; handlers define separate response
// types with JSON tags and never expose PasswordHash.
//
// Lockout invariant: LockedUntil is only ever set when LoginAttempts has
// reached the configured maximum, and a LockedUntil in the past must be
// treated as "unlocked" (and reset) on the next read.
//
// QR fields: QRToken holds the opaque passwordless login secret for field
// devices. A user has at most one active QR token; generating a new one
// overwrites the previous value. QRTokenExpiresAt nil means no expiry.
type User struct {
	ID               uint64     // users.id
	Email            string     // users.email (unique, compared lowercased)
	PasswordHash     string     // users.password_hash (bcrypt)
	Role             string     // users.role (ADMIN|MANAGER|USER)
	AssignedPlant    *string    // users.assigned_plant (nullable)
	ApprovalStatus   string     // users.approval_status (PENDING|APPROVED|REJECTED)
	IsActive         bool       // users.is_active
	LoginAttempts    int        // users.login_attempts (consecutive failures)
	LockedUntil      *time.Time // users.locked_until (nullable)
	LastLoginAttempt *time.Time // users.last_login_attempt (nullable)
	QRToken          *string    // users.qr_token (nullable, unique)
	QRTokenCreatedAt *time.Time // users.qr_token_created_at
	QRTokenExpiresAt *time.Time // users.qr_token_expires_at (nil = no expiry)
	QRTokenLastUsed  *time.Time // users.qr_token_last_used
	CreatedAt        time.Time  // users.created_at
	UpdatedAt        time.Time  // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. Each token
// belongs to a user; one user may hold several live rows (one per
// device/session). The plain token is never stored; only its SHA-256
// hash. Rows are created at login, deleted at logout or when expiry is
// detected at use, and are not rotated on refresh: the same opaque token
// survives until its own expiry.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash (SHA-256 hex)
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}

// Identity is the authenticated projection of a User carried inside
// access-token claims and handed to downstream consumers. It is all a
// collaborator outside the auth core ever sees.
type Identity struct {
	ID            uint64  `json:"id"`
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	AssignedPlant *string `json:"assignedPlant"`
}

// Identity returns the claim projection of u.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role, AssignedPlant: u.AssignedPlant}
}
