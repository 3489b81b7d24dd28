// Package auth implements the authentication core: access-token issuing
// and verification, the brute-force lockout state machine, QR device
// credentials and the credential store that orchestrates login, refresh
// and logout against the persisted user and refresh-token records.
package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the auth services. Handlers translate
// them into HTTP responses; the wording of the credential errors is
// deliberately generic so that account existence never leaks, while the
// account-state errors (locked, pending, rejected, deactivated) are
// deliberately explicit.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked due to repeated failed logins")
	ErrAccountPending     = errors.New("account pending administrator approval")
	ErrAccountRejected    = errors.New("account registration rejected")
	ErrAccountInactive    = errors.New("account deactivated")

	// ErrInvalidToken covers malformed tokens and bad signatures;
	// ErrTokenExpired covers structurally valid tokens past their
	// expiry. The two are distinguishable internally but both surface
	// as "invalid or expired token" to unauthenticated callers.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenExpired = errors.New("token expired")
)

// AttemptsWarning is the graduated variant of ErrInvalidCredentials
// returned when the account is close to being locked (three or fewer
// attempts remaining). It matches ErrInvalidCredentials under errors.Is
// so handlers keep a single 401 branch.
type AttemptsWarning struct {
	Remaining int
}

func (e *AttemptsWarning) Error() string {
	return fmt.Sprintf("invalid email or password; %d attempt(s) remaining before account lockout", e.Remaining)
}

func (e *AttemptsWarning) Is(target error) bool {
	return target == ErrInvalidCredentials
}
