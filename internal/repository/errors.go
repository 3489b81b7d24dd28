// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth services and handlers to distinguish failure scenarios without
// depending on driver-specific errors.
package repository

import "errors"

// ErrUserNotFound is returned when no users row matches the lookup key
// (id, email or QR token). The auth layer translates it into the generic
// "invalid credentials" response so account existence never leaks.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when an insert collides with the unique
// index on users.email. Handlers translate it into a 400 response.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenNotFound is returned when no refresh_tokens row matches the
// presented token hash. Handlers translate it into a 401 response.
var ErrTokenNotFound = errors.New("refresh token not found")
