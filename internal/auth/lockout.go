package auth

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/plant-maintenance/internal/repository"
)

// LockoutGuard is the per-account failed-attempt state machine. An
// account is OPEN while login_attempts is below the maximum and LOCKED
// once RecordFailedAttempt pushes the count to the maximum, at which
// point locked_until is set to now plus the lock duration. The
// LOCKED to OPEN transition is implicit and lazy: IsLocked compares
// locked_until against the current time and, when the lock has elapsed,
// fully resets the counters as a side effect before reporting unlocked.
//
// The increment in RecordFailedAttempt is a read-modify-write, not an
// atomic update: concurrent failures against one account in a tight
// window can under-count. Accepted at expected request rates.
type LockoutGuard struct {
	users        UserStore
	maxAttempts  int
	lockDuration time.Duration
	clock        Clock
}

func NewLockoutGuard(users UserStore, maxAttempts int, lockDuration time.Duration, clock Clock) *LockoutGuard {
	return &LockoutGuard{users: users, maxAttempts: maxAttempts, lockDuration: lockDuration, clock: clock}
}

// IsLocked reports whether the account is currently locked. A lock that
// has expired is cleared here (attempts back to zero, locked_until to
// NULL) so no separate unlock sweep is needed. Unknown emails are never
// locked.
func (g *LockoutGuard) IsLocked(ctx context.Context, email string) (bool, error) {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if u.LockedUntil == nil {
		return false, nil
	}
	if g.clock.Now().Before(*u.LockedUntil) {
		return true, nil
	}
	// Lock elapsed: full reset before reporting unlocked.
	if err := g.users.UpdateLockout(ctx, u.ID, 0, nil, u.LastLoginAttempt); err != nil {
		return false, err
	}
	return false, nil
}

// RecordFailedAttempt increments the failure counter for the attempted
// email and flips the account to LOCKED exactly when the post-increment
// count reaches the maximum. Attempts against unknown emails are a
// silent no-op so lookup timing reveals nothing.
func (g *LockoutGuard) RecordFailedAttempt(ctx context.Context, email string) error {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	now := g.clock.Now()
	attempts := u.LoginAttempts + 1
	var lockedUntil *time.Time
	if attempts >= g.maxAttempts {
		t := now.Add(g.lockDuration)
		lockedUntil = &t
	}
	return g.users.UpdateLockout(ctx, u.ID, attempts, lockedUntil, &now)
}

// ResetAttempts clears the failure counter after a successful login.
// Idempotent: resetting an already clean account changes nothing.
func (g *LockoutGuard) ResetAttempts(ctx context.Context, email string) error {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	now := g.clock.Now()
	return g.users.UpdateLockout(ctx, u.ID, 0, nil, &now)
}

// RemainingAttempts returns how many failures are left before the
// account locks, never below zero. Unknown emails report the full
// allowance.
func (g *LockoutGuard) RemainingAttempts(ctx context.Context, email string) (int, error) {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return g.maxAttempts, nil
		}
		return 0, err
	}
	remaining := g.maxAttempts - u.LoginAttempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// UnlockAccount is the administrative override. Same effect as a
// natural lock expiry observed by IsLocked.
func (g *LockoutGuard) UnlockAccount(ctx context.Context, email string) error {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return g.users.UpdateLockout(ctx, u.ID, 0, nil, u.LastLoginAttempt)
}
