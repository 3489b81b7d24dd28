package auth

import (
	"context"
	"time"

	"github.com/iliyamo/plant-maintenance/internal/model"
)

// UserStore is the slice of user persistence the auth services need.
// *repository.UserRepo satisfies it; tests substitute mocks so the
// services run without a live database.
type UserStore interface {
	Create(ctx context.Context, u *model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByQRToken(ctx context.Context, token string) (*model.User, error)
	UpdateLockout(ctx context.Context, userID uint64, attempts int, lockedUntil, lastAttempt *time.Time) error
	SetQRToken(ctx context.Context, userID uint64, token string, createdAt time.Time, expiresAt *time.Time) error
	ClearQRToken(ctx context.Context, userID uint64) error
	TouchQRToken(ctx context.Context, userID uint64, usedAt time.Time) error
}

// TokenStore is the refresh-token persistence required by the
// credential store. *repository.TokenRepo satisfies it.
type TokenStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID uint64) error
}

// Clock abstracts the current time so lockout expiry and token TTLs can
// be tested without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
