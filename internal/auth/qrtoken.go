package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/iliyamo/plant-maintenance/internal/model"
	"github.com/iliyamo/plant-maintenance/internal/repository"
)

// QRTokenService issues and validates the persistent passwordless
// tokens that field devices present via QR code. A user holds at most
// one active QR token; generating a new one overwrites the previous
// value, and the token is reusable until revoked or expired (it is not
// one-time-use).
type QRTokenService struct {
	users UserStore
	clock Clock
}

func NewQRTokenService(users UserStore, clock Clock) *QRTokenService {
	return &QRTokenService{users: users, clock: clock}
}

// Generate creates a fresh 32-byte URL-safe token for the user and
// stores it as the single active QR credential. No expiry is set here;
// qr_token_expires_at stays NULL unless set administratively.
func (s *QRTokenService) Generate(ctx context.Context, userID uint64) (string, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.users.SetQRToken(ctx, userID, token, s.clock.Now(), nil); err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves a presented QR token to its owner. Unknown tokens
// yield ErrInvalidToken, inactive or unapproved owners yield
// ErrAccountInactive, expired tokens yield ErrTokenExpired. On success
// qr_token_last_used is stamped and the owner is returned; the caller
// then runs the same token-issuance step as a password login.
func (s *QRTokenService) Validate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetByQRToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive || u.ApprovalStatus != model.ApprovalApproved {
		return nil, ErrAccountInactive
	}
	now := s.clock.Now()
	if u.QRTokenExpiresAt != nil && now.After(*u.QRTokenExpiresAt) {
		return nil, ErrTokenExpired
	}
	if err := s.users.TouchQRToken(ctx, u.ID, now); err != nil {
		return nil, err
	}
	return u, nil
}

// Revoke clears the QR credential and its bookkeeping columns.
func (s *QRTokenService) Revoke(ctx context.Context, userID uint64) error {
	return s.users.ClearQRToken(ctx, userID)
}
