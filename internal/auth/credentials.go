package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/plant-maintenance/internal/model"
	"github.com/iliyamo/plant-maintenance/internal/queue"
	"github.com/iliyamo/plant-maintenance/internal/repository"
	"github.com/iliyamo/plant-maintenance/internal/utils"
)

// AuditSink receives one AuthEvent per security-relevant branch. It
// must never fail the request path; implementations log and swallow
// delivery errors.
type AuditSink func(ctx context.Context, ev queue.AuthEvent)

// CredentialStore orchestrates registration, login, refresh and logout
// against the lockout guard, the QR token service and the token issuer.
// It is the only component that writes refresh-token rows.
type CredentialStore struct {
	users      UserStore
	tokens     TokenStore
	issuer     *Issuer
	guard      *LockoutGuard
	qr         *QRTokenService
	clock      Clock
	refreshTTL time.Duration
	bcryptCost int
	audit      AuditSink
}

func NewCredentialStore(
	users UserStore,
	tokens TokenStore,
	issuer *Issuer,
	guard *LockoutGuard,
	qr *QRTokenService,
	clock Clock,
	refreshTTL time.Duration,
	bcryptCost int,
	audit AuditSink,
) *CredentialStore {
	return &CredentialStore{
		users:      users,
		tokens:     tokens,
		issuer:     issuer,
		guard:      guard,
		qr:         qr,
		clock:      clock,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
		audit:      audit,
	}
}

// LoginResult is what a successful password or QR login returns: the
// public user record plus both tokens. PasswordHash is blanked before
// the result leaves this package.
type LoginResult struct {
	User           *model.User
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Validation errors surfaced by Register.
var (
	ErrInvalidEmail = errors.New("invalid email address")
)

// Register creates a self-service account. New accounts are active and
// auto-approved with the USER role.
func (s *CredentialStore) Register(ctx context.Context, email, password string, assignedPlant *string, ip string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:          email,
		PasswordHash:   hash,
		Role:           model.RoleUser,
		AssignedPlant:  assignedPlant,
		ApprovalStatus: model.ApprovalApproved,
		IsActive:       true,
	}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			s.record(ctx, queue.NewAuthEvent(queue.ActionRegister, email, 0, false, "email already exists", ip))
		}
		return nil, err
	}
	u.ID = id
	u.PasswordHash = ""
	s.record(ctx, queue.NewAuthEvent(queue.ActionRegister, email, id, true, "", ip))
	return u, nil
}

// Login runs the password login state machine. The checks are strictly
// ordered and each has its own failure outcome; the order is observable
// behavior and must not change:
//
//	lock check -> lookup -> approval -> active -> password -> issue
//
// A locked account is rejected before any counter is touched. A missing
// account records a failed attempt against the attempted email (a
// silent no-op when truly unknown) and returns the same generic error
// as a wrong password.
func (s *CredentialStore) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	locked, err := s.guard.IsLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, 0, false, "account locked", ip))
		return nil, ErrAccountLocked
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if rerr := s.guard.RecordFailedAttempt(ctx, email); rerr != nil {
				return nil, rerr
			}
			s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, 0, false, "unknown email", ip))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch u.ApprovalStatus {
	case model.ApprovalPending:
		s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, u.ID, false, "approval pending", ip))
		return nil, ErrAccountPending
	case model.ApprovalRejected:
		s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, u.ID, false, "registration rejected", ip))
		return nil, ErrAccountRejected
	}

	if !u.IsActive {
		s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, u.ID, false, "account deactivated", ip))
		return nil, ErrAccountInactive
	}

	if !utils.VerifyPassword(u.PasswordHash, password) {
		if rerr := s.guard.RecordFailedAttempt(ctx, email); rerr != nil {
			return nil, rerr
		}
		s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, u.ID, false, "wrong password", ip))
		remaining := s.guard.maxAttempts - (u.LoginAttempts + 1)
		if remaining > 0 && remaining <= 3 {
			return nil, &AttemptsWarning{Remaining: remaining}
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.guard.ResetAttempts(ctx, email); err != nil {
		return nil, err
	}
	res, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.record(ctx, queue.NewAuthEvent(queue.ActionLogin, email, u.ID, true, "", ip))
	return res, nil
}

// QRLogin validates a device token and then converges on the identical
// issuance step as a password login.
func (s *CredentialStore) QRLogin(ctx context.Context, token, ip string) (*LoginResult, error) {
	u, err := s.qr.Validate(ctx, token)
	if err != nil {
		reason := "invalid qr token"
		switch {
		case errors.Is(err, ErrAccountInactive):
			reason = "account not active"
		case errors.Is(err, ErrTokenExpired):
			reason = "qr token expired"
		}
		s.record(ctx, queue.NewAuthEvent(queue.ActionQRLogin, "", 0, false, reason, ip))
		return nil, err
	}
	res, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.record(ctx, queue.NewAuthEvent(queue.ActionQRLogin, u.Email, u.ID, true, "", ip))
	return res, nil
}

// issueTokens is the shared final step of both login paths: sign an
// access token, mint a refresh secret and persist its hash with a
// refreshTTL expiry.
func (s *CredentialStore) issueTokens(ctx context.Context, u *model.User) (*LoginResult, error) {
	now := s.clock.Now()
	access, accessExp, err := s.issuer.IssueAccessToken(u.Identity(), now)
	if err != nil {
		return nil, err
	}
	raw, err := NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(s.refreshTTL)
	if err := s.tokens.Store(ctx, u.ID, HashRefreshSecret(raw), refreshExp); err != nil {
		return nil, err
	}
	safe := *u
	safe.PasswordHash = ""
	return &LoginResult{
		User:           &safe,
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   raw,
		RefreshExpires: refreshExp,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is reused unchanged until its own expiry; there
// is no rotation. An expired row is deleted at use so a second attempt
// with the same token fails identically.
func (s *CredentialStore) Refresh(ctx context.Context, rawToken, ip string) (string, time.Time, error) {
	hash := HashRefreshSecret(rawToken)
	row, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			s.record(ctx, queue.NewAuthEvent(queue.ActionRefresh, "", 0, false, "unknown refresh token", ip))
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	now := s.clock.Now()
	if now.After(row.ExpiresAt) {
		if derr := s.tokens.DeleteByHash(ctx, hash); derr != nil {
			return "", time.Time{}, derr
		}
		s.record(ctx, queue.NewAuthEvent(queue.ActionRefresh, "", row.UserID, false, "refresh token expired", ip))
		return "", time.Time{}, ErrTokenExpired
	}
	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return "", time.Time{}, err
	}
	if !u.IsActive {
		s.record(ctx, queue.NewAuthEvent(queue.ActionRefresh, u.Email, u.ID, false, "account deactivated", ip))
		return "", time.Time{}, ErrAccountInactive
	}
	access, exp, err := s.issuer.IssueAccessToken(u.Identity(), now)
	if err != nil {
		return "", time.Time{}, err
	}
	s.record(ctx, queue.NewAuthEvent(queue.ActionRefresh, u.Email, u.ID, true, "", ip))
	return access, exp, nil
}

// Logout deletes every refresh-token row matching the given token.
// Idempotent: unknown tokens are not an error.
func (s *CredentialStore) Logout(ctx context.Context, rawToken, ip string) error {
	if err := s.tokens.DeleteByHash(ctx, HashRefreshSecret(rawToken)); err != nil {
		return err
	}
	s.record(ctx, queue.NewAuthEvent(queue.ActionLogout, "", 0, true, "", ip))
	return nil
}

// Me loads the public user record for an authenticated identity.
func (s *CredentialStore) Me(ctx context.Context, userID uint64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	safe := *u
	safe.PasswordHash = ""
	return &safe, nil
}

func (s *CredentialStore) record(ctx context.Context, ev queue.AuthEvent) {
	if s.audit != nil {
		s.audit(ctx, ev)
	}
}
